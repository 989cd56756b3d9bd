package geometry

// SignedArea returns the shoelace area of a polygon: positive when the
// vertices run clockwise in image coordinates (y down).
func SignedArea(polygon []Point2D) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var a float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return a / 2
}

// IsConvex reports whether the vertices, taken in order, turn the same way
// at every corner. Collinear vertices make the polygon degenerate.
func IsConvex(polygon []Point2D) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}
	var sign int
	for i := 0; i < n; i++ {
		cross := crossProduct(polygon[i], polygon[(i+1)%n], polygon[(i+2)%n])
		if cross == 0 {
			return false
		}
		s := 1
		if cross < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return true
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
