package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Homography represents a 3x3 projective transformation with H[2][2] = 1.
// [a b c]
// [d e f]
// [g h 1]
type Homography [3][3]float64

// IdentityHomography returns the identity transform.
func IdentityHomography() Homography {
	return Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Apply maps a point through the homography.
func (h Homography) Apply(p Point2D) Point2D {
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	if w == 0 {
		return Point2D{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point2D{
		X: (h[0][0]*p.X + h[0][1]*p.Y + h[0][2]) / w,
		Y: (h[1][0]*p.X + h[1][1]*p.Y + h[1][2]) / w,
	}
}

// SolveHomography computes the homography mapping src onto dst.
// Four correspondences give the exact solution; more are solved in the
// least-squares sense.
func SolveHomography(src, dst []Point2D) (Homography, error) {
	if len(src) != len(dst) {
		return Homography{}, fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	n := len(src)
	if n < 4 {
		return Homography{}, fmt.Errorf("need at least 4 points, got %d", n)
	}

	// Two rows per correspondence, eight unknowns (h22 fixed to 1).
	A := mat.NewDense(n*2, 8, nil)
	B := mat.NewVecDense(n*2, nil)

	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y
		xp, yp := dst[i].X, dst[i].Y

		A.SetRow(i*2, []float64{x, y, 1, 0, 0, 0, -x * xp, -y * xp})
		B.SetVec(i*2, xp)

		A.SetRow(i*2+1, []float64{0, 0, 0, x, y, 1, -x * yp, -y * yp})
		B.SetVec(i*2+1, yp)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return Homography{}, fmt.Errorf("degenerate point configuration: %w", err)
	}

	h := Homography{
		{params.AtVec(0), params.AtVec(1), params.AtVec(2)},
		{params.AtVec(3), params.AtVec(4), params.AtVec(5)},
		{params.AtVec(6), params.AtVec(7), 1},
	}
	for _, row := range h {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Homography{}, fmt.Errorf("degenerate point configuration")
			}
		}
	}
	return h, nil
}

// MaxError returns the largest reprojection distance of src through h against dst.
func (h Homography) MaxError(src, dst []Point2D) float64 {
	var worst float64
	for i := range src {
		if i >= len(dst) {
			break
		}
		if d := h.Apply(src[i]).Distance(dst[i]); d > worst {
			worst = d
		}
	}
	return worst
}
