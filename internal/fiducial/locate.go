package fiducial

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"

	aimage "airphoto-prep/internal/image"
	"airphoto-prep/pkg/geometry"
)

// Locate matches tpl against a corner crop with normalized cross-correlation
// and refines the hit with Shi-Tomasi interest points around the template
// anchor. The returned match is crop-local; Point is left for the caller.
func Locate(crop gocv.Mat, tpl *Template, p Params) (Match, error) {
	size := tpl.Size()
	if size.X > crop.Cols() || size.Y > crop.Rows() {
		return Match{}, fmt.Errorf("%s %dx%d in %dx%d crop: %w", tpl.Name, size.X, size.Y, crop.Cols(), crop.Rows(), ErrTemplateTooLarge)
	}

	src := aimage.To8Bit(crop)
	defer src.Close()

	res := gocv.NewMat()
	defer res.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(src, tpl.Patch, &res, gocv.TmCcoeffNormed, mask)
	if res.Empty() {
		return Match{}, fmt.Errorf("%s: template matching produced no response", tpl.Name)
	}
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(res)

	conf := float64(maxVal)
	if math.IsNaN(conf) || math.IsInf(conf, 0) {
		conf = 0
	}

	box := image.Rectangle{Min: maxLoc, Max: maxLoc.Add(size)}
	anchor := tpl.Anchor.ToFloat()
	centre := anchor
	if p.Refine == RefineBarycentre {
		sub := src.Region(box)
		points := goodFeatures(sub, p)
		sub.Close()
		centre = RefineAnchor(anchor, points, p.RefineCutoff, p.RefinePoints)
	}

	return Match{
		Template:   tpl.Name,
		Local:      centre.Offset(maxLoc),
		Box:        box,
		Confidence: conf,
		Method:     MethodTemplate,
	}, nil
}

// goodFeatures returns the strongest Shi-Tomasi corners of an 8-bit region.
func goodFeatures(region gocv.Mat, p Params) []geometry.Point2D {
	corners := gocv.NewMat()
	defer corners.Close()

	gocv.GoodFeaturesToTrack(region, &corners, p.MaxCorners, p.CornerQuality, p.CornerMinDistance)
	if corners.Empty() {
		return nil
	}

	points := make([]geometry.Point2D, 0, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		v := corners.GetVecfAt(i, 0)
		if len(v) < 2 {
			continue
		}
		points = append(points, geometry.Point2D{X: float64(v[0]), Y: float64(v[1])})
	}
	return points
}

// RefineAnchor moves the template anchor onto nearby interest points.
// If the nearest point is at or beyond cutoff the anchor is returned unmoved;
// otherwise the nearest points closer than cutoff, at most maxPoints of
// them, are averaged.
func RefineAnchor(anchor geometry.Point2D, points []geometry.Point2D, cutoff float64, maxPoints int) geometry.Point2D {
	if len(points) == 0 || maxPoints <= 0 {
		return anchor
	}

	sorted := make([]geometry.Point2D, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance(anchor) < sorted[j].Distance(anchor)
	})

	var near []geometry.Point2D
	for _, pt := range sorted {
		if len(near) == maxPoints || pt.Distance(anchor) >= cutoff {
			break
		}
		near = append(near, pt)
	}
	if len(near) == 0 {
		return anchor
	}
	return geometry.Centroid(near)
}
