package fiducial

import (
	"image"

	"gocv.io/x/gocv"

	aimage "airphoto-prep/internal/image"
	"airphoto-prep/pkg/geometry"
)

// Circle is a detected circular mark, crop-local.
type Circle struct {
	Center geometry.Point2D
	Radius float64
	Param2 int // accumulator threshold at which it was found
}

// FindCircle blurs the crop and runs Hough circle detection, relaxing the
// accumulator threshold by cp.Param2Step until a circle turns up or the
// threshold falls below cp.Param2Floor. The first circle reported wins.
func FindCircle(crop gocv.Mat, minRadius, maxRadius int, cp CircleParams) (Circle, bool) {
	if crop.Empty() {
		return Circle{}, false
	}
	if minRadius < 1 {
		minRadius = 1
	}
	if maxRadius < minRadius {
		maxRadius = minRadius
	}

	src := aimage.To8Bit(crop)
	defer src.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := cp.BlurSize
	if k%2 == 0 {
		k++
	}
	gocv.GaussianBlur(src, &blurred, image.Point{k, k}, 0, 0, gocv.BorderDefault)

	circles := gocv.NewMat()
	defer circles.Close()

	for param2 := cp.Param2Start; param2 >= cp.Param2Floor; param2 -= cp.Param2Step {
		gocv.HoughCirclesWithParams(blurred, &circles, gocv.HoughGradient, cp.DP, cp.MinDist,
			cp.Param1, float64(param2), minRadius, maxRadius)

		if circles.Empty() || circles.Cols() == 0 {
			if cp.Param2Step <= 0 {
				break
			}
			continue
		}

		return Circle{
			Center: geometry.Point2D{
				X: float64(circles.GetFloatAt(0, 0)),
				Y: float64(circles.GetFloatAt(0, 1)),
			},
			Radius: float64(circles.GetFloatAt(0, 2)),
			Param2: param2,
		}, true
	}
	return Circle{}, false
}
