package fiducial

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"airphoto-prep/pkg/geometry"
)

// CornerCrop is a corner sub-region of a source image.
type CornerCrop struct {
	Image  string
	Corner Corner
	Crop   gocv.Mat    // region view into the source image
	Origin image.Point // top-left of the crop in image space (col,row)
}

// ToImage translates a crop-local coordinate to image space.
func (c CornerCrop) ToImage(p geometry.Point2D) geometry.Point2D {
	return p.Offset(c.Origin)
}

// CropWindows computes the four S x S corner windows of a width x height
// image, in Corners order. Each edge flagged in sides moves inward by
// round(stripe * dimension). Windows are clipped to the image.
func CropWindows(width, height, size int, stripe float64, sides Sides) [4]image.Rectangle {
	left, top := 0, 0
	right, bottom := width-size, height-size

	dx := int(math.Round(stripe * float64(width)))
	dy := int(math.Round(stripe * float64(height)))
	if sides[SideTop] {
		top += dy
	}
	if sides[SideBottom] {
		bottom -= dy
	}
	if sides[SideLeft] {
		left += dx
	}
	if sides[SideRight] {
		right -= dx
	}

	bounds := image.Rect(0, 0, width, height)
	win := func(x, y int) image.Rectangle {
		return image.Rect(x, y, x+size, y+size).Intersect(bounds)
	}

	var out [4]image.Rectangle
	out[TopLeft] = win(left, top)
	out[TopRight] = win(right, top)
	out[BotRight] = win(right, bottom)
	out[BotLeft] = win(left, bottom)
	return out
}

// ExtractCorners crops the four corner regions of img. The crops are views
// into img and must be closed with CloseCrops before img is released.
func ExtractCorners(img gocv.Mat, id string, size int, stripe float64, sides Sides) ([4]CornerCrop, error) {
	var crops [4]CornerCrop
	if img.Empty() {
		return crops, fmt.Errorf("%s: empty image", id)
	}

	windows := CropWindows(img.Cols(), img.Rows(), size, stripe, sides)
	for i, c := range Corners {
		w := windows[c]
		if w.Empty() {
			CloseCrops(crops[:i])
			return crops, fmt.Errorf("%s: %s window empty for %dx%d image with crop %d", id, c, img.Cols(), img.Rows(), size)
		}
		crops[i] = CornerCrop{
			Image:  id,
			Corner: c,
			Crop:   img.Region(w),
			Origin: w.Min,
		}
	}
	return crops, nil
}

// CloseCrops releases crop views.
func CloseCrops(crops []CornerCrop) {
	for _, c := range crops {
		c.Crop.Close()
	}
}
