// Package mask builds the single dataset mask that hides the fiducial corners
// of standardized photos from photogrammetric processing.
package mask

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"airphoto-prep/internal/canvas"
	aimage "airphoto-prep/internal/image"
)

// DefaultPercent is the corner rectangle size as a percentage of each
// image dimension.
const DefaultPercent = 12.0

// FileName returns the mask file name of a dataset.
func FileName(dataset string) string {
	return dataset + "_mask.png"
}

// Margins returns the corner rectangle size for a w x h image.
func Margins(w, h int, percentX, percentY float64) image.Point {
	return image.Pt(
		int(math.Round(percentX/100*float64(w))),
		int(math.Round(percentY/100*float64(h))),
	)
}

// Build returns a white single-band w x h image with the four corner
// rectangles set to black.
func Build(w, h int, percentX, percentY float64) (gocv.Mat, error) {
	if w <= 0 || h <= 0 {
		return gocv.NewMat(), fmt.Errorf("invalid mask size %dx%d", w, h)
	}
	if percentX < 0 || percentX > 50 || percentY < 0 || percentY > 50 {
		return gocv.NewMat(), fmt.Errorf("mask percentages must be within [0, 50], got %v, %v", percentX, percentY)
	}
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), h, w, gocv.MatTypeCV8U)
	mg := Margins(w, h, percentX, percentY)
	if mg.X == 0 || mg.Y == 0 {
		return m, nil
	}
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, mg.X, mg.Y),
		image.Rect(w-mg.X, 0, w, mg.Y),
		image.Rect(w-mg.X, h-mg.Y, w, h),
		image.Rect(0, h-mg.Y, mg.X, h),
	} {
		corner := m.Region(r)
		corner.SetTo(gocv.NewScalar(0, 0, 0, 0))
		corner.Close()
	}
	return m, nil
}

// Create sizes the mask from the largest image in paths and writes it to
// dir. It returns the written path.
func Create(paths []string, dir, dataset string, percentX, percentY float64) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no images to size the mask from")
	}
	size, err := canvas.MaxSize(paths)
	if err != nil {
		return "", err
	}

	m, err := Build(size.X, size.Y, percentX, percentY)
	if err != nil {
		return "", err
	}
	defer m.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create mask folder: %w", err)
	}
	out := filepath.Join(dir, FileName(dataset))
	if err := aimage.Write(out, m); err != nil {
		return "", err
	}
	return out, nil
}
