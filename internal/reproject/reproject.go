// Package reproject warps every scan so that its four fiducial marks land on
// fixed target positions, giving a dataset of geometrically standardized
// images of one size.
package reproject

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/ausocean/utils/logging"
	"gocv.io/x/gocv"

	"airphoto-prep/internal/batch"
	aimage "airphoto-prep/internal/image"
	"airphoto-prep/internal/results"
	"airphoto-prep/pkg/geometry"
)

// Suffix is appended to the stem of every reprojected scan.
const Suffix = "_standardized"

var (
	// ErrNoCoordinates is returned for a scan missing from the coordinate table.
	ErrNoCoordinates = errors.New("no fiducial coordinates for image")
	// ErrBadMarks is returned when the marks do not form a convex
	// quadrilateral ordered like the targets.
	ErrBadMarks = errors.New("fiducial marks do not form a valid quadrilateral")
)

// Params fixes the output geometry.
type Params struct {
	Targets [4]geometry.Point2D // TL, TR, BR, BL
	Size    image.Point
}

// DefaultParams places the marks 673 px in from each edge of a 13395 px
// square.
func DefaultParams() Params {
	return Params{
		Targets: [4]geometry.Point2D{
			{X: 673, Y: 673},
			{X: 12723, Y: 673},
			{X: 12723, Y: 12723},
			{X: 673, Y: 12723},
		},
		Size: image.Pt(13395, 13395),
	}
}

// OutputName returns the file name written for the scan at path.
func OutputName(path string) string {
	return aimage.Stem(path) + Suffix + ".tif"
}

// Transform returns the homography taking the detected marks to the targets.
func Transform(marks [4]geometry.Point2D, p Params) (geometry.Homography, error) {
	if !geometry.IsConvex(marks[:]) || (geometry.SignedArea(marks[:]) > 0) != (geometry.SignedArea(p.Targets[:]) > 0) {
		return geometry.Homography{}, fmt.Errorf("%w: %v", ErrBadMarks, marks)
	}
	return geometry.SolveHomography(marks[:], p.Targets[:])
}

// Warp applies h to img and crops the result to size.
func Warp(img gocv.Mat, h geometry.Homography, size image.Point) gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, h[r][c])
		}
	}
	dst := gocv.NewMat()
	gocv.WarpPerspective(img, &dst, m, size)
	return dst
}

// Report summarises a reprojection run.
type Report struct {
	Written []string
	Missing []string // scans without table coordinates
	Failed  map[string]error
}

// Run reprojects every scan in paths that has a row in coords and writes
// the results to outDir.
func Run(ctx context.Context, paths []string, coords results.Coordinates, outDir string, p Params, workers int, log logging.Logger) (*Report, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}
	log.Info("reprojecting", "images", len(paths), "width", p.Size.X, "height", p.Size.Y)

	rep := &Report{Failed: map[string]error{}}
	n := 0
	for res := range batch.Run(ctx, paths, workers, func(_ context.Context, path string) (string, error) {
		return reprojectFile(path, coords, outDir, p)
	}) {
		n++
		switch {
		case errors.Is(res.Err, ErrNoCoordinates):
			log.Warning("skipping image without fiducial coordinates", "image", filepath.Base(res.Item))
			rep.Missing = append(rep.Missing, res.Item)
		case res.Err != nil:
			log.Error("reprojection failed", "image", res.Item, "error", res.Err)
			rep.Failed[res.Item] = res.Err
		default:
			log.Info(fmt.Sprintf("[%d/%d] %s", n, len(paths), filepath.Base(res.Value)))
			rep.Written = append(rep.Written, res.Value)
		}
	}
	return rep, ctx.Err()
}

func lookup(coords results.Coordinates, path string) ([4]geometry.Point2D, bool) {
	if pts, ok := coords.Lookup(aimage.Stem(path)); ok {
		return pts, true
	}
	return coords.Lookup(filepath.Base(path))
}

func reprojectFile(path string, coords results.Coordinates, outDir string, p Params) (string, error) {
	marks, ok := lookup(coords, path)
	if !ok {
		return "", fmt.Errorf("%w %s", ErrNoCoordinates, filepath.Base(path))
	}
	h, err := Transform(marks, p)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	img, err := aimage.ReadGray(path)
	if err != nil {
		return "", err
	}
	defer img.Close()

	dst := Warp(img, h, p.Size)
	defer dst.Close()

	out := filepath.Join(outDir, OutputName(path))
	if err := aimage.Write(out, dst); err != nil {
		return "", err
	}
	return out, nil
}
