// Package canvas pads every scan of a dataset to a common canvas so that
// later stages can assume one image size.
package canvas

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/ausocean/utils/logging"
	"gocv.io/x/gocv"

	"airphoto-prep/internal/batch"
	aimage "airphoto-prep/internal/image"
)

// Suffix is appended to the stem of every padded scan.
const Suffix = "_CanvasSized"

// OutputName returns the file name written for the scan at path.
func OutputName(path string) string {
	return aimage.Stem(path) + Suffix + ".tif"
}

// MaxSize returns the largest width and the largest height over paths,
// reading only image headers.
func MaxSize(paths []string) (image.Point, error) {
	var size image.Point
	for _, p := range paths {
		d, err := aimage.Dimensions(p)
		if err != nil {
			return image.Point{}, err
		}
		size.X = max(size.X, d.X)
		size.Y = max(size.Y, d.Y)
	}
	return size, nil
}

// Pad extends src with zero rows at the bottom and zero columns at the right
// until it is size. The original pixels keep their coordinates.
func Pad(src gocv.Mat, size image.Point) (gocv.Mat, error) {
	bottom := size.Y - src.Rows()
	right := size.X - src.Cols()
	if bottom < 0 || right < 0 {
		return gocv.NewMat(), fmt.Errorf("image %dx%d exceeds canvas %dx%d", src.Cols(), src.Rows(), size.X, size.Y)
	}
	dst := gocv.NewMat()
	gocv.CopyMakeBorder(src, &dst, 0, bottom, 0, right, gocv.BorderConstant, color.RGBA{})
	return dst, nil
}

// Report summarises a canvas sizing run.
type Report struct {
	Size    image.Point
	Written []string
	Failed  map[string]error
}

// Run pads every scan in paths to the dataset maximum and writes the results
// to outDir. Failing scans are logged and reported without stopping the run.
func Run(ctx context.Context, paths []string, outDir string, workers int, log logging.Logger) (*Report, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scans to size")
	}
	size, err := MaxSize(paths)
	if err != nil {
		return nil, err
	}
	log.Info("canvas size", "width", size.X, "height", size.Y, "images", len(paths))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	rep := &Report{Size: size, Failed: map[string]error{}}
	n := 0
	for res := range batch.Run(ctx, paths, workers, func(_ context.Context, path string) (string, error) {
		return padFile(path, outDir, size)
	}) {
		n++
		if res.Err != nil {
			log.Error("canvas sizing failed", "image", res.Item, "error", res.Err)
			rep.Failed[res.Item] = res.Err
			continue
		}
		log.Info(fmt.Sprintf("[%d/%d] %s", n, len(paths), filepath.Base(res.Value)))
		rep.Written = append(rep.Written, res.Value)
	}
	return rep, ctx.Err()
}

func padFile(path, outDir string, size image.Point) (string, error) {
	src, err := aimage.ReadGray(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := Pad(src, size)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	defer dst.Close()

	out := filepath.Join(outDir, OutputName(path))
	if err := aimage.Write(out, dst); err != nil {
		return "", err
	}
	return out, nil
}
