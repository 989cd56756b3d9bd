// Package resize resamples standardized scans to the output resolution,
// with optional unsharp masking and local contrast equalization.
package resize

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/ausocean/utils/logging"
	"gocv.io/x/gocv"

	"airphoto-prep/internal/batch"
	aimage "airphoto-prep/internal/image"
)

// Suffix is appended to the stem of every resized scan.
const Suffix = "_DownSharp"

// Params controls resampling and enhancement.
type Params struct {
	InputDPI  int // 0 reads each scan's TIFF resolution
	OutputDPI int
	Sharpen   int  // 0 off, 1 low, 2 medium
	CLAHE     bool // clip 2.0, 40x40 tiles
}

// Scale is the ratio of output to input resolution.
func (p Params) Scale() float64 {
	if p.InputDPI <= 0 {
		return 1
	}
	return float64(p.OutputDPI) / float64(p.InputDPI)
}

// OutputName returns the file name written for the scan at path.
func OutputName(path string) string {
	return aimage.Stem(path) + Suffix + ".tif"
}

// TargetSize returns the resampled size of a w x h image; dimensions are
// truncated and never drop below one pixel.
func TargetSize(w, h int, scale float64) image.Point {
	return image.Pt(max(int(float64(w)*scale), 1), max(int(float64(h)*scale), 1))
}

// Process resamples src with bicubic interpolation and applies the
// configured enhancement.
func Process(src gocv.Mat, p Params) (gocv.Mat, error) {
	if p.Sharpen < 0 || p.Sharpen > 2 {
		return gocv.NewMat(), fmt.Errorf("sharpen intensity must be 0, 1 or 2, got %d", p.Sharpen)
	}
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, TargetSize(src.Cols(), src.Rows(), p.Scale()), 0, 0, gocv.InterpolationCubic)

	if p.Sharpen > 0 {
		sharp := Unsharp(dst, p.Sharpen)
		dst.Close()
		dst = sharp
	}
	if p.CLAHE {
		eq, err := equalize(dst)
		dst.Close()
		if err != nil {
			return gocv.NewMat(), err
		}
		dst = eq
	}
	return dst, nil
}

// Unsharp subtracts a 3x3 Gaussian blur from the image: 2*img - blur for
// intensity 1, 4*img - 3*blur for intensity 2.
func Unsharp(src gocv.Mat, intensity int) gocv.Mat {
	blur := gocv.NewMat()
	defer blur.Close()
	gocv.GaussianBlur(src, &blur, image.Pt(3, 3), 1.0, 1.0, gocv.BorderDefault)

	alpha, beta := 2.0, -1.0
	if intensity >= 2 {
		alpha, beta = 4.0, -3.0
	}
	dst := gocv.NewMat()
	gocv.AddWeighted(src, alpha, blur, beta, 0, &dst)
	return dst
}

// equalize applies CLAHE. OpenCV's CLAHE accepts 8 and 16 bit single-band
// images only.
func equalize(src gocv.Mat) (gocv.Mat, error) {
	if t := src.Type(); t != gocv.MatTypeCV8U && t != gocv.MatTypeCV16U {
		return gocv.NewMat(), fmt.Errorf("CLAHE needs an 8 or 16 bit single-band image, got type %v", t)
	}
	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(40, 40))
	defer clahe.Close()
	dst := gocv.NewMat()
	clahe.Apply(src, &dst)
	return dst, nil
}

// Report summarises a resize run.
type Report struct {
	Written []string
	Failed  map[string]error
}

// Run resamples every scan in paths into outDir.
func Run(ctx context.Context, paths []string, outDir string, p Params, workers int, log logging.Logger) (*Report, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}
	log.Info("resizing", "images", len(paths), "scale", p.Scale(), "sharpen", p.Sharpen, "clahe", p.CLAHE)

	rep := &Report{Failed: map[string]error{}}
	n := 0
	for res := range batch.Run(ctx, paths, workers, func(_ context.Context, path string) (string, error) {
		return resizeFile(path, outDir, p)
	}) {
		n++
		if res.Err != nil {
			log.Error("resize failed", "image", res.Item, "error", res.Err)
			rep.Failed[res.Item] = res.Err
			continue
		}
		log.Info(fmt.Sprintf("[%d/%d] %s", n, len(paths), filepath.Base(res.Value)))
		rep.Written = append(rep.Written, res.Value)
	}
	if len(rep.Written) != len(paths) {
		log.Warning("some images were not resized", "input", len(paths), "written", len(rep.Written))
	}
	return rep, ctx.Err()
}

func resizeFile(path, outDir string, p Params) (string, error) {
	if p.InputDPI == 0 {
		dpi, err := aimage.DPI(path)
		if err != nil {
			return "", fmt.Errorf("input resolution not set: %w", err)
		}
		p.InputDPI = int(math.Round(dpi))
	}
	src, err := aimage.ReadGray(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := Process(src, p)
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
