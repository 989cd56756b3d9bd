// Package image provides raster loading, header inspection and bit-depth
// conversion for scanned aerial photographs.
package image

import (
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/tiff"
)

// ReadGray loads a raster as a single-band Mat, keeping its bit depth.
// Colour inputs are converted to grayscale.
func ReadGray(path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to open image: %w", err)
	}

	img := gocv.IMRead(path, gocv.IMReadUnchanged)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("failed to decode image %s", path)
	}

	switch img.Channels() {
	case 1:
		return img, nil
	case 3:
		gray := gocv.NewMat()
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
		img.Close()
		return gray, nil
	case 4:
		gray := gocv.NewMat()
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
		img.Close()
		return gray, nil
	default:
		n := img.Channels()
		img.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d in %s", n, path)
	}
}

// Write encodes a Mat to path; the format follows the extension.
func Write(path string, m gocv.Mat) error {
	if m.Empty() {
		return fmt.Errorf("refusing to write empty image to %s", path)
	}
	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}

// Dimensions reads only the image header and returns (width, height).
func Dimensions(path string) (image.Point, error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Point{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return image.Point{}, fmt.Errorf("failed to decode header of %s: %w", path, err)
	}
	return image.Pt(cfg.Width, cfg.Height), nil
}

// Stem returns the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// List returns the supported rasters in dir, sorted by name.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if IsSupportedFormat(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// DPI reads the scan resolution from the first IFD of a TIFF file.
// Resolutions recorded per centimetre are converted to dots per inch.
func DPI(path string) (float64, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".tif" && ext != ".tiff" {
		return 0, fmt.Errorf("no resolution metadata in %s files", ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var header [8]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("%s is not a TIFF file", path)
	}

	ifd := int64(order.Uint32(header[4:]))
	var count [2]byte
	if _, err := f.ReadAt(count[:], ifd); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	var x, y float64
	unit := uint16(2)
	entry := make([]byte, 12)
	for i := 0; i < int(order.Uint16(count[:])); i++ {
		if _, err := f.ReadAt(entry, ifd+2+int64(i)*12); err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		tag, typ := order.Uint16(entry[0:]), order.Uint16(entry[2:])
		switch {
		case tag == tagXResolution && typ == typeRational:
			x = readRational(f, order, int64(order.Uint32(entry[8:])))
		case tag == tagYResolution && typ == typeRational:
			y = readRational(f, order, int64(order.Uint32(entry[8:])))
		case tag == tagResolutionUnit && typ == typeShort:
			unit = order.Uint16(entry[8:])
		}
	}

	dpi := x
	if dpi == 0 {
		dpi = y
	}
	if dpi == 0 {
		return 0, fmt.Errorf("%s has no resolution tags", path)
	}
	if unit == 3 {
		dpi *= 2.54
	}
	return dpi, nil
}

const (
	tagXResolution    = 282
	tagYResolution    = 283
	tagResolutionUnit = 296
	typeShort         = 3
	typeRational      = 5
)

func readRational(r io.ReaderAt, order binary.ByteOrder, off int64) float64 {
	var b [8]byte
	if _, err := r.ReadAt(b[:], off); err != nil {
		return 0
	}
	num, den := order.Uint32(b[0:]), order.Uint32(b[4:])
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
