package fiducial

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	aimage "airphoto-prep/internal/image"
	"airphoto-prep/pkg/geometry"
)

// DefaultHalfWidth is the template half-width used by CreateTemplates.
const DefaultHalfWidth = 240

// TemplateName returns the conventional template name for a corner.
func TemplateName(dataset string, c Corner, index int) string {
	return fmt.Sprintf("Template_%s_%s_%d", dataset, c, index)
}

// CreateTemplates cuts a square of +/-halfWidth around each hand-picked mark
// centre of img, writes the crops as TIFF into dir and appends their anchors
// to the anchor table (creating it with a header when new). Crops are
// clipped at the image border; the anchor then records the real offset.
func CreateTemplates(img gocv.Mat, centres map[Corner]geometry.PointInt, halfWidth int, dataset string, index int, dir string) ([]string, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty source image")
	}
	if halfWidth <= 0 {
		halfWidth = DefaultHalfWidth
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create template folder: %w", err)
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	var rows []string
	var names []string
	for _, c := range Corners {
		centre, ok := centres[c]
		if !ok {
			continue
		}
		win := image.Rect(centre.X-halfWidth, centre.Y-halfWidth, centre.X+halfWidth, centre.Y+halfWidth).Intersect(bounds)
		if win.Empty() || !image.Pt(centre.X, centre.Y).In(bounds) {
			return names, fmt.Errorf("%s centre (%d,%d) outside %dx%d image", c, centre.X, centre.Y, img.Cols(), img.Rows())
		}

		region := img.Region(win)
		patch := aimage.To8Bit(region)
		region.Close()

		name := TemplateName(dataset, c, index)
		err := aimage.Write(filepath.Join(dir, name+".tif"), patch)
		patch.Close()
		if err != nil {
			return names, err
		}

		anchor := geometry.PointInt{X: centre.X - win.Min.X, Y: centre.Y - win.Min.Y}
		rows = append(rows, AnchorRow(name, anchor))
		names = append(names, name)
	}

	if err := appendAnchorRows(filepath.Join(dir, AnchorTableName), rows); err != nil {
		return names, err
	}
	return names, nil
}

func appendAnchorRows(path string, rows []string) error {
	if len(rows) == 0 {
		return nil
	}
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open anchor table: %w", err)
	}
	defer f.Close()

	if fresh {
		if _, err := fmt.Fprintln(f, "Template Xc Yc"); err != nil {
			return fmt.Errorf("failed to write anchor table: %w", err)
		}
	}
	for _, r := range rows {
		if _, err := fmt.Fprintln(f, r); err != nil {
			return fmt.Errorf("failed to write anchor table: %w", err)
		}
	}
	return nil
}
