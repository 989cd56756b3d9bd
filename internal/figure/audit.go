// Package figure renders fiducial audit figures and run reports as PNG files.
package figure

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"airphoto-prep/internal/fiducial"
	aimage "airphoto-prep/internal/image"
	"airphoto-prep/pkg/colorutil"
)

// Folders below the work directory.
const (
	OverviewFolder = "_all_fiducials"
	ReviewFolder   = "_To_Be_Checked"
)

// Writer saves audit figures under Dir. It implements fiducial.Auditor and
// is safe for concurrent use; every call writes its own file.
type Writer struct {
	Dir      string
	DPI      int
	PanelMax int // longest panel edge in pixels after downscaling
}

// NewWriter returns a figure writer rooted at dir.
func NewWriter(dir string, dpi int) *Writer {
	if dpi <= 0 {
		dpi = 200
	}
	return &Writer{Dir: dir, DPI: dpi, PanelMax: 600}
}

// OverviewPath returns where the 2x2 figure of an image is written.
func (w *Writer) OverviewPath(img string) string {
	return filepath.Join(w.Dir, OverviewFolder, "_FiducialsDetection_"+img+".png")
}

// ToCheckPath returns where the review figure of a corner is written.
func (w *Writer) ToCheckPath(img string, c fiducial.Corner) string {
	return filepath.Join(w.Dir, ReviewFolder, "_ToCheck_"+img+"_"+c.String()+".png")
}

// Overview writes a 2x2 figure, one panel per corner crop laid out as on
// the photo, with the matched footprint and the resolved point drawn on it.
func (w *Writer) Overview(set *fiducial.FiducialSet, crops [4]fiducial.CornerCrop, _ [4]*fiducial.Template) error {
	layout := [2][2]fiducial.Corner{
		{fiducial.TopLeft, fiducial.TopRight},
		{fiducial.BotLeft, fiducial.BotRight},
	}

	plots := make([][]*plot.Plot, 2)
	for row := range layout {
		plots[row] = make([]*plot.Plot, 2)
		for col, c := range layout[row] {
			res := set.Corners[c]
			title := fmt.Sprintf("%s  %s %.3f", c, res.Match.Method, res.Match.Confidence)
			if res.State == fiducial.FlaggedForReview {
				title += "  (check)"
			}
			p, err := w.cropPanel(crops[c].Crop, title, res.Match, res.State == fiducial.Accepted)
			if err != nil {
				return fmt.Errorf("%s %s panel: %w", set.Image, c, err)
			}
			plots[row][col] = p
		}
	}
	return w.saveGrid(plots, 18*vg.Centimeter, 18*vg.Centimeter, w.OverviewPath(set.Image))
}

// ToCheck writes the crop of a flagged corner next to the template used.
func (w *Writer) ToCheck(set *fiducial.FiducialSet, res fiducial.CornerResult, crop fiducial.CornerCrop, tpl *fiducial.Template) error {
	title := fmt.Sprintf("to check: %s %s (%.3f)", set.Image, res.Corner, res.Match.Confidence)
	left, err := w.cropPanel(crop.Crop, title, res.Match, false)
	if err != nil {
		return err
	}

	row := []*plot.Plot{left}
	if tpl != nil {
		right, err := w.imagePanel(tpl.Patch, "template "+tpl.Name)
		if err != nil {
			return err
		}
		row = append(row, right)
	}
	return w.saveGrid([][]*plot.Plot{row}, vg.Length(len(row))*9*vg.Centimeter, 9*vg.Centimeter, w.ToCheckPath(set.Image, res.Corner))
}

// cropPanel renders a crop with the match footprint and point, in crop
// pixels, colored by outcome.
func (w *Writer) cropPanel(crop gocv.Mat, title string, m fiducial.Match, accepted bool) (*plot.Plot, error) {
	p, err := w.imagePanel(crop, title)
	if err != nil {
		return nil, err
	}
	h := float64(crop.Rows())
	overlay := colorutil.Marker(accepted, m.Method == fiducial.MethodCircle)

	if !m.Box.Empty() {
		b := m.Box
		box, err := plotter.NewLine(plotter.XYs{
			{X: float64(b.Min.X), Y: h - float64(b.Min.Y)},
			{X: float64(b.Max.X), Y: h - float64(b.Min.Y)},
			{X: float64(b.Max.X), Y: h - float64(b.Max.Y)},
			{X: float64(b.Min.X), Y: h - float64(b.Max.Y)},
			{X: float64(b.Min.X), Y: h - float64(b.Min.Y)},
		})
		if err != nil {
			return nil, err
		}
		box.LineStyle.Color = overlay
		box.LineStyle.Width = vg.Points(1)
		p.Add(box)
	}

	if m.Method != fiducial.MethodNone {
		mark, err := plotter.NewScatter(plotter.XYs{{X: m.Local.X, Y: h - m.Local.Y}})
		if err != nil {
			return nil, err
		}
		mark.GlyphStyle.Shape = draw.CrossGlyph{}
		mark.GlyphStyle.Color = overlay
		mark.GlyphStyle.Radius = vg.Points(6)
		p.Add(mark)
	}
	return p, nil
}

// imagePanel renders a raster with its pixel grid as data coordinates.
func (w *Writer) imagePanel(m gocv.Mat, title string) (*plot.Plot, error) {
	img, err := w.thumbnail(m)
	if err != nil {
		return nil, err
	}
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(plotter.NewImage(img, 0, 0, float64(m.Cols()), float64(m.Rows())))
	return p, nil
}

// thumbnail converts to 8-bit and downsizes so the longest edge fits PanelMax.
func (w *Writer) thumbnail(m gocv.Mat) (image.Image, error) {
	eight := aimage.To8Bit(m)
	defer eight.Close()
	src, err := aimage.MatToGray(eight)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	longest := max(b.Dx(), b.Dy())
	if w.PanelMax <= 0 || longest <= w.PanelMax {
		return src, nil
	}
	scale := float64(w.PanelMax) / float64(longest)
	dst := image.NewGray(image.Rect(0, 0, max(1, int(float64(b.Dx())*scale)), max(1, int(float64(b.Dy())*scale))))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst, nil
}

// saveGrid lays plots out in rows and columns and writes a PNG.
func (w *Writer) saveGrid(plots [][]*plot.Plot, width, height vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create figure folder: %w", err)
	}

	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(w.DPI))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: len(plots[0]),
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		for i := range plots[j] {
			if plots[j][i] != nil {
				plots[j][i].Draw(canvases[j][i])
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create figure: %w", err)
	}
	defer f.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return fmt.Errorf("failed to write figure: %w", err)
	}
	return nil
}
