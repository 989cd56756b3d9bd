package figure

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"airphoto-prep/pkg/colorutil"
)

// ConfidenceHistogram plots the distribution of match confidences with the
// acceptance threshold marked, and saves it as a PNG at path.
func ConfidenceHistogram(path, title string, confidences []float64, threshold float64) error {
	if len(confidences) == 0 {
		return fmt.Errorf("no confidences to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "normalized correlation"
	p.Y.Label.Text = "corners"

	hist, err := plotter.NewHist(plotter.Values(confidences), 20)
	if err != nil {
		return fmt.Errorf("could not build histogram: %w", err)
	}
	hist.FillColor = colorutil.WithAlpha(colorutil.Gray, 220)
	p.Add(hist)

	_, _, _, ymax := hist.DataRange()
	line, err := plotter.NewLine(plotter.XYs{{X: threshold, Y: 0}, {X: threshold, Y: ymax}})
	if err != nil {
		return fmt.Errorf("could not draw threshold: %w", err)
	}
	line.LineStyle.Color = colorutil.Red
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("threshold %.2f", threshold), line)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report folder: %w", err)
	}
	if err := p.Save(15*vg.Centimeter, 10*vg.Centimeter, path); err != nil {
		return fmt.Errorf("could not save plot: %w", err)
	}
	return nil
}
