package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// DefineFlags registers the command-line overrides on fs. Defaults shown in
// the usage text come from DefaultConfig; only flags given on the command
// line are applied by ApplyFlags.
func DefineFlags(fs *flag.FlagSet) {
	d := DefaultConfig()
	fs.String("dataset", d.Dataset, "Dataset name")
	fs.String("camera", d.Camera, "Camera model")
	fs.String("input", d.InputDir, "Folder of raw scans")
	fs.String("templates", d.TemplateDir, "Folder of fiducial templates")
	fs.String("output", d.OutputDir, "Pipeline output folder")
	fs.String("steps", "all", "Comma separated steps: canvas, fiducials, reproject, resize")
	fs.Int("workers", d.Workers, "Worker count (0 = cores - 1)")

	fs.Int("crop", d.Fiducial.CropSize, "Corner crop size in pixels")
	fs.Float64("stripe", d.Fiducial.Stripe, "Stripe width as a fraction of the image, usually one of "+stripeChoices())
	fs.String("sides", d.Fiducial.StripeSides, "Edges carrying a stripe")
	fs.Float64("threshold", d.Fiducial.Threshold, "Acceptance threshold for template correlation")
	fs.Bool("one-template", d.Fiducial.OneTemplatePerCorner, "Try only the first template of each corner")
	fs.String("refine", d.Fiducial.Refine, "Mark centre refinement: barycentre or fixed")
	fs.Int("figure-dpi", d.Fiducial.FigureDPI, "Resolution of audit figures")
	fs.Bool("figures", d.Fiducial.Figures, "Write audit figures")

	fs.Int("width", d.Reproject.Width, "Reprojected image width")
	fs.Int("height", d.Reproject.Height, "Reprojected image height")
	fs.Int("in-dpi", d.Resize.InputDPI, "Scan resolution (0 reads the TIFF header)")
	fs.Int("out-dpi", d.Resize.OutputDPI, "Output resolution")
	fs.Int("sharpen", d.Resize.Sharpen, "Unsharp intensity: 0, 1 or 2")
	fs.Bool("clahe", d.Resize.CLAHE, "Apply CLAHE after resizing")

	fs.String("log", d.LogFile, "Log file (rotated)")
	fs.String("log-level", d.LogLevel, "Log level: debug, info, warning, error")
	fs.String("ledger", d.Ledger, "SQLite ledger path")
}

// ApplyFlags overlays the flags explicitly set on the parsed fs onto c.
func (c Config) ApplyFlags(fs *flag.FlagSet) (Config, error) {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		v := f.Value.String()
		switch f.Name {
		case "dataset":
			c.Dataset = v
		case "camera":
			c.Camera = v
		case "input":
			c.InputDir = v
		case "templates":
			c.TemplateDir = v
		case "output":
			c.OutputDir = v
		case "steps":
			c.Steps, err = ParseSteps(v)
		case "workers":
			c.Workers, err = strconv.Atoi(v)
		case "crop":
			c.Fiducial.CropSize, err = strconv.Atoi(v)
		case "stripe":
			c.Fiducial.Stripe, err = strconv.ParseFloat(v, 64)
		case "sides":
			c.Fiducial.StripeSides = v
		case "threshold":
			c.Fiducial.Threshold, err = strconv.ParseFloat(v, 64)
		case "one-template":
			c.Fiducial.OneTemplatePerCorner, err = strconv.ParseBool(v)
		case "refine":
			c.Fiducial.Refine = v
		case "figure-dpi":
			c.Fiducial.FigureDPI, err = strconv.Atoi(v)
		case "figures":
			c.Fiducial.Figures, err = strconv.ParseBool(v)
		case "width":
			c.Reproject.Width, err = strconv.Atoi(v)
		case "height":
			c.Reproject.Height, err = strconv.Atoi(v)
		case "in-dpi":
			c.Resize.InputDPI, err = strconv.Atoi(v)
		case "out-dpi":
			c.Resize.OutputDPI, err = strconv.Atoi(v)
		case "sharpen":
			c.Resize.Sharpen, err = strconv.Atoi(v)
		case "clahe":
			c.Resize.CLAHE, err = strconv.ParseBool(v)
		case "log":
			c.LogFile = v
		case "log-level":
			c.LogLevel = v
		case "ledger":
			c.Ledger = v
		}
		if err != nil {
			err = fmt.Errorf("flag -%s: %w", f.Name, err)
		}
	})
	return c, err
}

func stripeChoices() string {
	opts := make([]string, len(StripeOptions))
	for i, o := range StripeOptions {
		opts[i] = strconv.FormatFloat(o, 'f', -1, 64)
	}
	return strings.Join(opts, ", ")
}
