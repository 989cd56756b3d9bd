// Package config holds the run configuration of the preprocessing pipeline.
// A Config is built once (defaults, then JSON file, then environment, then
// flags) and passed by value to every stage.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"airphoto-prep/internal/fiducial"
	"airphoto-prep/internal/results"
)

// Pipeline steps, in execution order.
const (
	StepCanvas    = "canvas"
	StepFiducials = "fiducials"
	StepReproject = "reproject"
	StepResize    = "resize"
)

// AllSteps lists every step in execution order.
var AllSteps = []string{StepCanvas, StepFiducials, StepReproject, StepResize}

// Output folders below OutputDir.
const (
	CanvasFolder    = "01_CanvasSized"
	ReprojectFolder = "02_Reprojected"
	ResizeFolder    = "03_Resized"
)

// Config is the complete run configuration.
type Config struct {
	Dataset     string   `json:"dataset"`
	Camera      string   `json:"camera"`
	InputDir    string   `json:"input_dir"`
	TemplateDir string   `json:"template_dir"`
	OutputDir   string   `json:"output_dir"`
	Steps       []string `json:"steps"`
	Workers     int      `json:"workers"` // 0 means cores - 1

	Fiducial  FiducialConfig  `json:"fiducial"`
	Reproject ReprojectConfig `json:"reproject"`
	Resize    ResizeConfig    `json:"resize"`

	LogFile  string `json:"log_file"`
	LogLevel string `json:"log_level"`
	Ledger   string `json:"ledger"` // SQLite path, empty disables
}

// FiducialConfig configures the detection step.
type FiducialConfig struct {
	CropSize             int     `json:"crop_size"`
	Stripe               float64 `json:"stripe"`
	StripeSides          string  `json:"stripe_sides"`
	Threshold            float64 `json:"threshold"`
	RetryGrowth          int     `json:"retry_growth"`
	RetryStripeStep      float64 `json:"retry_stripe_step"`
	OneTemplatePerCorner bool    `json:"one_template_per_corner"`
	Refine               string  `json:"refine"` // "barycentre" or "fixed"
	FigureDPI            int     `json:"figure_dpi"`
	Figures              bool    `json:"figures"`
}

// ReprojectConfig configures the perspective warp.
type ReprojectConfig struct {
	Targets [4][2]float64 `json:"targets"` // TL, TR, BR, BL in output pixels
	Width   int           `json:"width"`
	Height  int           `json:"height"`
}

// ResizeConfig configures the final resampling.
type ResizeConfig struct {
	InputDPI  int  `json:"input_dpi"` // 0 reads the TIFF header
	OutputDPI int  `json:"output_dpi"`
	Sharpen   int  `json:"sharpen"` // 0 off, 1 or 2
	CLAHE     bool `json:"clahe"`
}

// StripeOptions are the stripe fractions offered to operators.
var StripeOptions = []float64{0.0, 0.01, 0.02, 0.04, 0.06, 0.08, 0.1, 0.15, 0.20}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	fp := fiducial.DefaultParams()
	return Config{
		Camera:  "Wild RC5a",
		Steps:   append([]string(nil), AllSteps...),
		Workers: 0,
		Fiducial: FiducialConfig{
			CropSize:             fp.CropSize,
			Stripe:               fp.Stripe,
			StripeSides:          fp.StripeSides.String(),
			Threshold:            fp.Threshold,
			RetryGrowth:          fp.RetryGrowth,
			RetryStripeStep:      fp.RetryStripeStep,
			OneTemplatePerCorner: fp.OneTemplatePerCorner,
			Refine:               fp.Refine.String(),
			FigureDPI:            fp.FigureDPI,
			Figures:              true,
		},
		Reproject: ReprojectConfig{
			Targets: [4][2]float64{{673, 673}, {12723, 673}, {12723, 12723}, {673, 12723}},
			Width:   13395,
			Height:  13395,
		},
		Resize: ResizeConfig{
			InputDPI:  1200,
			OutputDPI: 1200,
			Sharpen:   0,
			CLAHE:     false,
		},
		LogLevel: "info",
	}
}

// WithDataset returns a copy of c for another dataset.
func (c Config) WithDataset(name string) Config {
	c.Dataset = name
	return c
}

// WithFolders returns a copy of c reading scans from input and templates
// from templates, and writing under output.
func (c Config) WithFolders(input, templates, output string) Config {
	c.InputDir = input
	c.TemplateDir = templates
	c.OutputDir = output
	return c
}

// WithSteps returns a copy of c running only steps.
func (c Config) WithSteps(steps ...string) Config {
	c.Steps = append([]string(nil), steps...)
	return c
}

// LoadFile overlays the JSON file at path onto base. Keys missing from the
// file keep their base values.
func LoadFile(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := base
	if err := json.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks ranges and required folders for the selected steps.
func (c Config) Validate() error {
	var errs []error
	if c.Dataset == "" {
		errs = append(errs, errors.New("dataset name is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output folder is required"))
	}
	for _, s := range c.Steps {
		if !isStep(s) {
			errs = append(errs, fmt.Errorf("unknown step %q", s))
		}
	}
	if c.HasStep(StepCanvas) && c.InputDir == "" {
		errs = append(errs, errors.New("input folder is required for canvas sizing"))
	}
	if c.HasStep(StepFiducials) && c.TemplateDir == "" {
		errs = append(errs, errors.New("template folder is required for fiducial detection"))
	}

	f := c.Fiducial
	if f.CropSize <= 0 {
		errs = append(errs, fmt.Errorf("crop size must be positive, got %d", f.CropSize))
	}
	if f.Stripe < 0 || f.Stripe > 0.2 {
		errs = append(errs, fmt.Errorf("stripe fraction must be within [0, 0.2], got %v", f.Stripe))
	}
	if _, err := fiducial.ParseSides(f.StripeSides); err != nil {
		errs = append(errs, err)
	}
	if f.Threshold <= 0 || f.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold must be within (0, 1], got %v", f.Threshold))
	}
	if f.Refine != "" && f.Refine != fiducial.RefineBarycentre.String() && f.Refine != fiducial.RefineFixed.String() {
		errs = append(errs, fmt.Errorf("unknown refinement %q", f.Refine))
	}
	if f.FigureDPI <= 0 {
		errs = append(errs, fmt.Errorf("figure dpi must be positive, got %d", f.FigureDPI))
	}

	if c.Reproject.Width <= 0 || c.Reproject.Height <= 0 {
		errs = append(errs, fmt.Errorf("reprojection size must be positive, got %dx%d", c.Reproject.Width, c.Reproject.Height))
	}
	r := c.Resize
	if r.InputDPI < 0 || r.OutputDPI <= 0 {
		errs = append(errs, fmt.Errorf("resolutions must be positive, got %d -> %d", r.InputDPI, r.OutputDPI))
	}
	if r.Sharpen < 0 || r.Sharpen > 2 {
		errs = append(errs, fmt.Errorf("sharpen intensity must be 0, 1 or 2, got %d", r.Sharpen))
	}
	return errors.Join(errs...)
}

// HasStep reports whether step is selected.
func (c Config) HasStep(step string) bool {
	for _, s := range c.Steps {
		if s == step {
			return true
		}
	}
	return false
}

func isStep(s string) bool {
	for _, step := range AllSteps {
		if s == step {
			return true
		}
	}
	return false
}

// ParseSteps parses a comma separated step list; "all" selects every step.
func ParseSteps(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" || strings.EqualFold(strings.TrimSpace(s), "all") {
		return append([]string(nil), AllSteps...), nil
	}
	var steps []string
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !isStep(f) {
			return nil, fmt.Errorf("unknown step %q", f)
		}
		steps = append(steps, f)
	}
	return steps, nil
}

// FiducialParams converts the detection settings to locator parameters.
func (c Config) FiducialParams() (fiducial.Params, error) {
	sides, err := fiducial.ParseSides(c.Fiducial.StripeSides)
	if err != nil {
		return fiducial.Params{}, err
	}
	p := fiducial.DefaultParams().
		WithCrop(c.Fiducial.CropSize, c.Fiducial.Stripe, sides).
		WithThreshold(c.Fiducial.Threshold)
	p.RetryGrowth = c.Fiducial.RetryGrowth
	p.RetryStripeStep = c.Fiducial.RetryStripeStep
	p.OneTemplatePerCorner = c.Fiducial.OneTemplatePerCorner
	if c.Fiducial.Refine == fiducial.RefineFixed.String() {
		p.Refine = fiducial.RefineFixed
	}
	if c.Fiducial.Figures {
		p = p.WithFigures(c.WorkDir(), c.Fiducial.FigureDPI)
	}
	return p, nil
}

// CanvasDir is where padded scans are written.
func (c Config) CanvasDir() string { return filepath.Join(c.OutputDir, CanvasFolder) }

// ReprojectDir is where standardized scans are written.
func (c Config) ReprojectDir() string { return filepath.Join(c.OutputDir, ReprojectFolder) }

// ResizeDir is where resampled scans are written.
func (c Config) ResizeDir() string { return filepath.Join(c.OutputDir, ResizeFolder) }

// WorkDir holds the fiducial audit figures.
func (c Config) WorkDir() string {
	return filepath.Join(c.OutputDir, "_temp_corners_"+c.Dataset)
}

// TablePath is the fiducial coordinate table written by detection.
func (c Config) TablePath() string {
	return filepath.Join(c.OutputDir, results.TableName(c.Dataset))
}

// DetectionInputDir is the folder fiducial detection reads: the padded
// scans when canvas sizing runs or has run, else the raw input.
func (c Config) DetectionInputDir() string {
	if c.HasStep(StepCanvas) {
		return c.CanvasDir()
	}
	if fi, err := os.Stat(c.CanvasDir()); err == nil && fi.IsDir() {
		return c.CanvasDir()
	}
	return c.InputDir
}
