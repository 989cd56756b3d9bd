package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"airphoto-prep/internal/fiducial"
)

func validConfig() Config {
	return DefaultConfig().WithDataset("D1").WithFolders("/scans", "/templates", "/out")
}

func TestDefaultConfigValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	p, err := validConfig().FiducialParams()
	if err != nil {
		t.Fatalf("FiducialParams: %v", err)
	}
	if p.Stripe != 0.05 || !p.StripeSides[fiducial.SideRight] || !p.StripeSides[fiducial.SideBottom] {
		t.Errorf("default stripe = %v %v", p.Stripe, p.StripeSides)
	}
	if p.WorkDir != filepath.Join("/out", "_temp_corners_D1") {
		t.Errorf("WorkDir = %q", p.WorkDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"no dataset", func(c *Config) { c.Dataset = "" }, "dataset"},
		{"stripe too wide", func(c *Config) { c.Fiducial.Stripe = 0.3 }, "stripe"},
		{"bad side", func(c *Config) { c.Fiducial.StripeSides = "middle" }, "middle"},
		{"zero threshold", func(c *Config) { c.Fiducial.Threshold = 0 }, "threshold"},
		{"sharpen 3", func(c *Config) { c.Resize.Sharpen = 3 }, "sharpen"},
		{"bad step", func(c *Config) { c.Steps = []string{"ocr"} }, "ocr"},
		{"bad refine", func(c *Config) { c.Fiducial.Refine = "median" }, "median"},
		{"no templates", func(c *Config) { c.TemplateDir = "" }, "template"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestTemplatesOnlyNeededForDetection(t *testing.T) {
	c := validConfig().WithSteps(StepReproject, StepResize)
	c.TemplateDir = ""
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseSteps(t *testing.T) {
	steps, err := ParseSteps(" Fiducials, resize ")
	if err != nil {
		t.Fatalf("ParseSteps: %v", err)
	}
	if len(steps) != 2 || steps[0] != StepFiducials || steps[1] != StepResize {
		t.Errorf("steps = %v", steps)
	}
	all, _ := ParseSteps("all")
	if len(all) != len(AllSteps) {
		t.Errorf("all = %v", all)
	}
	if _, err := ParseSteps("canvas,warp"); err == nil {
		t.Error("expected error for unknown step")
	}
}

// Precedence: file over defaults, environment over file, flags over both.
func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	if err := os.WriteFile(path, []byte(`{"dataset":"FILE","fiducial":{"crop_size":1800,"threshold":0.8}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(DefaultConfig(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Dataset != "FILE" || c.Fiducial.CropSize != 1800 {
		t.Fatalf("file not applied: %+v", c)
	}
	if c.Fiducial.Stripe != 0.05 {
		t.Errorf("missing key lost its default: stripe = %v", c.Fiducial.Stripe)
	}

	t.Setenv("GAPP_DATASET", "ENV")
	t.Setenv("GAPP_THRESHOLD", "0.7")
	c, err = c.ApplyEnv()
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if c.Dataset != "ENV" || c.Fiducial.Threshold != 0.7 || c.Fiducial.CropSize != 1800 {
		t.Errorf("env not applied: %+v", c)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	DefineFlags(fs)
	if err := fs.Parse([]string{"-dataset", "FLAG", "-sharpen", "2"}); err != nil {
		t.Fatal(err)
	}
	c, err = c.ApplyFlags(fs)
	if err != nil {
		t.Fatalf("ApplyFlags: %v", err)
	}
	if c.Dataset != "FLAG" || c.Resize.Sharpen != 2 {
		t.Errorf("flags not applied: %+v", c)
	}
	if c.Fiducial.Threshold != 0.7 {
		t.Errorf("unset flag overrode env: threshold = %v", c.Fiducial.Threshold)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GAPP_TEST_CAMERA=Wild RC8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GAPP_TEST_CAMERA", "")
	os.Unsetenv("GAPP_TEST_CAMERA")
	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("GAPP_TEST_CAMERA"); got != "Wild RC8" {
		t.Errorf("GAPP_TEST_CAMERA = %q", got)
	}
	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "run.json")
	c := validConfig()
	c.Resize.CLAHE = true
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadFile(DefaultConfig(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.Dataset != "D1" || !got.Resize.CLAHE || got.Reproject.Targets != c.Reproject.Targets {
		t.Errorf("round trip = %+v", got)
	}
}

func TestFolders(t *testing.T) {
	c := validConfig()
	if c.CanvasDir() != filepath.Join("/out", "01_CanvasSized") {
		t.Errorf("CanvasDir = %s", c.CanvasDir())
	}
	if c.TablePath() != filepath.Join("/out", "_fiducial_marks_coordinates_D1.csv") {
		t.Errorf("TablePath = %s", c.TablePath())
	}
	c = c.WithSteps(StepFiducials)
	c.OutputDir = t.TempDir()
	if c.DetectionInputDir() != "/scans" {
		t.Errorf("DetectionInputDir = %s", c.DetectionInputDir())
	}
}

func TestStripeFlagListsChoices(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	DefineFlags(fs)
	usage := fs.Lookup("stripe").Usage
	for _, want := range []string{"0, 0.01", "0.15, 0.2"} {
		if !strings.Contains(usage, want) {
			t.Errorf("stripe usage %q missing %q", usage, want)
		}
	}
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	t.Setenv("GAPP_THRESHOLD", "0,9")
	t.Setenv("GAPP_WORKERS", "not-a-number")
	t.Setenv("GAPP_CLAHE", "maybe")
	t.Setenv("GAPP_DATASET", "ENV")

	c, err := validConfig().ApplyEnv()
	if err == nil {
		t.Fatal("expected an error for unparsable variables")
	}
	for _, want := range []string{"GAPP_THRESHOLD", "0,9", "GAPP_WORKERS", "GAPP_CLAHE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	if c.Fiducial.Threshold != 0.85 || c.Workers != 0 || c.Resize.CLAHE {
		t.Errorf("unparsable variables changed the config: %+v", c)
	}
	if c.Dataset != "ENV" {
		t.Errorf("valid variable not applied: dataset = %q", c.Dataset)
	}
}
