package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GAPP_"

// LoadEnv loads a dotenv file into the process environment without
// replacing variables that are already set. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ApplyEnv overlays GAPP_* environment variables onto c. Unset variables
// keep the current value. Variables that do not parse are reported together
// in the returned error, and keep the current value too.
func (c Config) ApplyEnv() (Config, error) {
	var e envReader
	c.Dataset = getEnv("DATASET", c.Dataset)
	c.Camera = getEnv("CAMERA", c.Camera)
	c.InputDir = getEnv("INPUT_DIR", c.InputDir)
	c.TemplateDir = getEnv("TEMPLATE_DIR", c.TemplateDir)
	c.OutputDir = getEnv("OUTPUT_DIR", c.OutputDir)
	if v := getEnv("STEPS", ""); v != "" {
		steps, err := ParseSteps(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%sSTEPS: %w", EnvPrefix, err))
		} else {
			c.Steps = steps
		}
	}
	c.Workers = e.getEnvAsInt("WORKERS", c.Workers)

	c.Fiducial.CropSize = e.getEnvAsInt("CROP_SIZE", c.Fiducial.CropSize)
	c.Fiducial.Stripe = e.getEnvAsFloat("STRIPE", c.Fiducial.Stripe)
	c.Fiducial.StripeSides = getEnv("STRIPE_SIDES", c.Fiducial.StripeSides)
	c.Fiducial.Threshold = e.getEnvAsFloat("THRESHOLD", c.Fiducial.Threshold)
	c.Fiducial.RetryGrowth = e.getEnvAsInt("RETRY_GROWTH", c.Fiducial.RetryGrowth)
	c.Fiducial.RetryStripeStep = e.getEnvAsFloat("RETRY_STRIPE_STEP", c.Fiducial.RetryStripeStep)
	c.Fiducial.OneTemplatePerCorner = e.getEnvAsBool("ONE_TEMPLATE", c.Fiducial.OneTemplatePerCorner)
	c.Fiducial.Refine = getEnv("REFINE", c.Fiducial.Refine)
	c.Fiducial.FigureDPI = e.getEnvAsInt("FIGURE_DPI", c.Fiducial.FigureDPI)
	c.Fiducial.Figures = e.getEnvAsBool("FIGURES", c.Fiducial.Figures)

	c.Reproject.Width = e.getEnvAsInt("OUTPUT_WIDTH", c.Reproject.Width)
	c.Reproject.Height = e.getEnvAsInt("OUTPUT_HEIGHT", c.Reproject.Height)

	c.Resize.InputDPI = e.getEnvAsInt("INPUT_DPI", c.Resize.InputDPI)
	c.Resize.OutputDPI = e.getEnvAsInt("OUTPUT_DPI", c.Resize.OutputDPI)
	c.Resize.Sharpen = e.getEnvAsInt("SHARPEN", c.Resize.Sharpen)
	c.Resize.CLAHE = e.getEnvAsBool("CLAHE", c.Resize.CLAHE)

	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Ledger = getEnv("LEDGER", c.Ledger)
	return c, errors.Join(e.errs...)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(EnvPrefix + key)); value != "" {
		return value
	}
	return defaultValue
}

// envReader collects the parse errors of the typed getters.
type envReader struct {
	errs []error
}

func (e *envReader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, key, value, err))
}

func (e *envReader) getEnvAsInt(key string, defaultValue int) int {
	if value := getEnv(key, ""); value != "" {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
		e.fail(key, value, err)
	}
	return defaultValue
}

func (e *envReader) getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := getEnv(key, ""); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
		e.fail(key, value, err)
	}
	return defaultValue
}

func (e *envReader) getEnvAsBool(key string, defaultValue bool) bool {
	if value := getEnv(key, ""); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
		e.fail(key, value, err)
	}
	return defaultValue
}
