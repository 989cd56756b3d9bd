// Package pipeline chains the preprocessing steps of a dataset: canvas
// sizing, fiducial detection, reprojection and resizing. Each step reads the
// folder written by the previous one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/ausocean/utils/logging"

	"airphoto-prep/internal/batch"
	"airphoto-prep/internal/canvas"
	"airphoto-prep/internal/config"
	"airphoto-prep/internal/fiducial"
	"airphoto-prep/internal/figure"
	aimage "airphoto-prep/internal/image"
	"airphoto-prep/internal/ledger"
	"airphoto-prep/internal/reproject"
	"airphoto-prep/internal/resize"
	"airphoto-prep/internal/results"
	"airphoto-prep/pkg/geometry"
)

// Runner executes the selected steps of one configuration.
type Runner struct {
	cfg    config.Config
	log    logging.Logger
	ledger *ledger.DB
}

// New returns a runner. The configuration must already be validated.
func New(cfg config.Config, log logging.Logger) *Runner {
	return &Runner{cfg: cfg, log: log}
}

// Run executes every selected step in order and stops at the first step
// that fails as a whole. Per-image failures are logged and do not stop it.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()
	if r.cfg.Ledger != "" {
		db, err := ledger.Open(r.cfg.Ledger)
		if err != nil {
			return err
		}
		defer db.Close()
		r.ledger = db
	}

	for _, step := range config.AllSteps {
		if !r.cfg.HasStep(step) {
			continue
		}
		r.log.Info("starting step", "step", step, "dataset", r.cfg.Dataset)
		var err error
		switch step {
		case config.StepCanvas:
			err = r.Canvas(ctx)
		case config.StepFiducials:
			_, err = r.Fiducials(ctx)
		case config.StepReproject:
			err = r.Reproject(ctx)
		case config.StepResize:
			err = r.Resize(ctx)
		}
		if err != nil {
			return fmt.Errorf("step %s: %w", step, err)
		}
	}
	r.log.Info("processing completed", "dataset", r.cfg.Dataset, "elapsed", time.Since(start).Round(time.Second).String())
	return nil
}

// Canvas pads the raw scans to the dataset maximum size.
func (r *Runner) Canvas(ctx context.Context) error {
	paths, err := aimage.List(r.cfg.InputDir)
	if err != nil {
		return err
	}
	rep, err := canvas.Run(ctx, paths, r.cfg.CanvasDir(), r.cfg.Workers, r.log)
	if err != nil {
		return err
	}
	return failures("canvas sizing", len(rep.Failed), len(paths))
}

// Reproject warps the detection inputs onto the standard fiducial frame.
func (r *Runner) Reproject(ctx context.Context) error {
	coords, err := results.LoadTable(r.cfg.TablePath())
	if err != nil {
		return err
	}
	paths, err := aimage.List(r.cfg.DetectionInputDir())
	if err != nil {
		return err
	}
	var p reproject.Params
	for i, t := range r.cfg.Reproject.Targets {
		p.Targets[i] = geometry.Point2D{X: t[0], Y: t[1]}
	}
	p.Size = image.Pt(r.cfg.Reproject.Width, r.cfg.Reproject.Height)

	rep, err := reproject.Run(ctx, paths, coords, r.cfg.ReprojectDir(), p, r.cfg.Workers, r.log)
	if err != nil {
		return err
	}
	if len(rep.Missing) > 0 {
		r.log.Warning("images without coordinates were not reprojected", "count", len(rep.Missing))
	}
	return failures("reprojection", len(rep.Failed), len(paths))
}

// Resize resamples the reprojected scans.
func (r *Runner) Resize(ctx context.Context) error {
	paths, err := aimage.List(r.cfg.ReprojectDir())
	if err != nil {
		return err
	}
	p := resize.Params{
		InputDPI:  r.cfg.Resize.InputDPI,
		OutputDPI: r.cfg.Resize.OutputDPI,
		Sharpen:   r.cfg.Resize.Sharpen,
		CLAHE:     r.cfg.Resize.CLAHE,
	}
	rep, err := resize.Run(ctx, paths, r.cfg.ResizeDir(), p, r.cfg.Workers, r.log)
	if err != nil {
		return err
	}
	return failures("resizing", len(rep.Failed), len(paths))
}

// failures turns a step where every image failed into an error.
func failures(step string, failed, total int) error {
	if total > 0 && failed == total {
		return fmt.Errorf("%s failed for all %d images", step, total)
	}
	return nil
}

// detection is the per-image result handed from a worker to the writer.
type detection struct {
	set     *fiducial.FiducialSet
	reviews []fiducial.ReviewEntry
}

// Fiducials detects the four fiducial marks of every image and writes the
// coordinate table, the review log and, when configured, the ledger.
// Workers only detect; the single loop draining their results owns every
// writer.
func (r *Runner) Fiducials(ctx context.Context) (*results.Summary, error) {
	params, err := r.cfg.FiducialParams()
	if err != nil {
		return nil, err
	}
	lib, err := fiducial.LoadLibrary(r.cfg.TemplateDir, r.cfg.Dataset, r.log)
	if err != nil {
		return nil, err
	}
	defer lib.Close()

	det := fiducial.NewDetector(lib, params, r.log)
	if params.WorkDir != "" {
		det = det.WithAuditor(figure.NewWriter(params.WorkDir, params.FigureDPI))
	}

	paths, err := aimage.List(r.cfg.DetectionInputDir())
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images in %s", r.cfg.DetectionInputDir())
	}

	table, err := results.CreateTable(r.cfg.TablePath())
	if err != nil {
		return nil, err
	}
	defer table.Close()
	review := results.NewReviewLog(results.ReviewPath(table.Path()))
	defer review.Close()

	r.log.Info("detecting fiducials", "images", len(paths), "templates", lib.Count(),
		"crop", params.CropSize, "stripe", params.Stripe, "threshold", params.Threshold)

	// The channel is drained to closure even after a write failure: workers
	// still hold the library's patches until the pool shuts down.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sum := &results.Summary{}
	var writeErr error
	n := 0
	for res := range batch.Run(runCtx, paths, r.cfg.Workers, func(_ context.Context, path string) (detection, error) {
		set, reviews, err := det.DetectImage(path)
		return detection{set: set, reviews: reviews}, err
	}) {
		if writeErr != nil {
			continue
		}
		n++
		name := aimage.Stem(res.Item)
		r.log.Info(fmt.Sprintf("[%d/%d] %s", n, len(paths), name))
		if err := r.record(name, res, table, review, sum); err != nil {
			r.log.Error("could not write results, stopping detection", "image", name, "error", err)
			writeErr = err
			cancel()
		}
	}
	if writeErr != nil {
		return sum, writeErr
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	r.report(sum, params.Threshold, table, review)
	return sum, nil
}

// record writes one detection outcome. Only write failures are returned.
func (r *Runner) record(name string, res batch.Result[detection], table *results.Table, review *results.ReviewLog, sum *results.Summary) error {
	set := res.Value.set
	if err := review.Append(res.Value.reviews...); err != nil {
		return err
	}

	if res.Err != nil || set == nil {
		var pe *batch.PanicError
		switch {
		case errors.As(res.Err, &pe):
			r.log.Error("detection panicked", "image", name, "panic", fmt.Sprint(pe.Value))
		case errors.Is(res.Err, context.Canceled):
		default:
			r.log.Error("image abandoned", "image", name, "error", res.Err)
		}
		sum.Add(nil)
		if r.ledger != nil {
			if err := r.ledger.RecordAbandoned(r.cfg.Dataset, name, res.Err); err != nil {
				r.log.Warning("could not record image in ledger", "image", name, "error", err)
			}
		}
		return nil
	}

	sum.Add(set)
	if set.Resolved() {
		if err := table.Append(set); err != nil {
			return err
		}
	} else {
		for _, c := range set.Flagged() {
			r.log.Warning("corner flagged for review", "image", name, "corner", c.String(),
				"confidence", set.Corners[c].Match.Confidence)
		}
	}
	if r.ledger != nil {
		if err := r.ledger.Record(r.cfg.Dataset, set); err != nil {
			r.log.Warning("could not record image in ledger", "image", name, "error", err)
		}
	}
	return nil
}

func (r *Runner) report(sum *results.Summary, threshold float64, table *results.Table, review *results.ReviewLog) {
	r.log.Info("fiducial detection completed", "images", sum.Images, "resolved", sum.Resolved,
		"table", table.Path(), "rows", table.Rows())
	for _, w := range sum.Warnings() {
		r.log.Warning(w)
	}
	if review.Count() > 0 {
		r.log.Warning("corners to check manually", "count", review.Count(), "file", review.Path())
	}

	mean, p05, ok := sum.ConfidenceStats()
	if !ok {
		return
	}
	r.log.Info("match confidence", "mean", mean, "p05", p05)
	hist := filepath.Join(r.cfg.OutputDir, "_confidence_"+r.cfg.Dataset+".png")
	if err := figure.ConfidenceHistogram(hist, r.cfg.Dataset, sum.Confidences, threshold); err != nil {
		r.log.Warning("could not save confidence histogram", "error", err)
	}
}
