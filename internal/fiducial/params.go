package fiducial

// Params controls corner cropping, matching and escalation.
type Params struct {
	// Corner crops
	CropSize    int     // S, square crop edge in pixels
	Stripe      float64 // p, stripe width as a fraction of the image dimension
	StripeSides Sides   // edges that carry a stripe

	// Widened retry
	RetryGrowth     int     // added to CropSize on retry
	RetryStripeStep float64 // subtracted from Stripe on retry, floored at 0

	// Acceptance
	Threshold            float64 // minimum normalized correlation to accept
	OneTemplatePerCorner bool    // only try the first template of each corner

	// Shi-Tomasi refinement around the match
	Refine            RefineMode
	MaxCorners        int
	CornerQuality     float64
	CornerMinDistance float64
	RefineCutoff      float64 // px; interest points at or beyond this are ignored
	RefinePoints      int     // at most this many nearest points are averaged

	Circle CircleParams

	// Audit output; figures are skipped when WorkDir is empty.
	WorkDir   string
	FigureDPI int
}

// RefineMode selects how the match is turned into a mark centre.
type RefineMode int

const (
	// RefineBarycentre averages the interest points nearest the anchor.
	RefineBarycentre RefineMode = iota
	// RefineFixed uses the template anchor unmoved.
	RefineFixed
)

func (m RefineMode) String() string {
	if m == RefineFixed {
		return "fixed"
	}
	return "barycentre"
}

// CircleParams tunes the Hough-circle fallback.
type CircleParams struct {
	BlurSize    int     // Gaussian kernel edge, odd
	DP          float64 // inverse accumulator resolution
	MinDist     float64 // px between detected centres
	Param1      float64 // Canny upper threshold
	Param2Start int     // initial accumulator threshold
	Param2Step  int     // decrement per unsuccessful pass
	Param2Floor int     // passes stop once the threshold drops below this
	RadiusSlack int     // radius range is anchor.X +/- RadiusSlack
}

// DefaultParams returns the detection defaults used for Wild RC5a scans
// digitised at roughly 1200 dpi.
func DefaultParams() Params {
	return Params{
		CropSize:    2500,
		Stripe:      0.05,
		StripeSides: Sides{SideRight: true, SideBottom: true},

		RetryGrowth:     400,
		RetryStripeStep: 0.02,

		Threshold:            0.85,
		OneTemplatePerCorner: true,

		Refine:            RefineBarycentre,
		MaxCorners:        25,
		CornerQuality:     0.01,
		CornerMinDistance: 3,
		RefineCutoff:      15,
		RefinePoints:      4,

		Circle: DefaultCircleParams(),

		FigureDPI: 200,
	}
}

// DefaultCircleParams returns the Hough fallback defaults.
func DefaultCircleParams() CircleParams {
	return CircleParams{
		BlurSize:    11,
		DP:          1,
		MinDist:     500,
		Param1:      50,
		Param2Start: 120,
		Param2Step:  2,
		Param2Floor: 14,
		RadiusSlack: 50,
	}
}

// WithCrop returns a copy of params with a new crop size and stripe layout.
func (p Params) WithCrop(size int, stripe float64, sides Sides) Params {
	p.CropSize = size
	p.Stripe = stripe
	p.StripeSides = sides
	return p
}

// WithThreshold returns a copy of params with a new acceptance threshold.
func (p Params) WithThreshold(t float64) Params {
	p.Threshold = t
	return p
}

// WithFigures returns a copy of params that writes audit figures under dir.
func (p Params) WithFigures(dir string, dpi int) Params {
	p.WorkDir = dir
	if dpi > 0 {
		p.FigureDPI = dpi
	}
	return p
}

// retry returns the widened crop parameters used by the second attempt.
func (p Params) retry() (size int, stripe float64) {
	stripe = p.Stripe - p.RetryStripeStep
	if stripe < 0 {
		stripe = 0
	}
	return p.CropSize + p.RetryGrowth, stripe
}
