package fiducial

import (
	"errors"
	"fmt"
	"image"

	"github.com/ausocean/utils/logging"
	"gocv.io/x/gocv"

	aimage "airphoto-prep/internal/image"
)

// Auditor receives the visual audit artifacts of a detection.
// Crops are only valid for the duration of the call.
type Auditor interface {
	// Overview is called once per image with the crop each corner's final
	// coordinate was found in.
	Overview(set *FiducialSet, crops [4]CornerCrop, templates [4]*Template) error
	// ToCheck is called for every corner flagged for review.
	ToCheck(set *FiducialSet, result CornerResult, crop CornerCrop, tpl *Template) error
}

// Detector resolves the fiducial marks of whole images. It holds no
// per-image state and may be shared by concurrent workers.
type Detector struct {
	lib     *Library
	params  Params
	log     logging.Logger
	auditor Auditor
}

// NewDetector returns a detector over a loaded template library.
func NewDetector(lib *Library, p Params, log logging.Logger) *Detector {
	return &Detector{lib: lib, params: p, log: log}
}

// WithAuditor returns a copy of the detector that reports audit figures to a.
func (d *Detector) WithAuditor(a Auditor) *Detector {
	c := *d
	c.auditor = a
	return &c
}

// Params returns the detection parameters.
func (d *Detector) Params() Params {
	return d.params
}

// DetectImage loads the image at path and resolves its four corners.
func (d *Detector) DetectImage(path string) (*FiducialSet, []ReviewEntry, error) {
	img, err := aimage.ReadGray(path)
	if err != nil {
		return nil, nil, err
	}
	defer img.Close()
	return d.Detect(img, aimage.Stem(path))
}

// Detect resolves the four corners of img.
//
// If a corner has no template the image is abandoned: the returned error
// wraps ErrMissingTemplate and one zero-coordinate review entry is returned
// per such corner. Otherwise every corner reaches Accepted or
// FlaggedForReview and a review entry is returned for each flagged corner.
func (d *Detector) Detect(img gocv.Mat, id string) (*FiducialSet, []ReviewEntry, error) {
	var templates [4][]*Template
	var reviews []ReviewEntry
	var missing []error
	for _, c := range Corners {
		ts, err := d.lib.ForCorner(c, d.params.OneTemplatePerCorner)
		if err != nil {
			missing = append(missing, err)
			reviews = append(reviews, ReviewEntry{Image: id, Corner: c})
			continue
		}
		templates[c] = ts
	}
	if len(missing) > 0 {
		err := fmt.Errorf("%s: abandoned: %w", id, errors.Join(missing...))
		d.log.Warning("image abandoned", "image", id, "error", err.Error())
		return nil, reviews, err
	}

	crops, err := ExtractCorners(img, id, d.params.CropSize, d.params.Stripe, d.params.StripeSides)
	if err != nil {
		return nil, nil, err
	}
	defer CloseCrops(crops[:])

	retrySize, retryStripe := d.params.retry()
	var retryCrops *[4]CornerCrop
	defer func() {
		if retryCrops != nil {
			CloseCrops(retryCrops[:])
		}
	}()
	widened := func() (*[4]CornerCrop, error) {
		if retryCrops == nil {
			rc, err := ExtractCorners(img, id, retrySize, retryStripe, d.params.StripeSides)
			if err != nil {
				return nil, err
			}
			retryCrops = &rc
		}
		return retryCrops, nil
	}

	set := &FiducialSet{Image: id, Size: image.Pt(img.Cols(), img.Rows())}
	for _, c := range Corners {
		steps := cornerSteps{
			match: func(retry bool) (Match, error) {
				crop := crops[c]
				method := MethodTemplate
				if retry {
					rc, err := widened()
					if err != nil {
						return Match{}, err
					}
					crop = rc[c]
					method = MethodRetry
				}
				m, err := d.bestOf(crop, templates[c])
				if err != nil {
					return Match{}, err
				}
				m.Method = method
				return m, nil
			},
			circle: func() (Match, bool) {
				return d.circle(crops[c], templates[c][0])
			},
		}

		res, err := resolveCorner(c, d.params.Threshold, steps)
		if err != nil {
			d.log.Warning("locator failed", "image", id, "corner", c.String(), "error", err.Error())
		}
		set.Corners[c] = res

		switch res.State {
		case Accepted:
			d.log.Debug("corner accepted", "image", id, "corner", c.String(),
				"method", res.Match.Method.String(), "confidence", res.Match.Confidence,
				"x", res.Match.Point.X, "y", res.Match.Point.Y)
		case FlaggedForReview:
			d.log.Warning("low confidence match", "image", id, "corner", c.String(),
				"confidence", res.Match.Confidence, "x", res.Match.Point.X, "y", res.Match.Point.Y)
			reviews = append(reviews, ReviewEntry{
				Image:      id,
				Corner:     c,
				X:          res.Match.Point.X,
				Y:          res.Match.Point.Y,
				Confidence: res.Match.Confidence,
			})
		}
	}

	if d.auditor != nil {
		d.audit(set, crops, retryCrops, templates)
	}
	return set, reviews, nil
}

// bestOf runs the locator for every template and keeps the highest score.
func (d *Detector) bestOf(crop CornerCrop, templates []*Template) (Match, error) {
	var best Match
	found := false
	var errs []error
	for _, tpl := range templates {
		m, err := Locate(crop.Crop, tpl, d.params)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !found || m.Confidence > best.Confidence {
			best = m
			found = true
		}
	}
	if !found {
		return Match{}, fmt.Errorf("%s %s: %w", crop.Image, crop.Corner, errors.Join(errs...))
	}
	best.Origin = crop.Origin
	best.Point = crop.ToImage(best.Local)
	return best, nil
}

// circle runs the Hough fallback over the default crop. The radius range is
// centred on the anchor column, which equals the template half-width.
func (d *Detector) circle(crop CornerCrop, tpl *Template) (Match, bool) {
	slack := d.params.Circle.RadiusSlack
	circle, ok := FindCircle(crop.Crop, tpl.Anchor.X-slack, tpl.Anchor.X+slack, d.params.Circle)
	if !ok {
		d.log.Debug("no circle found", "image", crop.Image, "corner", crop.Corner.String())
		return Match{}, false
	}
	r := int(circle.Radius)
	c := circle.Center.Round()
	return Match{
		Local:  circle.Center,
		Point:  crop.ToImage(circle.Center),
		Box:    image.Rect(c.X-r, c.Y-r, c.X+r, c.Y+r),
		Method: MethodCircle,
		Origin: crop.Origin,
	}, true
}

func (d *Detector) audit(set *FiducialSet, crops [4]CornerCrop, retry *[4]CornerCrop, templates [4][]*Template) {
	var shown [4]CornerCrop
	var tpls [4]*Template
	for _, c := range Corners {
		res := set.Corners[c]
		shown[c] = crops[c]
		if res.Match.Method == MethodRetry && retry != nil {
			shown[c] = retry[c]
		}
		tpls[c] = templateNamed(templates[c], res.Match.Template)

		if res.State == FlaggedForReview {
			if err := d.auditor.ToCheck(set, res, shown[c], tpls[c]); err != nil {
				d.log.Warning("could not save review figure", "image", set.Image, "corner", c.String(), "error", err.Error())
			}
		}
	}
	if err := d.auditor.Overview(set, shown, tpls); err != nil {
		d.log.Warning("could not save audit figure", "image", set.Image, "error", err.Error())
	}
}

func templateNamed(ts []*Template, name string) *Template {
	for _, t := range ts {
		if t.Name == name {
			return t
		}
	}
	if len(ts) > 0 {
		return ts[0]
	}
	return nil
}
