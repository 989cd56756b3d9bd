package fiducial

import (
	"image"

	"airphoto-prep/pkg/geometry"
)

// Method records how a corner coordinate was obtained.
type Method int

const (
	MethodNone     Method = iota
	MethodTemplate        // template match on the default crop
	MethodRetry           // template match on the widened crop
	MethodCircle          // Hough-circle fallback
)

func (m Method) String() string {
	switch m {
	case MethodTemplate:
		return "template"
	case MethodRetry:
		return "retry"
	case MethodCircle:
		return "circle"
	default:
		return "none"
	}
}

// State is a step of the per-corner matching state machine.
type State int

const (
	Unattempted State = iota
	Matched
	Retried
	CircleFallback
	Accepted
	FlaggedForReview
)

func (s State) String() string {
	switch s {
	case Unattempted:
		return "unattempted"
	case Matched:
		return "matched"
	case Retried:
		return "retried"
	case CircleFallback:
		return "circle_fallback"
	case Accepted:
		return "accepted"
	case FlaggedForReview:
		return "flagged"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	return s == Accepted || s == FlaggedForReview
}

// Match is one candidate coordinate for a corner.
type Match struct {
	Template   string           // template name, empty for circle matches
	Local      geometry.Point2D // crop-local coordinate
	Point      geometry.Point2D // full-image coordinate
	Box        image.Rectangle  // matched template footprint, crop-local
	Confidence float64          // normalized cross-correlation, 0 for circles
	Method     Method
	Origin     image.Point // origin of the crop the match was made in
}

// CornerResult is the terminal outcome for one corner together with the
// states it went through and every attempt made.
type CornerResult struct {
	Corner   Corner
	State    State
	Match    Match
	Trail    []State
	Attempts []Match
}

// Attempted reports whether the corner passed through state s.
func (r CornerResult) Attempted(s State) bool {
	for _, t := range r.Trail {
		if t == s {
			return true
		}
	}
	return false
}

// FiducialSet holds the four corner outcomes of one image.
type FiducialSet struct {
	Image   string
	Size    image.Point
	Corners [4]CornerResult
}

// Resolved reports whether all four corners were accepted.
func (fs *FiducialSet) Resolved() bool {
	for _, c := range fs.Corners {
		if c.State != Accepted {
			return false
		}
	}
	return true
}

// Points returns the four coordinates in table order.
func (fs *FiducialSet) Points() [4]geometry.Point2D {
	var pts [4]geometry.Point2D
	for i, c := range fs.Corners {
		pts[i] = c.Match.Point
	}
	return pts
}

// Flagged returns the corners that ended in manual review.
func (fs *FiducialSet) Flagged() []Corner {
	var out []Corner
	for _, c := range fs.Corners {
		if c.State == FlaggedForReview {
			out = append(out, c.Corner)
		}
	}
	return out
}

// ReviewEntry is a corner that needs a human look.
type ReviewEntry struct {
	Image      string
	Corner     Corner
	X, Y       float64
	Confidence float64
}
