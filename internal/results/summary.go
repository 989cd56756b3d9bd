package results

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"airphoto-prep/internal/fiducial"
)

// Summary accumulates the end-of-run counts. Like the writers it belongs to
// the single goroutine that drains the worker results.
type Summary struct {
	Images     int
	Resolved   int
	Unresolved int // all corners terminal but at least one flagged
	Abandoned  int // missing templates or task failure
	Flagged    int // corners flagged for review
	Circle     int // corners accepted through the circle fallback
	Retried    int // corners accepted on the widened crop

	// Confidences of every template-matched corner, accepted or not.
	Confidences []float64
}

// Add records the outcome of one image. A nil set counts as abandoned.
func (s *Summary) Add(set *fiducial.FiducialSet) {
	s.Images++
	if set == nil {
		s.Abandoned++
		return
	}
	if set.Resolved() {
		s.Resolved++
	} else {
		s.Unresolved++
	}
	for _, c := range set.Corners {
		switch {
		case c.State == fiducial.FlaggedForReview:
			s.Flagged++
		case c.Match.Method == fiducial.MethodCircle:
			s.Circle++
		case c.Match.Method == fiducial.MethodRetry:
			s.Retried++
		}
		if c.Match.Method == fiducial.MethodTemplate || c.Match.Method == fiducial.MethodRetry {
			s.Confidences = append(s.Confidences, c.Match.Confidence)
		}
	}
}

// ConfidenceStats returns the mean and the 5th percentile of the recorded
// confidences.
func (s *Summary) ConfidenceStats() (mean, p05 float64, ok bool) {
	if len(s.Confidences) == 0 {
		return 0, 0, false
	}
	sorted := make([]float64, len(s.Confidences))
	copy(sorted, s.Confidences)
	sort.Float64s(sorted)
	return stat.Mean(sorted, nil), stat.Quantile(0.05, stat.Empirical, sorted, nil), true
}

// Warnings returns the aggregate problems worth reporting at end of run.
func (s *Summary) Warnings() []string {
	var w []string
	if n := s.Unresolved + s.Abandoned; n > 0 {
		w = append(w, fmt.Sprintf("%d of %d images unresolved (%d abandoned)", n, s.Images, s.Abandoned))
	}
	if s.Flagged > 0 {
		w = append(w, fmt.Sprintf("%d corners flagged for manual review", s.Flagged))
	}
	if s.Circle > 0 {
		w = append(w, fmt.Sprintf("%d corners resolved by circle fallback only", s.Circle))
	}
	return w
}
