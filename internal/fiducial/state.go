package fiducial

import "errors"

// cornerSteps are the side-effecting operations the state machine drives.
// match runs the best-of-templates locator on the default (retry=false) or
// widened (retry=true) crop and returns an image-space match. circle runs
// the Hough fallback and returns an image-space match when a circle exists.
type cornerSteps struct {
	match  func(retry bool) (Match, error)
	circle func() (Match, bool)
}

// acceptable is the acceptance guard; a score equal to the threshold passes.
func acceptable(conf, threshold float64) bool {
	return conf >= threshold
}

// cornerMachine walks one corner from Unattempted to a terminal state.
type cornerMachine struct {
	threshold float64
	steps     cornerSteps
	result    CornerResult
	errs      []error
}

func newCornerMachine(c Corner, threshold float64, steps cornerSteps) *cornerMachine {
	return &cornerMachine{
		threshold: threshold,
		steps:     steps,
		result:    CornerResult{Corner: c, State: Unattempted, Trail: []State{Unattempted}},
	}
}

// resolveCorner runs the state machine to completion. The error joins any
// locator failures met on the way; the result is valid either way.
func resolveCorner(c Corner, threshold float64, steps cornerSteps) (CornerResult, error) {
	m := newCornerMachine(c, threshold, steps)
	for !m.result.State.Terminal() {
		m.step()
	}
	return m.result, errors.Join(m.errs...)
}

func (m *cornerMachine) enter(s State) {
	m.result.State = s
	m.result.Trail = append(m.result.Trail, s)
}

func (m *cornerMachine) step() {
	switch m.result.State {
	case Unattempted:
		m.attempt(false)
		m.enter(Matched)
	case Matched:
		switch {
		case m.bestAcceptable():
			b, _ := m.best()
			m.accept(b)
		case !m.result.Attempted(Retried):
			m.enter(Retried)
		default:
			m.enter(CircleFallback)
		}
	case Retried:
		m.attempt(true)
		m.enter(Matched)
	case CircleFallback:
		if match, ok := m.steps.circle(); ok {
			m.result.Attempts = append(m.result.Attempts, match)
			m.accept(match)
			return
		}
		m.flag()
	}
}

func (m *cornerMachine) attempt(retry bool) {
	match, err := m.steps.match(retry)
	if err != nil {
		m.errs = append(m.errs, err)
		return
	}
	m.result.Attempts = append(m.result.Attempts, match)
}

// best returns the highest-scoring template attempt so far.
func (m *cornerMachine) best() (Match, bool) {
	var best Match
	found := false
	for _, a := range m.result.Attempts {
		if a.Method == MethodCircle {
			continue
		}
		if !found || a.Confidence > best.Confidence {
			best = a
			found = true
		}
	}
	return best, found
}

func (m *cornerMachine) bestAcceptable() bool {
	b, ok := m.best()
	return ok && acceptable(b.Confidence, m.threshold)
}

func (m *cornerMachine) accept(match Match) {
	m.result.Match = match
	m.enter(Accepted)
}

// flag keeps the best failing coordinate for downstream use.
func (m *cornerMachine) flag() {
	if b, ok := m.best(); ok {
		m.result.Match = b
	} else {
		m.result.Match = Match{Method: MethodNone}
	}
	m.enter(FlaggedForReview)
}
