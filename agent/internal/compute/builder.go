package compute

import "github.com/focustrack/focustrack/pkg/types"

// State is the interval builder state.
type State int

const (
	// StateNeutral means no interval is open.
	StateNeutral State = iota
	// StateLow means one interval is open and accumulating samples.
	StateLow
)

func (s State) String() string {
	switch s {
	case StateNeutral:
		return "neutral"
	case StateLow:
		return "low"
	default:
		return "unknown"
	}
}

// Transition describes what one Step did.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionOpened
	TransitionExtended
	TransitionClosed
)

func (t Transition) String() string {
	switch t {
	case TransitionOpened:
		return "opened"
	case TransitionExtended:
		return "extended"
	case TransitionClosed:
		return "closed"
	default:
		return "none"
	}
}

// BuilderState is the complete interval builder state. The zero value is
// Neutral. Step and Finish never modify the state they are given.
type BuilderState struct {
	open *types.Interval
}

// State reports Neutral or Low.
func (b BuilderState) State() State {
	if b.open != nil {
		return StateLow
	}
	return StateNeutral
}

// Open returns a copy of the open interval, if any.
func (b BuilderState) Open() (types.Interval, bool) {
	if b.open == nil {
		return types.Interval{}, false
	}
	cp := *b.open
	cp.Samples = append([]float64(nil), b.open.Samples...)
	return cp, true
}

// Step applies one normalized score observed at atMs. Scores strictly below
// threshold are low; a score equal to threshold counts as attentive. When the
// step closes an interval it is returned with EndMs set to atMs.
func Step(b BuilderState, threshold float64, atMs int64, s float64) (BuilderState, *types.Interval, Transition) {
	low := s < threshold
	switch {
	case b.open == nil && low:
		return BuilderState{open: &types.Interval{StartMs: atMs, Samples: []float64{s}}}, nil, TransitionOpened

	case b.open != nil && low:
		// The three-index slice forces a fresh backing array so the caller's
		// state keeps its own samples.
		n := len(b.open.Samples)
		next := &types.Interval{
			StartMs: b.open.StartMs,
			Samples: append(b.open.Samples[:n:n], s),
		}
		return BuilderState{open: next}, nil, TransitionExtended

	case b.open != nil:
		return BuilderState{}, closeAt(b.open, atMs), TransitionClosed

	default:
		return b, nil, TransitionNone
	}
}

// Finish closes any open interval at nowMs and returns to Neutral. It is
// idempotent: finishing a Neutral state returns it unchanged and nil.
func Finish(b BuilderState, nowMs int64) (BuilderState, *types.Interval) {
	if b.open == nil {
		return b, nil
	}
	return BuilderState{}, closeAt(b.open, nowMs)
}

func closeAt(open *types.Interval, atMs int64) *types.Interval {
	// A clock step backwards must not produce end < start.
	if atMs < open.StartMs {
		atMs = open.StartMs
	}
	end := atMs
	return &types.Interval{
		StartMs: open.StartMs,
		EndMs:   &end,
		Samples: append([]float64(nil), open.Samples...),
	}
}
