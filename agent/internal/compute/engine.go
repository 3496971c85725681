package compute

import (
	"log/slog"
	"time"

	"github.com/focustrack/focustrack/pkg/types"
)

// Default policy values applied when the configuration leaves them unset.
const (
	DefaultThreshold = 0.7
	DefaultMinSave   = 10 * time.Second
)

// Policy holds the classification values for one session.
type Policy struct {
	// Threshold is the normalized score below which a sample is low-attention.
	Threshold float64

	// MinSave is the shortest closed interval that is kept.
	MinSave time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, MinSave: DefaultMinSave}
}

// EventKind classifies the outcome of feeding one sample to the Engine.
type EventKind string

const (
	EventSkipped   EventKind = "skipped"   // no observation; state untouched
	EventAttentive EventKind = "attentive" // at or above threshold while neutral
	EventOpened    EventKind = "opened"
	EventExtended  EventKind = "extended"
	EventKept      EventKind = "kept"      // an interval closed and was summarized
	EventDiscarded EventKind = "discarded" // an interval closed but was too short
)

// Event reports what the Engine did with one sample or finalize call.
type Event struct {
	Kind EventKind

	// Score is the normalized score; zero when Kind is EventSkipped.
	Score float64

	// Summary is set when Kind is EventKept.
	Summary *types.IntervalSummary
}

// Engine owns the interval builder state and the accumulated summaries for
// one session. It is not safe for concurrent use; the session monitor
// serializes access.
type Engine struct {
	policy    Policy
	filter    Filter
	builder   BuilderState
	summaries []types.IntervalSummary
	discarded int
}

// NewEngine returns an Engine in the Neutral state.
func NewEngine(p Policy) *Engine {
	e := &Engine{}
	e.Reset(p)
	return e
}

// Reset discards all state and adopts p for subsequent samples.
func (e *Engine) Reset(p Policy) {
	e.policy = p
	e.filter = Filter{MinSave: p.MinSave}
	e.builder = BuilderState{}
	e.summaries = nil
	e.discarded = 0
}

// Policy returns the policy in effect.
func (e *Engine) Policy() Policy { return e.policy }

// Process normalizes the sample's raw score and applies it at the sample's
// capture time. A sample without a usable score leaves the state untouched.
func (e *Engine) Process(s types.Sample) Event {
	score, ok := NormalizeSample(s.RawScore)
	if !ok {
		return Event{Kind: EventSkipped}
	}

	next, closed, tr := Step(e.builder, e.policy.Threshold, s.CapturedAtMs(), score)
	e.builder = next

	switch tr {
	case TransitionOpened:
		return Event{Kind: EventOpened, Score: score}
	case TransitionExtended:
		return Event{Kind: EventExtended, Score: score}
	case TransitionClosed:
		ev := e.accept(closed)
		ev.Score = score
		return ev
	default:
		return Event{Kind: EventAttentive, Score: score}
	}
}

// Finalize closes any open interval at nowMs. Calling it again is a no-op
// that returns an EventAttentive event with no summary.
func (e *Engine) Finalize(nowMs int64) Event {
	next, closed := Finish(e.builder, nowMs)
	e.builder = next
	if closed == nil {
		return Event{Kind: EventAttentive}
	}
	return e.accept(closed)
}

func (e *Engine) accept(closed *types.Interval) Event {
	sum, ok := e.filter.Accept(*closed)
	if !ok {
		e.discarded++
		slog.Debug("compute: interval discarded",
			"start", closed.StartMs, "end", *closed.EndMs, "min_save", e.policy.MinSave)
		return Event{Kind: EventDiscarded}
	}
	e.summaries = append(e.summaries, sum)
	return Event{Kind: EventKept, Summary: &sum}
}

// State returns the builder state.
func (e *Engine) State() State { return e.builder.State() }

// Open returns a copy of the open interval, if any.
func (e *Engine) Open() (types.Interval, bool) { return e.builder.Open() }

// Summaries returns a copy of the intervals kept so far, in close order.
func (e *Engine) Summaries() []types.IntervalSummary {
	out := make([]types.IntervalSummary, len(e.summaries))
	copy(out, e.summaries)
	return out
}

// Discarded returns how many closed intervals were too short to keep.
func (e *Engine) Discarded() int { return e.discarded }
