package types

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// SubjectRef identifies what a session was recorded against: one learner
// watching one course of one class. Latest-report lookups are keyed by it.
type SubjectRef struct {
	Learner  string `json:"learner" yaml:"learner"`
	ClassID  int64  `json:"class_id" yaml:"class_id"`
	CourseID int64  `json:"course_id" yaml:"course_id"`
}

// Key returns a stable string form, e.g. "alice/3/12".
func (s SubjectRef) Key() string {
	return s.Learner + "/" + strconv.FormatInt(s.ClassID, 10) + "/" + strconv.FormatInt(s.CourseID, 10)
}

// Validate reports whether s names a complete subject.
func (s SubjectRef) Validate() error {
	if s.Learner == "" {
		return errors.New("subject: learner is required")
	}
	if s.ClassID <= 0 {
		return fmt.Errorf("subject: class_id must be positive, got %d", s.ClassID)
	}
	if s.CourseID <= 0 {
		return fmt.Errorf("subject: course_id must be positive, got %d", s.CourseID)
	}
	return nil
}

// SubjectFromQuery reads a subject from the learner, class_id and course_id
// query parameters and validates it.
func SubjectFromQuery(q url.Values) (SubjectRef, error) {
	s := SubjectRef{Learner: q.Get("learner")}
	var err error
	if v := q.Get("class_id"); v != "" {
		if s.ClassID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return s, errors.New("subject: class_id must be an integer")
		}
	}
	if v := q.Get("course_id"); v != "" {
		if s.CourseID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return s, errors.New("subject: course_id must be an integer")
		}
	}
	return s, s.Validate()
}

// Sample is one timestamped observation produced by a sampling tick.
// RawScore is nil when the scorer returned no usable score.
type Sample struct {
	CapturedAt time.Time
	RawScore   *float64
}

// CapturedAtMs returns the capture time in epoch milliseconds.
func (s Sample) CapturedAtMs() int64 { return s.CapturedAt.UnixMilli() }

// Interval is a contiguous low-attention span built incrementally.
// EndMs is nil while the interval is still open.
type Interval struct {
	StartMs int64
	EndMs   *int64
	Samples []float64
}

// Closed reports whether the interval has an end.
func (iv Interval) Closed() bool { return iv.EndMs != nil }

// IntervalSummary is the persisted form of a closed Interval.
type IntervalSummary struct {
	Start       int64   `json:"start"`
	End         int64   `json:"end"`
	DurationSec int     `json:"durationSec"`
	AvgScore    float64 `json:"avgScore"`
	Samples     int     `json:"samples,omitempty"`
}

// Range returns the summary bounds as a Range.
func (s IntervalSummary) Range() Range { return Range{Start: s.Start, End: s.End} }

// SessionReport is the summarized outcome of one monitoring session.
type SessionReport struct {
	SessionID        string            `json:"sessionId"`
	Subject          SubjectRef        `json:"subject"`
	StartedAtMs      int64             `json:"startedAt"`
	EndedAtMs        int64             `json:"endedAt"`
	TotalDurationSec int               `json:"totalDurationSec"`
	Intervals        []IntervalSummary `json:"intervals"`
}

// Validate checks the structural invariants a store must enforce before
// accepting a report.
func (r *SessionReport) Validate() error {
	if r == nil {
		return errors.New("report is nil")
	}
	if err := r.Subject.Validate(); err != nil {
		return err
	}
	if r.EndedAtMs < r.StartedAtMs {
		return fmt.Errorf("endedAt %d precedes startedAt %d", r.EndedAtMs, r.StartedAtMs)
	}
	if r.TotalDurationSec < 0 {
		return fmt.Errorf("totalDurationSec must not be negative, got %d", r.TotalDurationSec)
	}
	for i, iv := range r.Intervals {
		if iv.End < iv.Start {
			return fmt.Errorf("intervals[%d]: end %d precedes start %d", i, iv.End, iv.Start)
		}
		if iv.DurationSec < 0 {
			return fmt.Errorf("intervals[%d]: durationSec must not be negative", i)
		}
	}
	return nil
}

// Range is a closed time range [Start, End] in milliseconds. Depending on
// context the values are epoch or session-relative milliseconds.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Normalized returns r with Start <= End.
func (r Range) Normalized() Range {
	if r.End < r.Start {
		return Range{Start: r.End, End: r.Start}
	}
	return r
}
