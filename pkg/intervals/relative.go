package intervals

import (
	"context"
	"log/slog"

	"github.com/focustrack/focustrack/pkg/types"
)

// Loader fetches the most recent report for a subject. A nil report with a
// nil error means the subject has no prior session.
type Loader interface {
	Latest(ctx context.Context, subject types.SubjectRef) (*types.SessionReport, error)
}

// SessionStart returns the report's start time, falling back to the earliest
// interval start when StartedAtMs was never recorded.
func SessionStart(r *types.SessionReport) int64 {
	if r.StartedAtMs > 0 || len(r.Intervals) == 0 {
		return r.StartedAtMs
	}
	earliest := r.Intervals[0].Start
	for _, iv := range r.Intervals[1:] {
		if iv.Start < earliest {
			earliest = iv.Start
		}
	}
	return earliest
}

// RelativeRanges converts the report's intervals into the session-relative
// time base used by cues (absoluteMs - startedAt). Negative offsets clamp to
// zero and an interval whose end precedes its start collapses to its start.
func RelativeRanges(r *types.SessionReport) []types.Range {
	if r == nil {
		return nil
	}
	base := SessionStart(r)
	out := make([]types.Range, 0, len(r.Intervals))
	for _, iv := range r.Intervals {
		end := iv.End
		if end < iv.Start {
			end = iv.Start
		}
		out = append(out, types.Range{
			Start: clampZero(iv.Start - base),
			End:   clampZero(end - base),
		})
	}
	return out
}

// LatestMerged loads the latest report for subject and returns its merged,
// session-relative ranges. Highlighting is an enhancement, so every failure
// (transport error, malformed report) yields an empty set instead of an error.
func LatestMerged(ctx context.Context, l Loader, subject types.SubjectRef) MergedSet {
	r, err := l.Latest(ctx, subject)
	if err != nil {
		slog.Warn("intervals: latest report unavailable, treating as no prior session",
			"subject", subject.Key(), "err", err)
		return MergedSet{}
	}
	if r == nil {
		return MergedSet{}
	}
	if !wellFormed(r) {
		slog.Warn("intervals: latest report malformed, treating as no prior session",
			"subject", subject.Key(), "session", r.SessionID)
		return MergedSet{}
	}
	return Merge(RelativeRanges(r))
}

// wellFormed rejects reports whose timestamps cannot be epoch milliseconds.
func wellFormed(r *types.SessionReport) bool {
	if len(r.Intervals) == 0 {
		return true
	}
	if SessionStart(r) <= 0 {
		return false
	}
	for _, iv := range r.Intervals {
		if iv.Start <= 0 {
			return false
		}
	}
	return true
}

func clampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
