package intervals

import (
	"math"
	"sort"

	"github.com/focustrack/focustrack/pkg/types"
)

// MergeEpsilonMs is the gap, in milliseconds, below which two ranges are
// treated as adjacent and coalesced. A next range whose start is at most
// cur.End+MergeEpsilonMs joins cur.
const MergeEpsilonMs int64 = 1

// adjacent reports whether a range starting at start joins one ending at end.
// It is end+MergeEpsilonMs >= start without overflowing near math.MaxInt64.
func adjacent(end, start int64) bool {
	return start <= end || start-MergeEpsilonMs <= end
}

// MergedSet is a sorted set of ranges where every element ends strictly
// before the next one starts (and further apart than MergeEpsilonMs).
type MergedSet []types.Range

// Merge returns the minimal sorted, non-overlapping set covering ranges.
// Inverted ranges are normalized first. The input slice is not modified.
func Merge(ranges []types.Range) MergedSet {
	if len(ranges) == 0 {
		return MergedSet{}
	}

	sorted := make([]types.Range, len(ranges))
	for i, r := range ranges {
		sorted[i] = r.Normalized()
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	out := make(MergedSet, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if adjacent(cur.End, next.Start) {
			if next.End > cur.End {
				cur.End = next.End
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// MergeSummaries coalesces summaries exactly like Merge coalesces ranges.
// A merged summary spans the union of its members, its DurationSec is
// recomputed from the new bounds, and its AvgScore is the mean of the member
// averages weighted by sample count (a member without a count weighs 1).
func MergeSummaries(in []types.IntervalSummary) []types.IntervalSummary {
	if len(in) == 0 {
		return nil
	}

	sorted := make([]types.IntervalSummary, len(in))
	copy(sorted, in)
	for i := range sorted {
		if sorted[i].End < sorted[i].Start {
			sorted[i].Start, sorted[i].End = sorted[i].End, sorted[i].Start
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	var out []types.IntervalSummary
	acc := newAccumulator(sorted[0])
	for _, next := range sorted[1:] {
		if adjacent(acc.end, next.Start) {
			acc.add(next)
			continue
		}
		out = append(out, acc.summary())
		acc = newAccumulator(next)
	}
	return append(out, acc.summary())
}

type accumulator struct {
	start, end int64
	members    int
	first      types.IntervalSummary
	weighted   float64
	weight     int
	samples    int
}

func newAccumulator(s types.IntervalSummary) *accumulator {
	a := &accumulator{start: s.Start, end: s.End, first: s}
	a.addScore(s)
	return a
}

func (a *accumulator) add(s types.IntervalSummary) {
	if s.End > a.end {
		a.end = s.End
	}
	a.addScore(s)
}

func (a *accumulator) addScore(s types.IntervalSummary) {
	w := s.Samples
	if w <= 0 {
		w = 1
	}
	a.members++
	a.weighted += s.AvgScore * float64(w)
	a.weight += w
	a.samples += s.Samples
}

func (a *accumulator) summary() types.IntervalSummary {
	// A lone member is returned untouched so merging stays idempotent.
	if a.members == 1 {
		return a.first
	}
	return types.IntervalSummary{
		Start:       a.start,
		End:         a.end,
		DurationSec: int(math.Round(float64(a.end-a.start) / 1000)),
		AvgScore:    a.weighted / float64(a.weight),
		Samples:     a.samples,
	}
}

// Ranges extracts the bounds of each summary.
func Ranges(summaries []types.IntervalSummary) []types.Range {
	out := make([]types.Range, len(summaries))
	for i, s := range summaries {
		out[i] = s.Range()
	}
	return out
}
