package intervals

import (
	"sort"

	"github.com/focustrack/focustrack/pkg/types"
)

// Overlaps reports whether candidate intersects any range in set. Bounds are
// inclusive: a range ending exactly where the candidate starts counts.
// set must come from Merge; an inverted candidate is normalized.
func Overlaps(candidate types.Range, set MergedSet) bool {
	c := candidate.Normalized()
	// Ends are strictly increasing in a merged set, so the first range that
	// ends at or after c.Start is the only one that can intersect first.
	i := sort.Search(len(set), func(i int) bool { return set[i].End >= c.Start })
	return i < len(set) && set[i].Start <= c.End
}

// Classify runs Overlaps for each candidate and returns one flag per input.
func Classify(candidates []types.Range, set MergedSet) []bool {
	out := make([]bool, len(candidates))
	for i, c := range candidates {
		out[i] = Overlaps(c, set)
	}
	return out
}
