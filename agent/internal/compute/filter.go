package compute

import (
	"math"
	"time"

	"github.com/focustrack/focustrack/pkg/types"
)

// Filter discards closed intervals shorter than MinSave and summarizes the rest.
type Filter struct {
	MinSave time.Duration
}

// Accept returns the summary for a closed interval and true, or false when the
// interval is open, too short, or has no samples. The same input always
// produces the same result.
func (f Filter) Accept(iv types.Interval) (types.IntervalSummary, bool) {
	if iv.EndMs == nil || len(iv.Samples) == 0 {
		return types.IntervalSummary{}, false
	}

	// The stored DurationSec is rounded, so it must clear MinSave as well.
	durationSec := float64(*iv.EndMs-iv.StartMs) / 1000
	rounded := math.Round(durationSec)
	if durationSec < f.MinSave.Seconds() || rounded < f.MinSave.Seconds() {
		return types.IntervalSummary{}, false
	}

	return types.IntervalSummary{
		Start:       iv.StartMs,
		End:         *iv.EndMs,
		DurationSec: int(rounded),
		AvgScore:    mean(iv.Samples),
		Samples:     len(iv.Samples),
	}, true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
