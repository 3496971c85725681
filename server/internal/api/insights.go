package api

import (
	"fmt"
	"sort"

	"github.com/focustrack/focustrack/pkg/types"
)

// Thresholds for session insights.
const (
	mostlyUnfocusedShare = 0.5
	oftenUnfocusedShare  = 0.25
	longLapseSec         = 120
	frequentLapsesPer10m = 3
	veryLowAvgScore      = 0.2
)

// Insight is one human-readable observation about a stored session.
type Insight struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level  string   `json:"level"`
	Title  string   `json:"title"`
	Detail string   `json:"detail"`
	Value  *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// unfocusedSec sums the interval durations of r.
func unfocusedSec(r *types.SessionReport) int {
	total := 0
	for _, iv := range r.Intervals {
		total += iv.DurationSec
	}
	return total
}

// computeInsights derives insights from a report, critical first.
func computeInsights(r *types.SessionReport) []Insight {
	var out []Insight

	if r.StartedAtMs == 0 && len(r.Intervals) > 0 {
		out = append(out, Insight{
			Key:    "start_inferred",
			Level:  "info",
			Title:  "Start time inferred",
			Detail: "The session was stored without a start time, so the first unfocused interval is used as its start.",
		})
	}

	if len(r.Intervals) == 0 {
		total := float64(r.TotalDurationSec)
		return append(out, Insight{
			Key:    "focused_throughout",
			Level:  "ok",
			Title:  "Focused throughout",
			Detail: fmt.Sprintf("No unfocused interval was long enough to record during this %ds session.", r.TotalDurationSec),
			Value:  &total,
		})
	}

	lapsed := unfocusedSec(r)
	if r.TotalDurationSec > 0 {
		share := float64(lapsed) / float64(r.TotalDurationSec)
		switch {
		case share >= mostlyUnfocusedShare:
			out = append(out, Insight{
				Key:    "mostly_unfocused",
				Level:  "critical",
				Title:  "Mostly unfocused",
				Detail: fmt.Sprintf("%.0f%% of the session (%ds of %ds) was spent below the attention threshold.", share*100, lapsed, r.TotalDurationSec),
				Value:  &share,
			})
		case share >= oftenUnfocusedShare:
			out = append(out, Insight{
				Key:    "often_unfocused",
				Level:  "warning",
				Title:  "Often unfocused",
				Detail: fmt.Sprintf("%.0f%% of the session (%ds of %ds) was spent below the attention threshold.", share*100, lapsed, r.TotalDurationSec),
				Value:  &share,
			})
		}

		if r.TotalDurationSec >= 60 {
			per10m := float64(len(r.Intervals)) / (float64(r.TotalDurationSec) / 600)
			if per10m >= frequentLapsesPer10m {
				out = append(out, Insight{
					Key:    "frequent_lapses",
					Level:  "warning",
					Title:  "Frequent lapses",
					Detail: fmt.Sprintf("Attention dropped %d times, about %.1f times every 10 minutes.", len(r.Intervals), per10m),
					Value:  &per10m,
				})
			}
		}
	}

	longest, lowest := r.Intervals[0], r.Intervals[0]
	for _, iv := range r.Intervals[1:] {
		if iv.DurationSec > longest.DurationSec {
			longest = iv
		}
		if iv.AvgScore < lowest.AvgScore {
			lowest = iv
		}
	}
	if longest.DurationSec >= longLapseSec {
		v := float64(longest.DurationSec)
		out = append(out, Insight{
			Key:    "long_lapse",
			Level:  "warning",
			Title:  "Long lapse",
			Detail: fmt.Sprintf("One unfocused stretch lasted %ds without recovering.", longest.DurationSec),
			Value:  &v,
		})
	}
	if lowest.AvgScore < veryLowAvgScore {
		v := lowest.AvgScore
		out = append(out, Insight{
			Key:    "very_low_attention",
			Level:  "info",
			Title:  "Very low attention",
			Detail: fmt.Sprintf("The lowest interval averaged a score of %.2f.", lowest.AvgScore),
			Value:  &v,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return levelRank[out[i].Level] < levelRank[out[j].Level] })
	return out
}
