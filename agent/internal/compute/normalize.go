package compute

import "math"

// Normalize maps a raw scorer value onto [0,1]. Values above 1 are taken to
// be on a 0–100 scale and divided by 100 before clamping.
func Normalize(raw float64) float64 {
	if raw > 1 {
		raw /= 100
	}
	return clamp01(raw)
}

// NormalizeSample normalizes raw, reporting false when there is no usable
// observation (nil, NaN or ±Inf). Callers must skip the tick in that case.
func NormalizeSample(raw *float64) (float64, bool) {
	if raw == nil || math.IsNaN(*raw) || math.IsInf(*raw, 0) {
		return 0, false
	}
	return Normalize(*raw), true
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
