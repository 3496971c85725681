// Package compute derives low-attention intervals from raw scorer output.
//
// normalize.go maps a raw score (either a 0–1 or a 0–100 scale) onto [0,1];
// an absent or non-finite score is "no observation" and never a transition.
//
// builder.go is the interval state machine (Neutral/Low) expressed as pure
// transition functions over an explicit BuilderState value. A score strictly
// below the threshold opens or extends the single open interval; a score at
// or above it closes the interval at the tick time.
//
// filter.go discards closed intervals shorter than the minimum save duration
// and reduces the rest to IntervalSummary values (rounded duration, mean score).
//
// engine.go composes the three for one session. Engine.Process accepts a
// Sample carrying its own capture time so tests are deterministic.
package compute
