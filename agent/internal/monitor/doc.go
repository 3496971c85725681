// Package monitor runs attention sessions.
//
// A Monitor is Idle, Running or Interrupted. Start acquires the capture device, resets the
// interval engine with the current policy and launches one loop goroutine
// that captures, scores and classifies a frame immediately and then on every
// sampling tick. Ticks never overlap, so interval transitions are applied in
// capture order. A tick whose capture or scoring fails is skipped and counted;
// it is never retried.
//
// Stop cancels the loop and waits for it, discarding the result of any tick
// still in flight, then finalizes the open interval, merges the kept
// intervals and submits the SessionReport when at least one interval
// survived. The device is released by the loop goroutine itself, so
// cancelling the context given to Start releases it even if Stop is never
// called. Such a session is Interrupted: Status reports it, Stop still
// finalizes and submits it, and the next Start does so before opening the
// device again.
package monitor
