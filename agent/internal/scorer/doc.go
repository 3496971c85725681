// Package scorer asks the external attention model for a score per frame.
//
// Two transports are supported, selected by agent.scorer.mode:
//   - http: one POST per frame to the realtime image endpoint
//   - websocket: a persistent connection to /ws/realtime/{client_id}
//
// Score returns a nil score with a nil error when the service answered but
// had no score (no face in frame). Any transport or decode failure is
// returned as an error; the caller skips the tick in both cases and never
// retries.
package scorer
