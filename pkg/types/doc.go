// Package types defines shared Go types used by the agent, the server, and the
// viewer. These are the canonical in-memory representations of attention
// telemetry, separate from the gRPC and REST wire formats.
//
// Timestamps are epoch milliseconds throughout; a SessionReport is the only
// persisted aggregate and is immutable once handed to the Session Store.
package types
