// Package shipper is the agent's gRPC client for the session store
// (focus.report.v1.ReportService, see pkg/reportrpc).
//
// Shipper.Submit sends a finished SessionReport; Shipper.Latest fetches the
// most recent report for a subject and returns nil when there is none. The
// connection is created on first use and reused. Every call is bounded by
// agent.store_timeout and is not retried: a failed submission is reported to
// the caller, which owns the decision.
//
// Failures are logged by class. Permanent gRPC errors (InvalidArgument,
// Unauthenticated, PermissionDenied) log at error; everything else is
// treated as the store being unavailable and logs at warn.
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or insecure (plaintext) for local development.
//
// The dialFn field is injectable for testing.
package shipper
