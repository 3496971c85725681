// Package control serves the agent's local HTTP API:
//
//	POST /api/v1/session/start   start a session (optional subject body)
//	POST /api/v1/session/stop    stop it and return the report
//	GET  /api/v1/session         monitor status
//	GET  /api/v1/alerts          firing and recently resolved focus alerts
//	GET  /api/v1/certs           TLS certificate status of outbound endpoints
//	GET  /api/v1/health          liveness
//	GET  /metrics                Prometheus text exposition
//
// Lifecycle errors map to status codes: a start while running is 409, a
// failed report submission is 502 with the report still in the body.
package control
