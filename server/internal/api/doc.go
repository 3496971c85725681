// Package api implements the HTTP REST API for focustrack-server.
//
// New(store, stream) returns an http.Handler that serves:
//
//	GET  /api/v1/health                   report count and stream clients
//	POST /api/v1/focus/intervals          store a session report
//	GET  /api/v1/focus/intervals/latest   latest report of a subject; 204 when none
//	GET  /api/v1/focus/sessions           report history with insights
//	POST /api/v1/focus/overlaps           flag cues overlapping the latest session
//
// Subjects are passed as learner, class_id and course_id query parameters
// (or body fields for overlaps). Responses are JSON; unsupported methods
// get 405. JSON types are defined in types.go. No external HTTP framework
// is used.
package api
