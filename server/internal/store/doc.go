// Package store persists session reports in SQLite (modernc.org/sqlite, no
// cgo). Reports are keyed by session id, so resubmitting a report replaces
// it, and queried per subject: the latest report and a bounded history.
// A background loop (Run) deletes reports older than the configured
// retention.
package store
