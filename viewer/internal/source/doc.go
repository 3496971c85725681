// Package source reads session reports from the focustrack-server REST API.
// Client implements intervals.Loader: a 204 from the latest endpoint means
// the subject has no prior session.
package source
