// Package capture acquires frames from the learner's camera.
//
// A Device is opened once per session by the monitor and closed on every
// exit path. Implementations:
//   - http: GET a JPEG from an IP camera or snapshot endpoint (httpDevice)
//   - dir:  replay image files from a directory in name order (dirDevice)
//
// Authentication for the http device (mTLS, API key, bearer, basic) is
// handled by authRoundTripper in client.go; HTTPClient is shared with the
// scorer.
package capture
