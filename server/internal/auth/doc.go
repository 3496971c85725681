// Package auth provides the service API-key gate for focustrack-server.
//
// A Gate is built from config.AuthConfig. UnaryInterceptor validates the key
// from the named gRPC metadata header; Middleware validates the same key from
// the HTTP header of the same name on REST and WebSocket requests, except for
// the open paths passed to New (the health check).
//
// When the mode is not "apikey" or the key environment variable is empty,
// every call passes through (local development with auth disabled). An
// incorrect or absent key returns codes.Unauthenticated or HTTP 401.
package auth
