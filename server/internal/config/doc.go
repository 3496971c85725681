// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - LogLevel                  debug | info | warn | error (default info)
//   - GRPCPort                  port for the ReportService (default 50051)
//   - HTTPPort                  port for the REST API and /ws/stream (default 8080)
//   - Auth.Mode                 "apikey" or "none"
//   - Auth.KeyEnv               environment variable holding the expected API key
//   - Auth.Header               gRPC metadata/HTTP header name (default "x-api-key")
//   - Storage.Path              SQLite database file (default focustrack.db)
//   - Storage.Retention         report lifetime; 0 keeps reports forever
//   - Storage.EvictInterval     how often expired reports are deleted (default 1h)
//   - Stream.Heartbeat          /ws/stream heartbeat interval (default 30s)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
