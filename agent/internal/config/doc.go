// Package config loads and watches the agent configuration file (agent.yaml).
//
// Top-level types:
//   - Config{LogLevel, Agent}: full config tree parsed from YAML
//   - AgentConfig: http_port, client_id, store_endpoint, store_timeout,
//     store_auth, subject, policy, scorer, capture, alerts
//   - PolicyConfig: sampling_interval, threshold, min_save
//   - ScorerConfig (http|websocket) and CaptureConfig (http|dir), each with
//     auth and tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, password_env; Key(), Token() and Password()
//     resolve from environment variables
//   - AlertsConfig: focus alert rules and webhook targets
//
// Load(path) reads the YAML file, applies defaults (5s sampling, 0.7
// threshold, 10s min save, port 8090), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// a reload.
package config
