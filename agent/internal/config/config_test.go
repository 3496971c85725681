package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimal = `
agent:
  store_endpoint: "localhost:50051"
  scorer:
    endpoint: "http://localhost:8000/realtime/image"
  capture:
    endpoint: "http://camera.local/snapshot.jpg"
`

func TestLoad_Valid(t *testing.T) {
	yaml := `
log_level: debug
agent:
  http_port: 9100
  client_id: kiosk-3
  store_endpoint: "store:50051"
  store_timeout: 2s
  subject:
    learner: alice
    class_id: 3
    course_id: 12
  policy:
    sampling_interval: 2s
    threshold: 0.6
    min_save: 20s
  scorer:
    mode: websocket
    endpoint: "ws://scorer:8000/ws/realtime"
  capture:
    type: dir
    dir: /var/lib/focustrack/frames
  alerts:
    rules:
      - name: drifting
        condition: "low_for_sec > 60"
        severity: warning
        cooldown: 1m
    webhooks:
      - type: slack
        url_env: SLACK_URL
`
	cfg := loadFromString(t, yaml)

	if cfg.LogLevel != "debug" {
		t.Errorf("log_level: got %q", cfg.LogLevel)
	}
	a := cfg.Agent
	if a.StoreEndpoint != "store:50051" {
		t.Errorf("store_endpoint: got %q", a.StoreEndpoint)
	}
	if a.StoreTimeout != 2*time.Second {
		t.Errorf("store_timeout: got %v", a.StoreTimeout)
	}
	if a.Subject.Learner != "alice" || a.Subject.ClassID != 3 || a.Subject.CourseID != 12 {
		t.Errorf("subject: got %+v", a.Subject)
	}
	if a.Policy.SamplingInterval != 2*time.Second || a.Policy.Threshold != 0.6 || a.Policy.MinSave != 20*time.Second {
		t.Errorf("policy: got %+v", a.Policy)
	}
	if a.Scorer.Mode != "websocket" {
		t.Errorf("scorer.mode: got %q", a.Scorer.Mode)
	}
	if a.Capture.Type != "dir" || a.Capture.Dir != "/var/lib/focustrack/frames" {
		t.Errorf("capture: got %+v", a.Capture)
	}
	if len(a.Alerts.Rules) != 1 || a.Alerts.Rules[0].Cooldown != time.Minute {
		t.Errorf("alerts.rules: got %+v", a.Alerts.Rules)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, minimal)
	a := cfg.Agent

	if a.Policy.SamplingInterval != DefaultSamplingInterval {
		t.Errorf("default sampling_interval: got %v, want %v", a.Policy.SamplingInterval, DefaultSamplingInterval)
	}
	if a.Policy.Threshold != DefaultThreshold {
		t.Errorf("default threshold: got %v, want %v", a.Policy.Threshold, DefaultThreshold)
	}
	if a.Policy.MinSave != DefaultMinSave {
		t.Errorf("default min_save: got %v, want %v", a.Policy.MinSave, DefaultMinSave)
	}
	if a.HTTPPort != DefaultHTTPPort {
		t.Errorf("default http_port: got %d, want %d", a.HTTPPort, DefaultHTTPPort)
	}
	if a.Scorer.Mode != "http" || a.Capture.Type != "http" {
		t.Errorf("default modes: scorer=%q capture=%q", a.Scorer.Mode, a.Capture.Type)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("default log_level: got %q", cfg.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing store endpoint", `
agent:
  scorer: {endpoint: "http://s"}
  capture: {endpoint: "http://c"}
`},
		{"threshold zero", minimal + `
  policy:
    threshold: 0
`},
		{"threshold above one", minimal + `
  policy:
    threshold: 1.5
`},
		{"negative min save", minimal + `
  policy:
    min_save: -1s
`},
		{"fractional min save", minimal + `
  policy:
    min_save: 10300ms
`},
		{"unknown scorer mode", `
agent:
  store_endpoint: "s:1"
  scorer: {mode: grpc, endpoint: "http://s"}
  capture: {endpoint: "http://c"}
`},
		{"websocket without client id", `
agent:
  store_endpoint: "s:1"
  scorer: {mode: websocket, endpoint: "ws://s"}
  capture: {endpoint: "http://c"}
`},
		{"dir capture without dir", `
agent:
  store_endpoint: "s:1"
  scorer: {endpoint: "http://s"}
  capture: {type: dir}
`},
		{"unknown auth mode", `
agent:
  store_endpoint: "s:1"
  scorer: {endpoint: "http://s", auth: {mode: magictoken}}
  capture: {endpoint: "http://c"}
`},
		{"bad log level", "log_level: loud\n" + minimal},
		{"rule without condition", minimal + `
  alerts:
    rules:
      - name: x
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_ThresholdOneAllowed(t *testing.T) {
	cfg := loadFromString(t, minimal+`
  policy:
    threshold: 1
`)
	if cfg.Agent.Policy.Threshold != 1 {
		t.Errorf("threshold: got %v, want 1", cfg.Agent.Policy.Threshold)
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	a := AuthConfig{Mode: "apikey"}
	if got := a.Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_Token(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	a := AuthConfig{Mode: "bearer", TokenEnv: "TEST_BEARER_TOKEN"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
}

func TestAuthConfig_EffectiveHeader(t *testing.T) {
	if h := (AuthConfig{}).EffectiveHeader(); h != "x-api-key" {
		t.Errorf("default header: got %q", h)
	}
	if h := (AuthConfig{Header: "x-focus-key"}).EffectiveHeader(); h != "x-focus-key" {
		t.Errorf("custom header: got %q", h)
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("TEAMS_URL", "https://teams.example.com/webhook")
	w := WebhookConfig{Type: "teams", URLEnv: "TEAMS_URL"}
	if got := w.URL(); got != "https://teams.example.com/webhook" {
		t.Errorf("URL(): got %q", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go func() { _ = Watch(ctx, path, func(c *Config) { got <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	// An invalid write is ignored; the following valid one is delivered.
	if err := os.WriteFile(path, []byte("agent: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(minimal+"  policy:\n    threshold: 0.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-got:
			if c.Agent.Policy.Threshold == 0.5 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
