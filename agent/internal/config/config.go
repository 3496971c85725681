package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultSamplingInterval = 5 * time.Second
	DefaultThreshold        = 0.7
	DefaultMinSave          = 10 * time.Second
	DefaultStoreTimeout     = 10 * time.Second
	DefaultScorerTimeout    = 4 * time.Second
	DefaultCaptureTimeout   = 3 * time.Second
	DefaultHTTPPort         = 8090
	DefaultLogLevel         = "info"
)

// Config is the top-level agent configuration. Fields map 1:1 to
// agent.example.yaml.
type Config struct {
	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// HTTPPort is the port of the control API and /metrics.
	HTTPPort int `yaml:"http_port"`

	// ClientID identifies this agent to the scorer's websocket endpoint.
	ClientID string `yaml:"client_id"`

	// StoreEndpoint is the gRPC address of focustrack-server (host:port).
	StoreEndpoint string `yaml:"store_endpoint"`

	// StoreTimeout bounds each call to the session store.
	StoreTimeout time.Duration `yaml:"store_timeout"`

	// StoreAuth configures how the agent authenticates to the session store.
	// Supports: mtls | apikey | none.
	StoreAuth AuthConfig `yaml:"store_auth"`

	// Subject is used when a start request does not name one.
	Subject SubjectConfig `yaml:"subject"`

	Policy  PolicyConfig  `yaml:"policy"`
	Scorer  ScorerConfig  `yaml:"scorer"`
	Capture CaptureConfig `yaml:"capture"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

// SubjectConfig names a learner and the class/course context of a session.
type SubjectConfig struct {
	Learner  string `yaml:"learner"`
	ClassID  int64  `yaml:"class_id"`
	CourseID int64  `yaml:"course_id"`
}

// PolicyConfig holds the sampling and classification policy. Changes are
// picked up by the next session.
type PolicyConfig struct {
	SamplingInterval time.Duration `yaml:"sampling_interval"`

	// Threshold is the normalized score below which a sample is low-attention.
	Threshold float64 `yaml:"threshold"`

	// MinSave is the shortest low-attention interval that is persisted.
	MinSave time.Duration `yaml:"min_save"`
}

// ScorerConfig locates the external attention scoring service.
type ScorerConfig struct {
	// Mode is one of: http | websocket.
	Mode string `yaml:"mode"`

	// Endpoint is the full URL: http(s)://host/realtime/image for http mode,
	// ws(s)://host/ws/realtime for websocket mode.
	Endpoint string `yaml:"endpoint"`

	Timeout time.Duration `yaml:"timeout"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// CaptureConfig selects the frame source.
type CaptureConfig struct {
	// Type is one of: http | dir.
	Type string `yaml:"type"`

	// Endpoint is the snapshot URL for Type == "http".
	Endpoint string `yaml:"endpoint"`

	// Dir holds image files for Type == "dir".
	Dir string `yaml:"dir"`

	Timeout time.Duration `yaml:"timeout"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for an outbound connection.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the header (or gRPC metadata key) carrying the API key.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// EffectiveHeader returns the configured header name, or "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// AlertsConfig holds focus alert rules and webhook targets.
type AlertsConfig struct {
	// Disabled turns off alert evaluation, including the default rules.
	Disabled bool            `yaml:"disabled"`
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is an expression like "score < 0.3" or "low_for_sec > 60".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Agent: AgentConfig{
			HTTPPort:     DefaultHTTPPort,
			StoreTimeout: DefaultStoreTimeout,
			Policy: PolicyConfig{
				SamplingInterval: DefaultSamplingInterval,
				Threshold:        DefaultThreshold,
				MinSave:          DefaultMinSave,
			},
			Scorer: ScorerConfig{
				Mode:    "http",
				Timeout: DefaultScorerTimeout,
			},
			Capture: CaptureConfig{
				Type:    "http",
				Timeout: DefaultCaptureTimeout,
			},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}

	a := cfg.Agent
	if a.StoreEndpoint == "" {
		return fmt.Errorf("agent.store_endpoint is required")
	}
	if a.HTTPPort <= 0 || a.HTTPPort > 65535 {
		return fmt.Errorf("agent.http_port %d is out of range [1, 65535]", a.HTTPPort)
	}
	if a.StoreTimeout <= 0 {
		return fmt.Errorf("agent.store_timeout must be positive")
	}
	switch a.StoreAuth.Mode {
	case "mtls", "apikey", "none", "":
	default:
		return fmt.Errorf("agent.store_auth: unknown mode %q", a.StoreAuth.Mode)
	}

	if a.Policy.SamplingInterval <= 0 {
		return fmt.Errorf("agent.policy.sampling_interval must be positive")
	}
	if a.Policy.Threshold <= 0 || a.Policy.Threshold > 1 {
		return fmt.Errorf("agent.policy.threshold %v must be in (0, 1]", a.Policy.Threshold)
	}
	if a.Policy.MinSave < 0 {
		return fmt.Errorf("agent.policy.min_save must not be negative")
	}
	if a.Policy.MinSave%time.Second != 0 {
		return fmt.Errorf("agent.policy.min_save %s must be a whole number of seconds", a.Policy.MinSave)
	}

	if a.Scorer.Endpoint == "" {
		return fmt.Errorf("agent.scorer.endpoint is required")
	}
	switch a.Scorer.Mode {
	case "http":
	case "websocket":
		if a.ClientID == "" {
			return fmt.Errorf("agent.client_id is required for websocket scorer")
		}
	default:
		return fmt.Errorf("agent.scorer: unknown mode %q", a.Scorer.Mode)
	}
	if err := validateAuth("agent.scorer.auth", a.Scorer.Auth); err != nil {
		return err
	}

	switch a.Capture.Type {
	case "http":
		if a.Capture.Endpoint == "" {
			return fmt.Errorf("agent.capture.endpoint is required for type http")
		}
	case "dir":
		if a.Capture.Dir == "" {
			return fmt.Errorf("agent.capture.dir is required for type dir")
		}
	default:
		return fmt.Errorf("agent.capture: unknown type %q", a.Capture.Type)
	}
	if err := validateAuth("agent.capture.auth", a.Capture.Auth); err != nil {
		return err
	}

	for i, r := range a.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("agent.alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("agent.alerts.rules[%d] %q: condition is required", i, r.Name)
		}
	}
	for i, w := range a.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("agent.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}

func validateAuth(field string, a AuthConfig) error {
	switch a.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
		return nil
	default:
		return fmt.Errorf("%s: unknown mode %q", field, a.Mode)
	}
}
