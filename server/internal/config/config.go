package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort        = 50051
	DefaultHTTPPort        = 8080
	DefaultStoragePath     = "focustrack.db"
	DefaultEvictInterval   = time.Hour
	DefaultStreamHeartbeat = 30 * time.Second
	DefaultLogLevel        = "info"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the ReportService listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API and WebSocket stream listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates incoming gRPC and REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Storage controls report persistence and retention.
	Storage StorageConfig `yaml:"storage"`

	// Stream controls the /ws/stream push channel.
	Stream StreamConfig `yaml:"stream"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StorageConfig controls the SQLite report store.
type StorageConfig struct {
	// Path is the SQLite database file. ":memory:" keeps reports in memory.
	Path string `yaml:"path"`

	// Retention is how long a report is kept after it was stored.
	// Zero keeps reports forever.
	Retention time.Duration `yaml:"retention"`

	// EvictInterval is how often expired reports are deleted (default 1h).
	EvictInterval time.Duration `yaml:"evict_interval"`
}

// StreamConfig controls the WebSocket push channel.
type StreamConfig struct {
	// Heartbeat is the interval between heartbeat events (default 30s).
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Storage: StorageConfig{
				Path:          DefaultStoragePath,
				EvictInterval: DefaultEvictInterval,
			},
			Stream: StreamConfig{
				Heartbeat: DefaultStreamHeartbeat,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	if cfg.Server.GRPCPort <= 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", cfg.Server.GRPCPort)
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey":
		if cfg.Server.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required for apikey mode")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Storage.Path == "" {
		return fmt.Errorf("server.storage.path is required")
	}
	if cfg.Server.Storage.Retention < 0 {
		return fmt.Errorf("server.storage.retention must not be negative")
	}
	if cfg.Server.Storage.EvictInterval <= 0 {
		return fmt.Errorf("server.storage.evict_interval must be positive")
	}
	if cfg.Server.Stream.Heartbeat <= 0 {
		return fmt.Errorf("server.stream.heartbeat must be positive")
	}
	return nil
}
