package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore, e.g. FM_BACKEND__BASE_URL.
const EnvPrefix = "FM_"

// Config represents the view service configuration
type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment" validate:"oneof=development staging production test"`

	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Backend   BackendConfig   `koanf:"backend"`
	Live      LiveConfig      `koanf:"live"`
	Heatmap   HeatmapConfig   `koanf:"heatmap"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json console text"`
}

// ServerConfig configures the view API
type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`

	// Manual refresh throttling
	RefreshRate  float64 `koanf:"refresh_rate" validate:"gt=0"`
	RefreshBurst int     `koanf:"refresh_burst" validate:"min=1"`
}

// BackendConfig points at the fraud detection backend
type BackendConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"min=100ms"`
}

// LiveConfig configures the live stream. An empty URL is derived from the
// backend base URL. Heartbeats follow the server's Engine.IO handshake.
type LiveConfig struct {
	URL              string        `koanf:"url" validate:"omitempty,url"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"min=1s"`
	MaxBackoff       time.Duration `koanf:"max_backoff" validate:"min=100ms"`
}

type HeatmapConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"min=1s"`
}

// DashboardConfig controls periodic refresh of the dashboard snapshot. Zero
// disables it; live events keep the view current in between.
type DashboardConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"min=0"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	OTLPEndpoint string  `koanf:"otlp_endpoint" validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`

	ExportTimeout time.Duration `koanf:"export_timeout" validate:"min=1s"`
	BatchTimeout  time.Duration `koanf:"batch_timeout" validate:"min=100ms"`
	// MetricInterval is how often HTTP instrumentation metrics are pushed
	MetricInterval time.Duration `koanf:"metric_interval" validate:"min=1s"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
			RefreshRate:     1,
			RefreshBurst:    3,
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 10 * time.Second,
		},
		Live: LiveConfig{
			HandshakeTimeout: 10 * time.Second,
			MaxBackoff:       30 * time.Second,
		},
		Heatmap: HeatmapConfig{
			RefreshInterval: 30 * time.Second,
		},
		Dashboard: DashboardConfig{
			RefreshInterval: 60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:  "localhost:4317",
			SamplingRate:  1.0,
			ExportTimeout:  30 * time.Second,
			BatchTimeout:   5 * time.Second,
			MetricInterval: 10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, a
// .env file and FM_ environment variables, in increasing precedence.
// An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps FM_SERVER__READ_TIMEOUT to server.read_timeout
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Validate checks field constraints and derived values
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.LiveURL(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LiveURL returns the Socket.IO websocket endpoint of the live stream. It
// is derived from the backend base URL when not set explicitly, and the
// Engine.IO query is added when the configured URL lacks it.
func (c *Config) LiveURL() (string, error) {
	if c.Live.URL != "" {
		u, err := url.Parse(c.Live.URL)
		if err != nil {
			return "", fmt.Errorf("live url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return "", fmt.Errorf("live url %q: scheme must be ws or wss", c.Live.URL)
		}
		return withEngineQuery(u), nil
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return "", fmt.Errorf("backend url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("backend url %q: scheme must be http or https", c.Backend.BaseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + SocketIOPath
	u.RawQuery = ""
	return withEngineQuery(u), nil
}

// SocketIOPath is where Socket.IO servers mount by default
const SocketIOPath = "/socket.io/"

func withEngineQuery(u *url.URL) string {
	q := u.Query()
	if q.Get("EIO") == "" {
		q.Set("EIO", "4")
	}
	if q.Get("transport") == "" {
		q.Set("transport", "websocket")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Addr is the listen address of the view API
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
