package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
)

// Signal names used to derive default ingestion endpoints.
const (
	SignalTraces  = "traces"
	SignalLogs    = "logs"
	SignalMetrics = "metrics"
)

// ErrUnsupportedFormat is returned by LoadFile for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported config file format")

// Config holds all SDK configuration.
type Config struct {
	Service    ServiceConfig    `json:"service" toml:"service"`
	Remote     RemoteConfig     `json:"remote" toml:"remote"`
	Logging    LogConfig        `json:"logging" toml:"logging"`
	Middleware MiddlewareConfig `json:"middleware" toml:"middleware"`
	Collector  CollectorConfig  `json:"collector" toml:"collector"`
}

// ServiceConfig identifies the instrumented service.
type ServiceConfig struct {
	Name        string `json:"name" toml:"name" envconfig:"LOGGY_SERVICE_NAME" default:"unknown_service"`
	Version     string `json:"version" toml:"version" envconfig:"LOGGY_SERVICE_VERSION"`
	Environment string `json:"environment" toml:"environment" envconfig:"LOGGY_ENVIRONMENT"`
}

// RemoteConfig holds ingestion transport configuration. Nothing is shipped
// while Token is empty.
type RemoteConfig struct {
	Token string `json:"token" toml:"token" envconfig:"LOGGY_TOKEN"`
	// Endpoint is the base URL; per-signal endpoints override it
	Endpoint        string   `json:"endpoint" toml:"endpoint" envconfig:"LOGGY_ENDPOINT" default:"http://localhost:4400"`
	TracesEndpoint  string   `json:"tracesEndpoint" toml:"tracesEndpoint" envconfig:"LOGGY_TRACES_ENDPOINT"`
	LogsEndpoint    string   `json:"logsEndpoint" toml:"logsEndpoint" envconfig:"LOGGY_LOGS_ENDPOINT"`
	MetricsEndpoint string   `json:"metricsEndpoint" toml:"metricsEndpoint" envconfig:"LOGGY_METRICS_ENDPOINT"`
	BatchSize       int      `json:"batchSize" toml:"batchSize" envconfig:"LOGGY_BATCH_SIZE" default:"100"`
	FlushInterval   Duration `json:"flushInterval" toml:"flushInterval" envconfig:"LOGGY_FLUSH_INTERVAL" default:"5s"`
	PublicKey       string   `json:"publicKey" toml:"publicKey" envconfig:"LOGGY_PUBLIC_KEY"`
	PublicKeyFile   string   `json:"publicKeyFile" toml:"publicKeyFile" envconfig:"LOGGY_PUBLIC_KEY_FILE"`
	Cipher          string   `json:"cipher" toml:"cipher" envconfig:"LOGGY_CIPHER" default:"aes-256-gcm"`
	Compress        bool     `json:"compress" toml:"compress" envconfig:"LOGGY_COMPRESS" default:"false"`
	// RateLimit caps flush requests per second per endpoint, 0 disables
	RateLimit float64 `json:"rateLimit" toml:"rateLimit" envconfig:"LOGGY_RATE_LIMIT" default:"0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `json:"level" toml:"level" envconfig:"LOGGY_LOG_LEVEL" default:"info"`
	Development bool   `json:"development" toml:"development" envconfig:"LOGGY_LOG_DEV" default:"false"`
	// RemoteLevel is the minimum level shipped to the logs endpoint
	RemoteLevel string `json:"remoteLevel" toml:"remoteLevel" envconfig:"LOGGY_REMOTE_LOG_LEVEL" default:"info"`
}

// MiddlewareConfig holds HTTP instrumentation configuration.
type MiddlewareConfig struct {
	IgnorePaths   []string `json:"ignorePaths" toml:"ignorePaths" envconfig:"LOGGY_IGNORE_PATHS"`
	CaptureBodies bool     `json:"captureBodies" toml:"captureBodies" envconfig:"LOGGY_CAPTURE_BODIES" default:"false"`
	MaxBodySize   int      `json:"maxBodySize" toml:"maxBodySize" envconfig:"LOGGY_MAX_BODY_SIZE" default:"1024"`
}

// CollectorConfig holds configuration for the development collector.
type CollectorConfig struct {
	Addr           string   `json:"addr" toml:"addr" envconfig:"LOGGY_COLLECTOR_ADDR" default:":4400"`
	Tokens         []string `json:"tokens" toml:"tokens" envconfig:"LOGGY_COLLECTOR_TOKENS"`
	PrivateKeyFile string   `json:"privateKeyFile" toml:"privateKeyFile" envconfig:"LOGGY_COLLECTOR_PRIVATE_KEY_FILE"`
	Retain         int      `json:"retain" toml:"retain" envconfig:"LOGGY_COLLECTOR_RETAIN" default:"50"`
	RequestsPerSec int      `json:"requestsPerSecond" toml:"requestsPerSecond" envconfig:"LOGGY_COLLECTOR_RPS" default:"100"`
	Burst          int      `json:"burst" toml:"burst" envconfig:"LOGGY_COLLECTOR_BURST" default:"200"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "unknown_service",
		},
		Remote: RemoteConfig{
			Endpoint:      "http://localhost:4400",
			BatchSize:     100,
			FlushInterval: Duration(5 * time.Second),
			Cipher:        "aes-256-gcm",
		},
		Logging: LogConfig{
			Level:       "info",
			RemoteLevel: "info",
		},
		Middleware: MiddlewareConfig{
			MaxBodySize: 1024,
		},
		Collector: CollectorConfig{
			Addr:           ":4400",
			Retain:         50,
			RequestsPerSec: 100,
			Burst:          200,
		},
	}
}

// LoadFile reads a YAML, TOML or JSON file on top of Default. The format is
// chosen by extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".json":
		err = sonic.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service.Name) == "" {
		return errors.New("service name is required")
	}
	if c.Remote.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Remote.BatchSize)
	}
	if c.Remote.FlushInterval.Std() <= 0 {
		return fmt.Errorf("flush interval must be positive, got %s", c.Remote.FlushInterval)
	}
	if c.Remote.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %g", c.Remote.RateLimit)
	}
	switch c.Remote.Cipher {
	case "", "aes-256-gcm", "chacha20-poly1305":
	default:
		return fmt.Errorf("unknown cipher %q", c.Remote.Cipher)
	}
	if c.Remote.PublicKey != "" && c.Remote.PublicKeyFile != "" {
		return errors.New("public key and public key file are mutually exclusive")
	}
	if c.Remote.Token != "" {
		for _, signal := range []string{SignalTraces, SignalLogs, SignalMetrics} {
			endpoint := c.Remote.SignalEndpoint(signal)
			u, err := url.Parse(endpoint)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("invalid %s endpoint %q", signal, endpoint)
			}
		}
	}
	for _, level := range []string{c.Logging.Level, c.Logging.RemoteLevel} {
		if level == "" {
			continue
		}
		if _, err := zapcore.ParseLevel(level); err != nil {
			return fmt.Errorf("unknown log level %q", level)
		}
	}
	if c.Middleware.MaxBodySize < 0 {
		return fmt.Errorf("max body size must not be negative, got %d", c.Middleware.MaxBodySize)
	}
	return nil
}

// SignalEndpoint returns the ingestion URL for signal: the explicit
// per-signal endpoint when set, otherwise <Endpoint>/api/<signal>/ingest.
func (r RemoteConfig) SignalEndpoint(signal string) string {
	var explicit string
	switch signal {
	case SignalTraces:
		explicit = r.TracesEndpoint
	case SignalLogs:
		explicit = r.LogsEndpoint
	case SignalMetrics:
		explicit = r.MetricsEndpoint
	}
	if explicit != "" {
		return explicit
	}
	return strings.TrimRight(r.Endpoint, "/") + "/api/" + signal + "/ingest"
}

// PublicKeyPEM returns the configured encryption key, reading PublicKeyFile
// when set. A nil result means payloads are sent unencrypted.
func (r RemoteConfig) PublicKeyPEM() ([]byte, error) {
	if r.PublicKeyFile != "" {
		data, err := os.ReadFile(r.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		return data, nil
	}
	if r.PublicKey == "" {
		return nil, nil
	}
	return []byte(r.PublicKey), nil
}

// Duration is a time.Duration that also accepts bare integers as
// milliseconds, so "5s" and 5000 mean the same.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(v), nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	v, err := parseDuration(value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.Decode(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON accepts a JSON number of milliseconds or a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("invalid duration %s", data)
		}
		return d.Decode(s)
	}
	return d.Decode(string(data))
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON, quoted or bare.
func (d *Duration) UnmarshalYAML(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return d.Decode(s)
}
