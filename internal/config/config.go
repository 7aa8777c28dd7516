// Package config loads and validates the bridge configuration from a YAML
// file and the environment. Environment variables override file values so a
// bare `OPENROUTER_API_KEY=... openbridge serve` works without any file.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for openbridge.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Translate TranslateConfig `yaml:"translate"`
	State     StateConfig     `yaml:"state"`
	Trace     TraceConfig     `yaml:"trace"`
	Logging   LoggingConfig   `yaml:"logging"`
	Otel      OtelConfig      `yaml:"otel"`
}

// ServerConfig controls the HTTP listener and client-side auth.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ClientAPIKey string `yaml:"client_api_key"`
	SSLCertfile  string `yaml:"ssl_certfile"`
	SSLKeyfile   string `yaml:"ssl_keyfile"`
}

// UpstreamConfig controls the OpenRouter client: credentials, attribution
// headers, timeouts, and the retry/degradation policy.
type UpstreamConfig struct {
	APIKey           string   `yaml:"api_key"`
	BaseURL          string   `yaml:"base_url"`
	HTTPReferer      string   `yaml:"http_referer"`
	XTitle           string   `yaml:"x_title"`
	RequestTimeoutS  float64  `yaml:"request_timeout_s"`
	RetryMaxAttempts int      `yaml:"retry_max_attempts"`
	RetryMaxSeconds  float64  `yaml:"retry_max_seconds"`
	RetryBackoff     float64  `yaml:"retry_backoff"`
	DegradeFields    []string `yaml:"degrade_fields"`
}

// TranslateConfig tunes request translation.
type TranslateConfig struct {
	MaxTokensBuffer int    `yaml:"max_tokens_buffer"`
	ModelMapPath    string `yaml:"model_map_path"`
}

// StateConfig selects the conversation store backend.
type StateConfig struct {
	Backend    string `yaml:"backend"`
	RedisURL   string `yaml:"redis_url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TraceConfig controls the request trace capture subsystem.
type TraceConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Backend     string `yaml:"backend"`
	MaxEntries  int    `yaml:"max_entries"`
	TTLSeconds  int    `yaml:"ttl_seconds"`
	ContentMode string `yaml:"content_mode"`
	MaxChars    int    `yaml:"max_chars"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OtelConfig controls OpenTelemetry export. Tracing is off when Endpoint is
// empty.
type OtelConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
	Insecure     bool    `yaml:"insecure"`
}

// State backends.
const (
	StateBackendMemory   = "memory"
	StateBackendRedis    = "redis"
	StateBackendDisabled = "disabled"
)

// Trace content modes.
const (
	ContentModeNone     = "none"
	ContentModeTruncate = "truncate"
	ContentModeFull     = "full"
)

// Load reads the configuration. The path is optional: when empty, the
// configuration comes from defaults and environment variables alone. File
// values are strictly parsed (unknown keys are rejected), then environment
// overrides and defaults are applied, then the result is validated.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := decodeStrict([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeStrict parses a single YAML document, rejecting unknown fields.
func decodeStrict(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("expected single document")
	}
	return nil
}

// applyEnv overlays environment variables onto the config. The variable names
// follow the original deployment surface, so existing .env files keep
// working.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "OPENBRIDGE_HOST")
	setInt(&cfg.Server.Port, "OPENBRIDGE_PORT")
	setString(&cfg.Server.ClientAPIKey, "OPENBRIDGE_CLIENT_API_KEY")
	setString(&cfg.Server.SSLCertfile, "OPENBRIDGE_SSL_CERTFILE")
	setString(&cfg.Server.SSLKeyfile, "OPENBRIDGE_SSL_KEYFILE")

	setString(&cfg.Upstream.APIKey, "OPENROUTER_API_KEY")
	setString(&cfg.Upstream.BaseURL, "OPENROUTER_BASE_URL")
	setString(&cfg.Upstream.HTTPReferer, "OPENROUTER_HTTP_REFERER")
	setString(&cfg.Upstream.XTitle, "OPENROUTER_X_TITLE")
	setFloat(&cfg.Upstream.RequestTimeoutS, "OPENBRIDGE_REQUEST_TIMEOUT_S")
	setInt(&cfg.Upstream.RetryMaxAttempts, "OPENBRIDGE_RETRY_MAX_ATTEMPTS")
	setFloat(&cfg.Upstream.RetryMaxSeconds, "OPENBRIDGE_RETRY_MAX_SECONDS")
	setFloat(&cfg.Upstream.RetryBackoff, "OPENBRIDGE_RETRY_BACKOFF")
	if v, ok := os.LookupEnv("OPENBRIDGE_DEGRADE_FIELDS"); ok {
		cfg.Upstream.DegradeFields = splitFields(v)
	}

	setInt(&cfg.Translate.MaxTokensBuffer, "OPENBRIDGE_MAX_TOKENS_BUFFER")
	setString(&cfg.Translate.ModelMapPath, "OPENBRIDGE_MODEL_MAP_PATH")

	setString(&cfg.State.Backend, "OPENBRIDGE_STATE_BACKEND")
	setString(&cfg.State.RedisURL, "OPENBRIDGE_REDIS_URL")
	setInt(&cfg.State.TTLSeconds, "OPENBRIDGE_MEMORY_TTL_SECONDS")

	setBool(&cfg.Trace.Enabled, "OPENBRIDGE_TRACE_ENABLED")

	setString(&cfg.Logging.Level, "OPENBRIDGE_LOG_LEVEL")
	setString(&cfg.Logging.Format, "OPENBRIDGE_LOG_FORMAT")

	setString(&cfg.Otel.Endpoint, "OPENBRIDGE_OTEL_ENDPOINT")
	setFloat(&cfg.Otel.SamplingRate, "OPENBRIDGE_OTEL_SAMPLING_RATE")
	setString(&cfg.Otel.Environment, "OPENBRIDGE_OTEL_ENVIRONMENT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// splitFields parses a comma-separated list, trimming whitespace and
// dropping empty entries.
func splitFields(value string) []string {
	parts := strings.Split(value, ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	return fields
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Upstream.RequestTimeoutS == 0 {
		cfg.Upstream.RequestTimeoutS = 120
	}
	if cfg.Upstream.RetryMaxAttempts == 0 {
		cfg.Upstream.RetryMaxAttempts = 2
	}
	if cfg.Upstream.RetryMaxSeconds == 0 {
		cfg.Upstream.RetryMaxSeconds = 15
	}
	if cfg.Upstream.RetryBackoff == 0 {
		cfg.Upstream.RetryBackoff = 0.5
	}
	if cfg.Upstream.DegradeFields == nil {
		cfg.Upstream.DegradeFields = []string{"verbosity"}
	}
	if cfg.Translate.MaxTokensBuffer == 0 {
		cfg.Translate.MaxTokensBuffer = 64
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = StateBackendMemory
	}
	if cfg.State.RedisURL == "" {
		cfg.State.RedisURL = "redis://localhost:6379/0"
	}
	if cfg.State.TTLSeconds == 0 {
		cfg.State.TTLSeconds = 3600
	}
	if cfg.Trace.Backend == "" {
		cfg.Trace.Backend = StateBackendMemory
	}
	if cfg.Trace.MaxEntries == 0 {
		cfg.Trace.MaxEntries = 200
	}
	if cfg.Trace.TTLSeconds == 0 {
		cfg.Trace.TTLSeconds = 3600
	}
	if cfg.Trace.ContentMode == "" {
		cfg.Trace.ContentMode = ContentModeTruncate
	}
	if cfg.Trace.MaxChars == 0 {
		cfg.Trace.MaxChars = 4000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Otel.SamplingRate == 0 {
		cfg.Otel.SamplingRate = 1.0
	}
}

// Validate checks the configuration for invalid combinations. It does not
// touch the network.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Upstream.APIKey) == "" {
		return fmt.Errorf("upstream.api_key is required (set OPENROUTER_API_KEY)")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if (c.Server.SSLCertfile == "") != (c.Server.SSLKeyfile == "") {
		return fmt.Errorf("server.ssl_certfile and server.ssl_keyfile must be set together")
	}
	if c.Server.SSLCertfile != "" {
		if _, err := os.Stat(c.Server.SSLCertfile); err != nil {
			return fmt.Errorf("server.ssl_certfile not found: %s", c.Server.SSLCertfile)
		}
		if _, err := os.Stat(c.Server.SSLKeyfile); err != nil {
			return fmt.Errorf("server.ssl_keyfile not found: %s", c.Server.SSLKeyfile)
		}
	}
	switch c.State.Backend {
	case StateBackendMemory, StateBackendRedis, StateBackendDisabled:
	default:
		return fmt.Errorf("state.backend %q invalid (memory|redis|disabled)", c.State.Backend)
	}
	switch c.Trace.Backend {
	case StateBackendMemory, StateBackendRedis:
	default:
		return fmt.Errorf("trace.backend %q invalid (memory|redis)", c.Trace.Backend)
	}
	switch c.Trace.ContentMode {
	case ContentModeNone, ContentModeTruncate, ContentModeFull:
	default:
		return fmt.Errorf("trace.content_mode %q invalid (none|truncate|full)", c.Trace.ContentMode)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q invalid (json|text)", c.Logging.Format)
	}
	if c.Otel.SamplingRate < 0 || c.Otel.SamplingRate > 1 {
		return fmt.Errorf("otel.sampling_rate %v out of range [0,1]", c.Otel.SamplingRate)
	}
	return nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TLSEnabled reports whether the listener should serve TLS.
func (c *Config) TLSEnabled() bool {
	return c.Server.SSLCertfile != "" && c.Server.SSLKeyfile != ""
}

// RequestTimeout returns the upstream per-request timeout.
func (u UpstreamConfig) RequestTimeout() time.Duration {
	return time.Duration(u.RequestTimeoutS * float64(time.Second))
}

// RetryMaxElapsed returns the total retry window.
func (u UpstreamConfig) RetryMaxElapsed() time.Duration {
	return time.Duration(u.RetryMaxSeconds * float64(time.Second))
}

// TTL returns the store entry lifetime; zero or negative means no expiry.
func (s StateConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// Enabled reports whether conversation state is stored at all.
func (s StateConfig) Enabled() bool {
	return s.Backend != StateBackendDisabled
}

// TTL returns the trace entry lifetime; zero or negative means no expiry.
func (t TraceConfig) TTL() time.Duration {
	return time.Duration(t.TTLSeconds) * time.Second
}

// ModelAliases loads the model alias map referenced by
// translate.model_map_path. A missing or empty path yields an empty map; a
// present file must hold a flat string-to-string mapping (YAML or JSON).
func (c *Config) ModelAliases() (map[string]string, error) {
	if c.Translate.ModelMapPath == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(c.Translate.ModelMapPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read model map: %w", err)
	}
	aliases := map[string]string{}
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("model map must be a flat string mapping: %w", err)
	}
	return aliases, nil
}
