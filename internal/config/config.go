// Package config loads and validates gateway configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/trends-gateway/internal/trends"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Events    EventsConfig    `mapstructure:"events"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// GatewayConfig holds the query-handling knobs.
type GatewayConfig struct {
	AllowedGeos       []string `mapstructure:"allowed_geos"`
	DefaultGeo        string   `mapstructure:"default_geo"`
	DefaultKeyword    string   `mapstructure:"default_keyword"`
	MaxAttempts       int      `mapstructure:"max_attempts"`
	MinDelayMs        int      `mapstructure:"min_delay_ms"`
	MaxDelayMs        int      `mapstructure:"max_delay_ms"`
	ExhaustedPolicy   string   `mapstructure:"exhausted_policy"`
	RetryAfterSeconds int      `mapstructure:"retry_after_seconds"`
	FallbackDays      int      `mapstructure:"fallback_days"`
}

// UpstreamConfig points the HTTP client at the trends endpoint.
type UpstreamConfig struct {
	BaseURL        string          `mapstructure:"base_url"`
	Path           string          `mapstructure:"path"`
	UserAgent      string          `mapstructure:"user_agent"`
	Language       string          `mapstructure:"language"`
	TZOffset       int             `mapstructure:"tz_offset"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	Breaker        BreakerConfig   `mapstructure:"breaker"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	CaptchaMarkers []string        `mapstructure:"captcha_markers"`
}

// BreakerConfig tunes the upstream circuit breaker.
type BreakerConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	MaxRequests     uint32  `mapstructure:"max_requests"`
	IntervalSeconds int     `mapstructure:"interval_seconds"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	MinRequests     uint32  `mapstructure:"min_requests"`
	FailureRatio    float64 `mapstructure:"failure_ratio"`
}

// RateLimitConfig paces outbound calls. A zero RPS disables pacing.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// EventsConfig controls the event hub and its sinks.
type EventsConfig struct {
	Enabled           bool         `mapstructure:"enabled"`
	BufferSize        int          `mapstructure:"buffer_size"`
	Batch             BatchConfig  `mapstructure:"batch"`
	SinkTimeoutMs     int          `mapstructure:"sink_timeout_ms"`
	LogEnabled        bool         `mapstructure:"log_enabled"`
	PrometheusEnabled bool         `mapstructure:"prometheus_enabled"`
	PubSub            PubSubConfig `mapstructure:"pubsub"`
}

// BatchConfig bounds hub batches.
type BatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// PubSubConfig holds metadata for degradation notices. Empty values fall back
// to the in-memory publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// CORSConfig enables cross-origin access to the API.
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxAgeSeconds  int      `mapstructure:"max_age_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig selects tracing export.
type TelemetryConfig struct {
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	GCPProjectID   string  `mapstructure:"gcp_project_id"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRENDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Platform convention: PORT wins over the prefixed variable.
	if err := v.BindEnv("server.port", "PORT", "TRENDS_SERVER_PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("gateway.allowed_geos", trends.DefaultAllowedGeos)
	v.SetDefault("gateway.default_geo", trends.DefaultGeo)
	v.SetDefault("gateway.default_keyword", trends.DefaultKeyword)
	v.SetDefault("gateway.max_attempts", trends.DefaultMaxAttempts)
	v.SetDefault("gateway.min_delay_ms", trends.DefaultMinDelay.Milliseconds())
	v.SetDefault("gateway.max_delay_ms", trends.DefaultMaxDelay.Milliseconds())
	v.SetDefault("gateway.exhausted_policy", string(trends.PolicyDegrade))
	v.SetDefault("gateway.retry_after_seconds", int(trends.DefaultRetryAfter.Seconds()))
	v.SetDefault("gateway.fallback_days", trends.DefaultFallbackDays)
	v.SetDefault("upstream.base_url", "https://trends.google.com")
	v.SetDefault("upstream.path", "/trends/api/widgetdata/multiline")
	v.SetDefault("upstream.user_agent", "trends-gateway/0.1")
	v.SetDefault("upstream.language", "en-US")
	v.SetDefault("upstream.tz_offset", 360)
	v.SetDefault("upstream.timeout_seconds", 15)
	v.SetDefault("upstream.breaker.enabled", true)
	v.SetDefault("upstream.breaker.max_requests", 1)
	v.SetDefault("upstream.breaker.interval_seconds", 60)
	v.SetDefault("upstream.breaker.timeout_seconds", 30)
	v.SetDefault("upstream.breaker.min_requests", 5)
	v.SetDefault("upstream.breaker.failure_ratio", 0.6)
	v.SetDefault("upstream.rate_limit.rps", 2)
	v.SetDefault("upstream.rate_limit.burst", 4)
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("events.batch.max_events", 256)
	v.SetDefault("events.batch.max_wait_ms", 250)
	v.SetDefault("events.sink_timeout_ms", 5000)
	v.SetDefault("events.log_enabled", false)
	v.SetDefault("events.prometheus_enabled", true)
	v.SetDefault("cors.enabled", true)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.max_age_seconds", 300)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.service_name", "trends-gateway")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server.port must be in 1..65535"))
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("server.request_timeout_seconds must be > 0"))
	}
	if len(c.Gateway.AllowedGeos) == 0 {
		errs = append(errs, errors.New("gateway.allowed_geos must not be empty"))
	}
	if c.Gateway.MaxAttempts <= 0 {
		errs = append(errs, errors.New("gateway.max_attempts must be > 0"))
	}
	if c.Gateway.MinDelayMs < 0 || c.Gateway.MaxDelayMs < c.Gateway.MinDelayMs {
		errs = append(errs, errors.New("gateway delays must satisfy 0 <= min_delay_ms <= max_delay_ms"))
	}
	switch trends.ExhaustedPolicy(c.Gateway.ExhaustedPolicy) {
	case trends.PolicyDegrade, trends.PolicySurface:
	default:
		errs = append(errs, fmt.Errorf("gateway.exhausted_policy %q must be degrade or surface", c.Gateway.ExhaustedPolicy))
	}
	if c.Gateway.FallbackDays <= 0 {
		errs = append(errs, errors.New("gateway.fallback_days must be > 0"))
	}
	if u, err := url.Parse(c.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("upstream.base_url must be an absolute URL"))
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("upstream.timeout_seconds must be > 0"))
	}
	if b := c.Upstream.Breaker; b.Enabled && (b.FailureRatio <= 0 || b.FailureRatio > 1) {
		errs = append(errs, errors.New("upstream.breaker.failure_ratio must be in (0,1]"))
	}
	if c.Upstream.RateLimit.RPS < 0 {
		errs = append(errs, errors.New("upstream.rate_limit.rps must be >= 0"))
	}
	if p := c.Events.PubSub; (p.ProjectID == "") != (p.TopicName == "") {
		errs = append(errs, errors.New("events.pubsub requires both project_id and topic_name"))
	}
	return errors.Join(errs...)
}

// GatewayConfig converts the loaded settings into the explicit gateway
// configuration.
func (c Config) GatewayConfig() trends.Config {
	g := c.Gateway
	return trends.Config{
		AllowedGeos:    append([]string(nil), g.AllowedGeos...),
		DefaultGeo:     g.DefaultGeo,
		DefaultKeyword: g.DefaultKeyword,
		Retry: trends.RetryConfig{
			MaxAttempts: g.MaxAttempts,
			MinDelay:    time.Duration(g.MinDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(g.MaxDelayMs) * time.Millisecond,
		},
		Assembler: trends.AssemblerConfig{
			Policy:       trends.ExhaustedPolicy(g.ExhaustedPolicy),
			RetryAfter:   time.Duration(g.RetryAfterSeconds) * time.Second,
			FallbackDays: g.FallbackDays,
		},
	}
}

// RequestTimeout is the per-request handler budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
