package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trends-gateway/internal/trends"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 3000, cfg.Server.Port)
	require.Equal(t, trends.DefaultAllowedGeos, cfg.Gateway.AllowedGeos)
	require.Equal(t, "US", cfg.Gateway.DefaultGeo)
	require.Equal(t, "AI", cfg.Gateway.DefaultKeyword)
	require.Equal(t, "degrade", cfg.Gateway.ExhaustedPolicy)
	require.True(t, cfg.Upstream.Breaker.Enabled)
	require.Equal(t, 60*time.Second, cfg.RequestTimeout())

	gw := cfg.GatewayConfig()
	require.Equal(t, 3, gw.Retry.MaxAttempts)
	require.Equal(t, time.Second, gw.Retry.MinDelay)
	require.Equal(t, 3*time.Second, gw.Retry.MaxDelay)
	require.Equal(t, trends.PolicyDegrade, gw.Assembler.Policy)
	require.Equal(t, 300*time.Second, gw.Assembler.RetryAfter)
	require.Equal(t, 30, gw.Assembler.FallbackDays)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
gateway:
  allowed_geos: ["US", "FR"]
  default_geo: FR
  default_keyword: golang
  max_attempts: 5
  min_delay_ms: 100
  max_delay_ms: 200
  exhausted_policy: surface
  retry_after_seconds: 120
upstream:
  base_url: http://localhost:8081
  breaker:
    enabled: false
  rate_limit:
    rps: 0
events:
  pubsub:
    project_id: proj
    topic_name: degradations
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, []string{"US", "FR"}, cfg.Gateway.AllowedGeos)
	require.False(t, cfg.Upstream.Breaker.Enabled)
	require.Equal(t, "degradations", cfg.Events.PubSub.TopicName)
	require.True(t, cfg.Logging.Development)

	gw := cfg.GatewayConfig()
	require.Equal(t, "FR", gw.DefaultGeo)
	require.Equal(t, "golang", gw.DefaultKeyword)
	require.Equal(t, 5, gw.Retry.MaxAttempts)
	require.Equal(t, 100*time.Millisecond, gw.Retry.MinDelay)
	require.Equal(t, trends.PolicySurface, gw.Assembler.Policy)
	require.Equal(t, 2*time.Minute, gw.Assembler.RetryAfter)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("TRENDS_GATEWAY_ALLOWED_GEOS", "US,GB,DE")
	t.Setenv("TRENDS_GATEWAY_MAX_ATTEMPTS", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8088, cfg.Server.Port)
	require.Equal(t, []string{"US", "GB", "DE"}, cfg.Gateway.AllowedGeos)
	require.Equal(t, 4, cfg.Gateway.MaxAttempts)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "empty allow-list", mutate: func(c *Config) { c.Gateway.AllowedGeos = nil }, want: "gateway.allowed_geos"},
		{name: "no attempts", mutate: func(c *Config) { c.Gateway.MaxAttempts = 0 }, want: "gateway.max_attempts"},
		{name: "inverted delays", mutate: func(c *Config) { c.Gateway.MinDelayMs = 500; c.Gateway.MaxDelayMs = 100 }, want: "gateway delays"},
		{name: "unknown policy", mutate: func(c *Config) { c.Gateway.ExhaustedPolicy = "panic" }, want: "gateway.exhausted_policy"},
		{name: "relative upstream", mutate: func(c *Config) { c.Upstream.BaseURL = "trends" }, want: "upstream.base_url"},
		{name: "breaker ratio", mutate: func(c *Config) { c.Upstream.Breaker.FailureRatio = 2 }, want: "failure_ratio"},
		{name: "half pubsub", mutate: func(c *Config) { c.Events.PubSub.ProjectID = "p" }, want: "events.pubsub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Gateway.AllowedGeos = append([]string(nil), base.Gateway.AllowedGeos...)
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
