package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PRIORITY_SERVER_PORT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Fatalf("expected default port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Fatalf("expected 30s request timeout, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.SideEffectTimeout != 5*time.Second {
		t.Fatalf("expected 5s side effect timeout, got %v", cfg.Server.SideEffectTimeout)
	}
	if cfg.Model.Source != "local" || cfg.Model.Path != "priority_model.json" {
		t.Fatalf("unexpected model defaults: %+v", cfg.Model)
	}
	if cfg.Embedder.Provider != "hashing" {
		t.Fatalf("expected hashing embedder by default, got %s", cfg.Embedder.Provider)
	}
	if !cfg.CORS.Enabled || len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "*" {
		t.Fatalf("expected permissive CORS by default: %+v", cfg.CORS)
	}
	if cfg.RateLimit.RPS != 0 || cfg.DB.Enabled || cfg.PubSub.Enabled || cfg.Telemetry.TracingEnabled {
		t.Fatalf("expected optional features disabled by default")
	}
	if cfg.Telemetry.ServiceName != "priority-api" || cfg.Telemetry.SampleRatio != 1 {
		t.Fatalf("unexpected telemetry defaults: %+v", cfg.Telemetry)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  timezone: America/New_York
  request_timeout: 5s
auth:
  enabled: true
  api_key: secret
model:
  source: gcs
  gcs_bucket: models
  path: priority/v3/priority_model.json
  sha256: abc
  fail_fast: true
embedder:
  provider: openai
  model: text-embedding-3-small
  dimensions: 256
  api_key: sk-test
cache:
  backend: redis
  redis_addr: localhost:6379
  ttl: 1h
ratelimit:
  rps: 5
  burst: 2
db:
  enabled: true
  dsn: postgres://localhost/priority
pubsub:
  enabled: true
  project_id: proj
  topic_name: predictions
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.RequestTimeout != 5*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	loc, err := cfg.Server.Location()
	if err != nil || loc.String() != "America/New_York" {
		t.Fatalf("expected New York location, got %v (%v)", loc, err)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Model.Source != "gcs" || cfg.Model.GCSBucket != "models" || !cfg.Model.FailFast {
		t.Fatalf("expected model overrides, got %+v", cfg.Model)
	}
	if cfg.Embedder.Dimensions != 256 || cfg.Cache.TTL != time.Hour {
		t.Fatalf("expected embedder/cache overrides")
	}
	if cfg.RateLimit.RPS != 5 || cfg.RateLimit.Burst != 2 {
		t.Fatalf("expected rate limit overrides, got %+v", cfg.RateLimit)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
}

func TestLoadPortFromEnv(t *testing.T) {
	t.Setenv("PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected PORT to set the port, got %d", cfg.Server.Port)
	}

	t.Setenv("PRIORITY_SERVER_PORT", "6060")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Fatalf("expected prefixed variable to win, got %d", cfg.Server.Port)
	}
}

func TestLoadPrefixedEnv(t *testing.T) {
	t.Setenv("PRIORITY_MODEL_PATH", "/models/m.json")
	t.Setenv("PRIORITY_RATELIMIT_RPS", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model.Path != "/models/m.json" || cfg.RateLimit.RPS != 2.5 {
		t.Fatalf("expected env overrides, got %+v %+v", cfg.Model, cfg.RateLimit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 5000, Timezone: "UTC", RequestTimeout: time.Second},
		Model:    ModelConfig{Source: "local", Path: "priority_model.json"},
		Embedder: EmbedderConfig{Provider: "hashing"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad timezone", func(c *Config) { c.Server.Timezone = "Mars/Olympus" }, "server.timezone"},
		{"no timeout", func(c *Config) { c.Server.RequestTimeout = 0 }, "server.request_timeout"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"unknown source", func(c *Config) { c.Model.Source = "s3" }, "model.source"},
		{"gcs without bucket", func(c *Config) { c.Model.Source = "gcs" }, "model.gcs_bucket"},
		{"empty model path", func(c *Config) { c.Model.Path = " " }, "model.path"},
		{"unknown embedder", func(c *Config) { c.Embedder.Provider = "bert" }, "embedder.provider"},
		{"openai without key", func(c *Config) { c.Embedder.Provider = "openai" }, "embedder.api_key"},
		{"negative dims", func(c *Config) { c.Embedder.Dimensions = -1 }, "embedder.dimensions"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, "cache.redis_addr"},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "disk" }, "cache.backend"},
		{"negative rps", func(c *Config) { c.RateLimit.RPS = -1 }, "ratelimit.rps"},
		{"db without dsn", func(c *Config) { c.DB.Enabled = true }, "db.dsn"},
		{"pubsub without topic", func(c *Config) { c.PubSub.Enabled = true }, "pubsub.project_id"},
		{"sample ratio above one", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, "telemetry.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	t.Parallel()

	if got := (ServerConfig{Port: 5000}).Addr(); got != ":5000" {
		t.Fatalf("expected :5000, got %s", got)
	}
}
