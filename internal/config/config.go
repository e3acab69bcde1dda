// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Model     ModelConfig     `mapstructure:"model"`
	Embedder  EmbedderConfig  `mapstructure:"embedder"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// Timezone is the IANA zone due dates are interpreted in.
	Timezone          string        `mapstructure:"timezone"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	// SideEffectTimeout bounds the audit write and event publish that follow
	// each prediction off the request path.
	SideEffectTimeout time.Duration `mapstructure:"side_effect_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CORSConfig configures cross-origin access for the browser front-end.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// ModelConfig locates the classifier artifact and label encoder.
type ModelConfig struct {
	// Source is local, gcs or memory.
	Source             string `mapstructure:"source"`
	Path               string `mapstructure:"path"`
	LabelEncoderPath   string `mapstructure:"label_encoder_path"`
	SHA256             string `mapstructure:"sha256"`
	LabelEncoderSHA256 string `mapstructure:"label_encoder_sha256"`
	// BaseDir resolves relative local paths. Empty means the executable's directory.
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	// FailFast turns a model load failure into a startup error.
	FailFast bool `mapstructure:"fail_fast"`
}

// EmbedderConfig selects the text encoder.
type EmbedderConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Bigrams    bool   `mapstructure:"bigrams"`
}

// CacheConfig controls the embedding cache.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	Size          int           `mapstructure:"size"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisUsername string        `mapstructure:"redis_username"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig sets the per-client request budget. RPS 0 disables it.
type RateLimitConfig struct {
	RPS        float64 `mapstructure:"rps"`
	Burst      int     `mapstructure:"burst"`
	MaxClients int     `mapstructure:"max_clients"`
}

// DBConfig controls the optional prediction audit table.
type DBConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for prediction event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRIORITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return Config{}, err
	}

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

// bindAliases maps conventional platform variables onto config keys. The
// prefixed name is listed first so it wins when both are set.
func bindAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"server.port":       {"PRIORITY_SERVER_PORT", "PORT"},
		"embedder.api_key":  {"PRIORITY_EMBEDDER_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"},
		"db.dsn":            {"PRIORITY_DB_DSN", "DATABASE_URL"},
		"pubsub.project_id": {"PRIORITY_PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.side_effect_timeout", 5*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("cors.enabled", true)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "X-API-Key", "X-Request-ID"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 300)
	v.SetDefault("model.source", "local")
	v.SetDefault("model.path", "priority_model.json")
	v.SetDefault("model.label_encoder_path", "")
	v.SetDefault("model.sha256", "")
	v.SetDefault("model.label_encoder_sha256", "")
	v.SetDefault("model.base_dir", "")
	v.SetDefault("model.gcs_bucket", "")
	v.SetDefault("model.fail_fast", false)
	v.SetDefault("embedder.provider", "hashing")
	v.SetDefault("embedder.model", "")
	v.SetDefault("embedder.dimensions", 0)
	v.SetDefault("embedder.api_key", "")
	v.SetDefault("embedder.base_url", "")
	v.SetDefault("embedder.bigrams", true)
	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.size", 4096)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_username", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.prefix", "priority:emb:")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("ratelimit.max_clients", 10000)
	v.SetDefault("db.enabled", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "predictions")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("db.auto_migrate", false)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "priority-api")
	v.SetDefault("telemetry.service_version", "dev")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if _, err := c.Server.Location(); err != nil {
		return err
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Model.Source {
	case "local", "memory":
	case "gcs":
		if c.Model.GCSBucket == "" {
			return fmt.Errorf("model.gcs_bucket must be set when model.source is gcs")
		}
	default:
		return fmt.Errorf("model.source must be one of local, gcs, memory")
	}
	if strings.TrimSpace(c.Model.Path) == "" {
		return fmt.Errorf("model.path is required")
	}
	switch strings.ToLower(c.Embedder.Provider) {
	case "hashing":
	case "openai", "genai":
		if c.Embedder.APIKey == "" {
			return fmt.Errorf("embedder.api_key must be set for provider %s", c.Embedder.Provider)
		}
	default:
		return fmt.Errorf("embedder.provider must be one of hashing, openai, genai")
	}
	if c.Embedder.Dimensions < 0 {
		return fmt.Errorf("embedder.dimensions must be >= 0")
	}
	switch c.Cache.Backend {
	case "", "none", "lru":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr must be set when cache.backend is redis")
		}
	default:
		return fmt.Errorf("cache.backend must be one of none, lru, redis")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("ratelimit.rps must be >= 0")
	}
	if c.DB.Enabled && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}

// Location resolves the configured time zone.
func (s ServerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("server.timezone: %w", err)
	}
	return loc, nil
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
