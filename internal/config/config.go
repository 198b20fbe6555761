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
	Server     ServerConfig     `mapstructure:"server"`
	Supabase   SupabaseConfig   `mapstructure:"supabase"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Translator TranslatorConfig `mapstructure:"translator"`
	Preview    PreviewConfig    `mapstructure:"preview"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Activity   ActivityConfig   `mapstructure:"activity"`
	Source     SourceConfig     `mapstructure:"source"`
	SPA        SPAConfig        `mapstructure:"spa"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RequestTimeout  int      `mapstructure:"request_timeout_seconds"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout_seconds"`
}

// SupabaseConfig points at the hosted auth provider.
type SupabaseConfig struct {
	URL     string `mapstructure:"url"`
	AnonKey string `mapstructure:"anon_key"`
	// SessionTimeoutSeconds bounds every auth round trip.
	SessionTimeoutSeconds int `mapstructure:"session_timeout_seconds"`
	MaxRetries            int `mapstructure:"max_retries"`
}

// DatabaseConfig controls access to the hosted Postgres database.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Schema          string        `mapstructure:"schema"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// CacheConfig sets the freshness windows of the in-memory stores.
type CacheConfig struct {
	NovelTTL         time.Duration `mapstructure:"novel_ttl"`
	ChapterTTL       time.Duration `mapstructure:"chapter_ttl"`
	HomeTTL          time.Duration `mapstructure:"home_ttl"`
	PrefetchCooldown time.Duration `mapstructure:"prefetch_cooldown"`
	ChapterCapacity  int           `mapstructure:"chapter_capacity"`
	NovelCapacity    int           `mapstructure:"novel_capacity"`
	PrincipalTTL     time.Duration `mapstructure:"principal_ttl"`
}

// TranslatorConfig configures the streaming completion client.
type TranslatorConfig struct {
	// Provider is "openrouter" (default) or "openai".
	Provider     string  `mapstructure:"provider"`
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Referer      string  `mapstructure:"referer"`
	Title        string  `mapstructure:"title"`
	DefaultModel string  `mapstructure:"default_model"`
	RatePerMin   float64 `mapstructure:"rate_per_minute"`
	Burst        int     `mapstructure:"burst"`
}

// PreviewConfig controls the crawler link-preview responses.
type PreviewConfig struct {
	SiteName string `mapstructure:"site_name"`
	LogoPath string `mapstructure:"logo_path"`
	// Origin overrides the request-derived origin when set.
	Origin string `mapstructure:"origin"`
	// TrustProxy honors X-Forwarded-* headers when Origin is empty.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

// StorageConfig selects the cover image backend.
type StorageConfig struct {
	// Backend is one of gcs, local or memory.
	Backend       string `mapstructure:"backend"`
	Bucket        string `mapstructure:"bucket"`
	BaseDir       string `mapstructure:"base_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	Prefix        string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for chapter notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ActivityConfig tunes the activity hub batching.
type ActivityConfig struct {
	BufferSize    int  `mapstructure:"buffer_size"`
	MaxEvents     int  `mapstructure:"max_events"`
	MaxWaitMs     int  `mapstructure:"max_wait_ms"`
	SinkTimeoutMs int  `mapstructure:"sink_timeout_ms"`
	LogEnabled    bool `mapstructure:"log_enabled"`
}

// SourceConfig configures the raw chapter importer.
type SourceConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// SPAConfig locates the built single-page application.
type SPAConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig toggles zap development features and category debug output.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	Debug       bool `mapstructure:"debug"`
}

// TracingConfig enables OpenTelemetry request tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RAYIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.anon_key", "")
	v.SetDefault("supabase.session_timeout_seconds", 5)
	v.SetDefault("supabase.max_retries", 2)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("cache.novel_ttl", 5*time.Minute)
	v.SetDefault("cache.chapter_ttl", 10*time.Minute)
	v.SetDefault("cache.home_ttl", 5*time.Minute)
	v.SetDefault("cache.prefetch_cooldown", 10*time.Second)
	v.SetDefault("cache.chapter_capacity", 512)
	v.SetDefault("cache.novel_capacity", 256)
	v.SetDefault("cache.principal_ttl", time.Minute)
	v.SetDefault("translator.provider", "openrouter")
	v.SetDefault("translator.base_url", "")
	v.SetDefault("translator.api_key", "")
	v.SetDefault("translator.referer", "")
	v.SetDefault("translator.title", "Rayin Translation Admin")
	v.SetDefault("translator.default_model", "openrouter/pony-alpha")
	v.SetDefault("translator.rate_per_minute", 6)
	v.SetDefault("translator.burst", 2)
	v.SetDefault("preview.site_name", "Rayin Translation")
	v.SetDefault("preview.logo_path", "/Logo%20Rayin%20Translation.png")
	v.SetDefault("preview.origin", "")
	v.SetDefault("preview.trust_proxy", false)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.base_dir", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.prefix", "covers")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("activity.buffer_size", 4096)
	v.SetDefault("activity.max_events", 500)
	v.SetDefault("activity.max_wait_ms", 2000)
	v.SetDefault("activity.sink_timeout_ms", 5000)
	v.SetDefault("activity.log_enabled", false)
	v.SetDefault("source.user_agent", "rayin-importer/0.1")
	v.SetDefault("source.timeout_seconds", 20)
	v.SetDefault("source.max_body_bytes", 4<<20)
	v.SetDefault("spa.dir", "dist")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.debug", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "rayin")
	v.SetDefault("tracing.sample_ratio", 0.1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Cache.NovelTTL <= 0 || c.Cache.ChapterTTL <= 0 || c.Cache.HomeTTL <= 0 {
		return fmt.Errorf("cache ttl values must be > 0")
	}
	if c.Cache.PrefetchCooldown < 0 {
		return fmt.Errorf("cache.prefetch_cooldown must be >= 0")
	}
	if c.Cache.ChapterCapacity <= 0 || c.Cache.NovelCapacity <= 0 {
		return fmt.Errorf("cache capacities must be > 0")
	}
	switch c.Translator.Provider {
	case "openrouter", "openai":
	default:
		return fmt.Errorf("translator.provider must be openrouter or openai, got %q", c.Translator.Provider)
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be gcs, local or memory, got %q", c.Storage.Backend)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	if c.Supabase.URL == "" && c.Supabase.AnonKey != "" {
		return fmt.Errorf("supabase.url must be set when supabase.anon_key is set")
	}
	return nil
}

// RequestTimeout converts the server timeout to a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// SessionTimeout converts the auth timeout to a duration.
func (c Config) SessionTimeout() time.Duration {
	return time.Duration(c.Supabase.SessionTimeoutSeconds) * time.Second
}
