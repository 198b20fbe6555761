package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  allowed_origins: ["https://rayin.example"]
supabase:
  url: https://project.supabase.co
  anon_key: anon
database:
  dsn: postgres://localhost/rayin
cache:
  novel_ttl: 1m
  chapter_ttl: 2m
  prefetch_cooldown: 3s
translator:
  provider: openai
  api_key: sk-test
  default_model: gpt-4o-mini
storage:
  backend: local
  base_dir: /tmp/covers
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

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://rayin.example" {
		t.Fatalf("expected allowed origins override, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Supabase.URL != "https://project.supabase.co" || cfg.Supabase.AnonKey != "anon" {
		t.Fatalf("expected supabase overrides to apply: %+v", cfg.Supabase)
	}
	if cfg.Cache.NovelTTL != time.Minute || cfg.Cache.ChapterTTL != 2*time.Minute {
		t.Fatalf("expected cache ttl overrides: %+v", cfg.Cache)
	}
	if cfg.Cache.PrefetchCooldown != 3*time.Second {
		t.Fatalf("expected prefetch cooldown 3s, got %v", cfg.Cache.PrefetchCooldown)
	}
	if cfg.Cache.HomeTTL != 5*time.Minute {
		t.Fatalf("expected default home ttl, got %v", cfg.Cache.HomeTTL)
	}
	if cfg.Translator.Provider != "openai" || cfg.Translator.DefaultModel != "gpt-4o-mini" {
		t.Fatalf("expected translator overrides: %+v", cfg.Translator)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.BaseDir != "/tmp/covers" {
		t.Fatalf("expected storage overrides: %+v", cfg.Storage)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging disabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.NovelTTL != 5*time.Minute || cfg.Cache.ChapterTTL != 10*time.Minute {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Cache.PrefetchCooldown != 10*time.Second {
		t.Fatalf("unexpected prefetch cooldown: %v", cfg.Cache.PrefetchCooldown)
	}
	if cfg.Translator.BaseURL != "" {
		t.Fatalf("unexpected translator base url: %s", cfg.Translator.BaseURL)
	}
	if cfg.Translator.DefaultModel != "openrouter/pony-alpha" {
		t.Fatalf("unexpected default model: %s", cfg.Translator.DefaultModel)
	}
	if cfg.Preview.SiteName != "Rayin Translation" {
		t.Fatalf("unexpected site name: %s", cfg.Preview.SiteName)
	}
	if got := cfg.SessionTimeout(); got != 5*time.Second {
		t.Fatalf("expected session timeout 5s, got %v", got)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("RAYIN_SERVER_PORT", "7070")
	t.Setenv("RAYIN_TRANSLATOR_API_KEY", "sk-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Translator.APIKey != "sk-env" {
		t.Fatalf("expected env api key, got %q", cfg.Translator.APIKey)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero ttl", func(c *Config) { c.Cache.ChapterTTL = 0 }},
		{"negative cooldown", func(c *Config) { c.Cache.PrefetchCooldown = -time.Second }},
		{"zero capacity", func(c *Config) { c.Cache.ChapterCapacity = 0 }},
		{"unknown provider", func(c *Config) { c.Translator.Provider = "anthropic" }},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = "gcs" }},
		{"local without dir", func(c *Config) { c.Storage.Backend = "local" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"anon key without url", func(c *Config) { c.Supabase.AnonKey = "anon" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
