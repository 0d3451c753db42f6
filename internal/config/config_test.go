package config

import (
	"os"
	"testing"
)

func TestConfigLoad_Defaults(t *testing.T) {
	_ = os.Unsetenv("DASHBOARD_CACHE_DRIVER")
	_ = os.Unsetenv("DASHBOARD_KV_REST_URL")
	_ = os.Unsetenv("DASHBOARD_CACHE_TTL_SECONDS")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.CacheDriver != CacheDriverNone {
		t.Fatalf("expected auto driver to resolve to none without KV URL, got %s", cfg.CacheDriver)
	}
	if cfg.CacheTTLSeconds != 28800 {
		t.Fatalf("unexpected default TTL: %d", cfg.CacheTTLSeconds)
	}
	if cfg.CalendarDaysAhead != 150 || cfg.CalendarLimit != 150 {
		t.Fatalf("unexpected calendar defaults: %+v", cfg)
	}
	if len(cfg.AIFallbackModels) != 2 {
		t.Fatalf("unexpected fallback models: %v", cfg.AIFallbackModels)
	}
}

func TestConfigLoad_AutoPicksKVRest(t *testing.T) {
	_ = os.Setenv("DASHBOARD_KV_REST_URL", "https://kv.example.test")
	defer func() { _ = os.Unsetenv("DASHBOARD_KV_REST_URL") }()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.CacheDriver != CacheDriverKVRest {
		t.Fatalf("expected kv-rest, got %s", cfg.CacheDriver)
	}
}

func TestConfigLoad_FallbackModelsEnvOverride(t *testing.T) {
	_ = os.Setenv("DASHBOARD_AI_FALLBACK_MODELS", "a, b,,c")
	defer func() { _ = os.Unsetenv("DASHBOARD_AI_FALLBACK_MODELS") }()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if len(cfg.AIFallbackModels) != 3 || cfg.AIFallbackModels[1] != "b" {
		t.Fatalf("fallback models override failed, got %q", cfg.AIFallbackModels)
	}
}

func TestResolveDefaults(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"testing config is valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.CacheDriver = "redis" }, true},
		{"kv-rest without url", func(c *Config) { c.CacheDriver = CacheDriverKVRest }, true},
		{"postgres without dsn", func(c *Config) { c.CacheDriver = CacheDriverPostgres }, true},
		{"sqlite needs nothing", func(c *Config) { c.CacheDriver = CacheDriverSQLite }, false},
		{"bad timezone", func(c *Config) { c.TimeZone = "Mars/Olympus" }, true},
		{"bad clock", func(c *Config) { c.NewsletterRefreshAt = "8am" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewForTesting()
			tc.mutate(cfg)
			err := cfg.ResolveDefaults()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("13:45")
	if err != nil || h != 13 || m != 45 {
		t.Fatalf("ParseClock: h=%d m=%d err=%v", h, m, err)
	}
}
