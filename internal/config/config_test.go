package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DM_ADDR", "DM_PAGE_SIZE", "DM_PAGE_SIZE_MAX", "AUTH_MODE", "CORS_ORIGINS", "WS_PING_INTERVAL", "RATE_LIMIT_PER_MINUTE"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.Addr != ":8085" || cfg.PageSize != 50 || cfg.PageSizeMax != 100 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AuthMode != AuthHS256 || cfg.WSPingInterval != 30*time.Second || cfg.RatePerMinute != 300 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors default: %v", cfg.CORSOrigins)
	}
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Setenv("DM_PAGE_SIZE", "20")
	t.Setenv("DM_PAGE_SIZE_MAX", "10")
	t.Setenv("WS_PING_INTERVAL", "bogus")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("AUTH_MODE", "JWKS")
	t.Setenv("DM_LOG_SQL", "true")

	cfg := Load()
	if cfg.PageSize != 20 || cfg.PageSizeMax != 20 {
		t.Fatalf("max page size should be raised to the default, got %d/%d", cfg.PageSize, cfg.PageSizeMax)
	}
	if cfg.WSPingInterval != 30*time.Second {
		t.Fatalf("invalid duration should fall back, got %v", cfg.WSPingInterval)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
	if cfg.AuthMode != AuthJWKS || !cfg.LogSQL {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	base := Config{DatabaseURL: "sqlite::memory:"}

	cfg := base
	cfg.AuthMode = AuthHS256
	if err := cfg.Validate(); err == nil {
		t.Fatalf("hs256 without secret should fail")
	}
	cfg.HS256Secret = "x"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg = base
	cfg.AuthMode = AuthJWKS
	if err := cfg.Validate(); err == nil {
		t.Fatalf("jwks without url should fail")
	}

	cfg = base
	cfg.AuthMode = "basic"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown mode should fail")
	}

	cfg = base
	cfg.AuthMode = AuthHeader
	if err := cfg.Validate(); err != nil {
		t.Fatalf("header mode needs nothing else: %v", err)
	}
}
