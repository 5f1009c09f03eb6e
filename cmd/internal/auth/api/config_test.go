package authapi

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("BEACON_ENV", "")
	t.Setenv("BEACON_AUTH_TRUST_PROXY", "")

	cfg := LoadConfigFromEnv()
	if cfg.Production {
		t.Fatal("Production should default to false")
	}
	if cfg.TrustProxy {
		t.Fatal("TrustProxy should default to false")
	}
	if cfg.AccessCookieName != DefaultAccessCookieName || cfg.RefreshCookieName != DefaultRefreshCookieName {
		t.Fatalf("cookie names = %q/%q", cfg.AccessCookieName, cfg.RefreshCookieName)
	}
	if cfg.CookiePath != "/" {
		t.Fatalf("CookiePath = %q, want /", cfg.CookiePath)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes = %d, want 1 MiB", cfg.MaxBodyBytes)
	}

	if cfg.cookieSecure() {
		t.Fatal("cookies must not require Secure outside production")
	}
	if cfg.cookieSameSite() != http.SameSiteLaxMode {
		t.Fatalf("SameSite = %v, want Lax", cfg.cookieSameSite())
	}
}

func TestLoadConfigFromEnvProduction(t *testing.T) {
	t.Setenv("BEACON_ENV", "production")
	t.Setenv("BEACON_AUTH_TRUST_PROXY", "true")
	t.Setenv("BEACON_AUTH_COOKIE_DOMAIN", "example.com")

	cfg := LoadConfigFromEnv()
	if !cfg.Production || !cfg.TrustProxy {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.CookieDomain != "example.com" {
		t.Fatalf("CookieDomain = %q", cfg.CookieDomain)
	}

	// Cross-site transport: Secure plus SameSite=None.
	if !cfg.cookieSecure() {
		t.Fatal("production cookies must be Secure")
	}
	if cfg.cookieSameSite() != http.SameSiteNoneMode {
		t.Fatalf("SameSite = %v, want None", cfg.cookieSameSite())
	}
}
