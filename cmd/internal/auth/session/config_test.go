package session

import (
	"errors"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	key := paseto.NewV4AsymmetricSecretKey().ExportHex()
	t.Setenv("BEACON_PASETO_V4_SECRET_KEY_HEX", key)

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "beacon" {
		t.Fatalf("Issuer = %q, want %q", cfg.Issuer, "beacon")
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("AccessTTL = %v, want 15m", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("RefreshTTL = %v, want 168h", cfg.RefreshTTL)
	}
	if cfg.PasetoV4SecretKeyHex != key {
		t.Fatal("secret key not loaded from env")
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("BEACON_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("BEACON_AUTH_ISSUER", "beacon-test")
	t.Setenv("BEACON_AUTH_ACCESS_TTL", "5m")
	t.Setenv("BEACON_AUTH_REFRESH_TTL", "48h")
	t.Setenv("BEACON_AUTH_CLOCK_SKEW", "1m")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "beacon-test" {
		t.Fatalf("Issuer = %q", cfg.Issuer)
	}
	if cfg.AccessTTL != 5*time.Minute || cfg.RefreshTTL != 48*time.Hour || cfg.ClockSkew != time.Minute {
		t.Fatalf("durations not applied: %+v", cfg)
	}
}

func TestLoadConfigFromEnvMissingKey(t *testing.T) {
	t.Setenv("BEACON_PASETO_V4_SECRET_KEY_HEX", "")

	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestLoadConfigFromEnvRejectsBadDurations(t *testing.T) {
	t.Setenv("BEACON_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())

	for _, tc := range []struct{ name, value string }{
		{"BEACON_AUTH_ACCESS_TTL", "soon"},
		{"BEACON_AUTH_ACCESS_TTL", "-5m"},
		{"BEACON_AUTH_REFRESH_TTL", "0s"},
		{"BEACON_AUTH_CLOCK_SKEW", "-1s"},
	} {
		t.Setenv(tc.name, tc.value)
		if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
			t.Fatalf("%s=%q: err = %v, want ErrConfig", tc.name, tc.value, err)
		}
		t.Setenv(tc.name, "")
	}
}

func TestLoadConfigFromEnvRefreshShorterThanAccess(t *testing.T) {
	t.Setenv("BEACON_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("BEACON_AUTH_ACCESS_TTL", "1h")
	t.Setenv("BEACON_AUTH_REFRESH_TTL", "30m")

	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}
