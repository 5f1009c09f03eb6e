package app

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("log defaults: level=%q format=%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.DBSchema != "beacon" {
		t.Fatalf("DBSchema=%q", cfg.DBSchema)
	}
	if cfg.SweepInterval != 10*time.Minute {
		t.Fatalf("SweepInterval=%v", cfg.SweepInterval)
	}
	if !cfg.CORSAllowCredentials {
		t.Fatalf("CORSAllowCredentials should default true")
	}
	if cfg.RequireTokenHMAC {
		t.Fatalf("RequireTokenHMAC should default false")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("BEACON_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("BEACON_SWEEP_INTERVAL", "1m")
	t.Setenv("BEACON_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("BEACON_READINESS_REQUIRE_STORE", "true")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("SweepInterval=%v", cfg.SweepInterval)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("CORSAllowedOrigins=%v", cfg.CORSAllowedOrigins)
	}
	if !cfg.ReadinessRequireStore {
		t.Fatalf("ReadinessRequireStore should be true")
	}
}

func TestResolvedSessionStore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "explicit memory", cfg: Config{SessionStore: StoreMemory, DatabaseURL: "postgres://x"}, want: StoreMemory},
		{name: "explicit redis", cfg: Config{SessionStore: StoreRedis}, want: StoreRedis},
		{name: "auto postgres", cfg: Config{DatabaseURL: "postgres://x"}, want: StorePostgres},
		{name: "auto redis", cfg: Config{RedisURL: "redis://x"}, want: StoreRedis},
		{name: "postgres wins over redis", cfg: Config{DatabaseURL: "postgres://x", RedisURL: "redis://x"}, want: StorePostgres},
		{name: "fallback memory", cfg: Config{}, want: StoreMemory},
		{name: "unknown value falls through", cfg: Config{SessionStore: "etcd"}, want: StoreMemory},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.cfg.ResolvedSessionStore(); got != tc.want {
				t.Fatalf("ResolvedSessionStore()=%q want=%q", got, tc.want)
			}
		})
	}
}
