package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Default cookie names for the credential pair.
const (
	DefaultAccessCookieName  = "beacon_access"
	DefaultRefreshCookieName = "beacon_refresh"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	// Production toggles cross-site cookie transport: Secure + SameSite=None.
	// Outside production cookies are SameSite=Lax and may travel over plain HTTP.
	Production bool

	// TrustProxy enables X-Forwarded-For / X-Real-IP for client IP resolution.
	TrustProxy bool

	AccessCookieName  string
	RefreshCookieName string
	CookiePath        string
	CookieDomain      string

	MaxBodyBytes int64
}

// LoadConfigFromEnv loads auth API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Production:        strings.EqualFold(strings.TrimSpace(os.Getenv("BEACON_ENV")), "production"),
		TrustProxy:        envBool("BEACON_AUTH_TRUST_PROXY", false),
		AccessCookieName:  envString("BEACON_AUTH_ACCESS_COOKIE", DefaultAccessCookieName),
		RefreshCookieName: envString("BEACON_AUTH_REFRESH_COOKIE", DefaultRefreshCookieName),
		CookiePath:        envString("BEACON_AUTH_COOKIE_PATH", "/"),
		CookieDomain:      strings.TrimSpace(os.Getenv("BEACON_AUTH_COOKIE_DOMAIN")),
		MaxBodyBytes:      envInt64("BEACON_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	return cfg
}

// cookieSecure reports whether cookies must carry the Secure attribute.
func (c Config) cookieSecure() bool { return c.Production }

// cookieSameSite returns the SameSite mode for auth cookies.
// SameSite=None requires Secure, so it is tied to production.
func (c Config) cookieSameSite() http.SameSite {
	if c.Production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
