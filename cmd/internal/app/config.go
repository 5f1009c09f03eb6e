package app

import "time"

// Session store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	RedisURL string

	// SessionStore selects the session backend explicitly. Empty means auto:
	// postgres when DatabaseURL is set, otherwise redis when RedisURL is set,
	// otherwise memory.
	SessionStore string

	// SweepInterval is how often expired session records are purged.
	SweepInterval time.Duration

	// If true, /readyz returns 503 unless the configured store is reachable.
	ReadinessRequireStore bool

	// Security policy:
	// If true, BEACON_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and
	// renewable-value hashing must be HMAC-based.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("BEACON_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("BEACON_LOG_LEVEL", "info"),
		LogFormat: EnvString("BEACON_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("BEACON_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("BEACON_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("BEACON_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("BEACON_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("BEACON_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("BEACON_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("BEACON_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("BEACON_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("BEACON_DB_SCHEMA", "beacon"),

		RedisURL: EnvString("BEACON_REDIS_URL", ""),

		SessionStore: EnvString("BEACON_SESSION_STORE", ""),

		SweepInterval: EnvDuration("BEACON_SWEEP_INTERVAL", 10*time.Minute),

		ReadinessRequireStore: EnvBool("BEACON_READINESS_REQUIRE_STORE", false),

		RequireTokenHMAC: EnvBool("BEACON_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvCSV("BEACON_CORS_ALLOWED_ORIGINS", ""),
		CORSAllowCredentials: EnvBool("BEACON_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("BEACON_CORS_MAX_AGE_SECONDS", 600),
	}
}

// ResolvedSessionStore returns the effective session backend.
func (c Config) ResolvedSessionStore() string {
	switch c.SessionStore {
	case StoreMemory, StorePostgres, StoreRedis:
		return c.SessionStore
	}
	if c.DatabaseURL != "" {
		return StorePostgres
	}
	if c.RedisURL != "" {
		return StoreRedis
	}
	return StoreMemory
}
