// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage drivers, metering (bypass accounts, per-user locking),
// rate limiting, and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the persistence driver for the ledger and job tables.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	DSN    string // Postgres DSN
}

// MeteringConfig holds the credit metering knobs.
type MeteringConfig struct {
	// BypassUserIDs and BypassEmails form the allowlist of accounts exempt
	// from metering (internal/admin testing).
	BypassUserIDs []string
	BypassEmails  []string

	// ExecutorToken authenticates executor and billing callbacks. Empty
	// disables the check (dev only).
	ExecutorToken string
}

// LockConfig configures per-user serialization of balance mutations.
type LockConfig struct {
	Backend       string        // memory|redis
	RedisAddr     string        // host:port
	RedisPassword string        // optional
	RedisDB       int           // logical db index
	TTL           time.Duration // lease for the redis lock
	Wait          time.Duration // max time to wait for a contended lock
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB DBConfig

	// Metering
	Metering MeteringConfig
	Lock     LockConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "pdfops.db"),
			DSN:    getenv("DB_DSN", ""),
		},

		// Metering
		Metering: MeteringConfig{
			BypassUserIDs: splitCSV(getenv("BYPASS_USER_IDS", "")),
			BypassEmails:  splitCSV(getenv("BYPASS_EMAILS", "")),
			ExecutorToken: getenv("EXECUTOR_TOKEN", ""),
		},
		Lock: LockConfig{
			Backend:       strings.ToLower(getenv("LOCK_BACKEND", "memory")),
			RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
			TTL:           getdur("LOCK_TTL", 10*time.Second),
			Wait:          getdur("LOCK_WAIT", 5*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "pdfops-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	if c.DB.Driver == "postgresql" || c.DB.Driver == "pg" {
		c.DB.Driver = "postgres"
	}
	for i, e := range c.Metering.BypassEmails {
		c.Metering.BypassEmails[i] = strings.ToLower(e)
	}
}

func (c Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	for _, d := range []time.Duration{c.ReadTimeout, c.ReadHeaderTimeout, c.WriteTimeout, c.IdleTimeout} {
		if d <= 0 {
			return errors.New("timeouts must be positive durations")
		}
	}
	if c.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if err := c.DB.validate(); err != nil {
		return err
	}
	if err := c.Lock.validate(); err != nil {
		return err
	}
	switch {
	case c.RateRPS < 0:
		return errors.New("RATE_RPS must be >= 0")
	case c.RateBurst < 1:
		return errors.New("RATE_BURST must be >= 1")
	case c.Security.HSTSMaxAge < 0:
		return errors.New("HSTS_MAX_AGE must be >= 0")
	case c.IdempotencyTTL <= 0:
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	case c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1:
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

func (d DBConfig) validate() error {
	switch d.Driver {
	case "sqlite":
		if strings.TrimSpace(d.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(d.DSN) == "" {
			return errors.New("DB_DSN must be set when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	return nil
}

func (l LockConfig) validate() error {
	switch l.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(l.RedisAddr) == "" {
			return errors.New("REDIS_ADDR must be set when LOCK_BACKEND=redis")
		}
	default:
		return errors.New("LOCK_BACKEND must be one of: memory, redis")
	}
	if l.TTL <= 0 || l.Wait <= 0 {
		return errors.New("LOCK_TTL and LOCK_WAIT must be positive durations")
	}
	return nil
}

// ---- env helpers ----

// lookup returns parse(v) for a set, non-empty k, or def when unset or
// unparsable.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return lookup(k, def, func(v string) (string, error) { return v, nil })
}

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, time.ParseDuration) }

func getbool(k string, def bool) bool {
	return lookup(k, def, func(v string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, errors.New("not a bool")
	})
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and no trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
