// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database, authentication, the commerce
// gateway, portal limits, storage, mail and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-refund-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the SQL backend.
type DBConfig struct {
	Driver      string // sqlite|postgres
	Path        string // SQLite file path
	URL         string // Postgres DSN
	MaxConns    int
	AutoMigrate bool
}

// AuthConfig selects how merchant identity is established.
//
// Mode "jwt" verifies signed session tokens; mode "static" pins a fixed
// identity and is meant for local development only.
type AuthConfig struct {
	Mode               string // jwt|static
	JWTSecret          string
	DevMerchantID      string
	DevAuthorizedAppID string
}

// GatewayConfig configures the commerce platform client.
type GatewayConfig struct {
	Mode        string // graphql|fixture
	URL         string
	Timeout     time.Duration
	MaxRetries  int
	Concurrency int
	CacheTTL    time.Duration
}

// RedisConfig configures the optional Redis connection used for portal
// sessions and the order cache. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PortalConfig bounds the anonymous customer portal.
type PortalConfig struct {
	SessionTTL time.Duration
	BodyLimit  int64
	RateRPS    float64
	RateBurst  int
}

// MinioConfig configures object storage for portal photos. An empty
// Endpoint keeps images inline on the refund record.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// MailConfig configures outbound notifications. An empty Host disables mail.
type MailConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	MerchantNotify string
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

	// Persistence
	DB DBConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Auth    AuthConfig
	Gateway GatewayConfig
	Redis   RedisConfig
	Portal  PortalConfig
	Minio   MinioConfig
	Mail    MailConfig

	// Observability
	OTEL OTELConfig
}

// LoadDotEnv loads variables from the given files (default ".env") into the
// process environment without overriding values that are already set. A
// missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
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

		DB: DBConfig{
			Driver:      strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:        getenv("DB_PATH", "refunds.db"),
			URL:         getenv("DATABASE_URL", ""),
			MaxConns:    getint("DB_MAX_CONNS", 10),
			AutoMigrate: getbool("DB_AUTO_MIGRATE", true),
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

		Auth: AuthConfig{
			Mode:               strings.ToLower(getenv("AUTH_MODE", "jwt")),
			JWTSecret:          getenv("JWT_SECRET", ""),
			DevMerchantID:      getenv("DEV_MERCHANT_ID", ""),
			DevAuthorizedAppID: getenv("DEV_AUTHORIZED_APP_ID", ""),
		},

		Gateway: GatewayConfig{
			Mode:        strings.ToLower(getenv("GATEWAY_MODE", "graphql")),
			URL:         getenv("GATEWAY_URL", "https://api.myikas.com/api/v1/admin/graphql"),
			Timeout:     getdur("GATEWAY_TIMEOUT", 10*time.Second),
			MaxRetries:  getint("GATEWAY_MAX_RETRIES", 3),
			Concurrency: getint("GATEWAY_CONCURRENCY", 8),
			CacheTTL:    getdur("ORDER_CACHE_TTL", 60*time.Second),
		},

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		Portal: PortalConfig{
			SessionTTL: getdur("PORTAL_SESSION_TTL", 30*time.Minute),
			BodyLimit:  int64(getint("PORTAL_BODY_LIMIT", 40<<20)),
			RateRPS:    getfloat("PUBLIC_RATE_RPS", 1.0),
			RateBurst:  getint("PUBLIC_RATE_BURST", 5),
		},

		Minio: MinioConfig{
			Endpoint:  getenv("MINIO_ENDPOINT", ""),
			AccessKey: getenv("MINIO_ACCESS_KEY", ""),
			SecretKey: getenv("MINIO_SECRET_KEY", ""),
			Bucket:    getenv("MINIO_BUCKET", "refund-photos"),
			UseSSL:    getbool("MINIO_USE_SSL", false),
			PublicURL: getenv("MINIO_PUBLIC_URL", ""),
		},

		Mail: MailConfig{
			Host:           getenv("SMTP_HOST", ""),
			Port:           getint("SMTP_PORT", 587),
			Username:       getenv("SMTP_USERNAME", ""),
			Password:       getenv("SMTP_PASSWORD", ""),
			From:           getenv("MAIL_FROM", ""),
			MerchantNotify: getenv("MERCHANT_NOTIFY_EMAIL", ""),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-refund-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints. Load calls it; tests and the CLI
// may call it on hand-built configs.
func (cfg Config) Validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be sqlite or postgres")
	}

	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}

	switch cfg.Auth.Mode {
	case "jwt":
		if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
			return errors.New("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case "static":
		if cfg.Auth.DevMerchantID == "" || cfg.Auth.DevAuthorizedAppID == "" {
			return errors.New("DEV_MERCHANT_ID and DEV_AUTHORIZED_APP_ID are required when AUTH_MODE=static")
		}
	default:
		return errors.New("AUTH_MODE must be jwt or static")
	}

	switch cfg.Gateway.Mode {
	case "graphql":
		if strings.TrimSpace(cfg.Gateway.URL) == "" {
			return errors.New("GATEWAY_URL must not be empty")
		}
	case "fixture":
	default:
		return errors.New("GATEWAY_MODE must be graphql or fixture")
	}
	if cfg.Gateway.Timeout <= 0 {
		return errors.New("GATEWAY_TIMEOUT must be > 0")
	}
	if cfg.Gateway.MaxRetries < 0 {
		return errors.New("GATEWAY_MAX_RETRIES must be >= 0")
	}
	if cfg.Gateway.Concurrency < 1 {
		return errors.New("GATEWAY_CONCURRENCY must be >= 1")
	}

	if cfg.Portal.SessionTTL <= 0 {
		return errors.New("PORTAL_SESSION_TTL must be > 0")
	}
	if cfg.Portal.BodyLimit < 1<<20 {
		return errors.New("PORTAL_BODY_LIMIT must be >= 1MiB")
	}
	if cfg.Portal.RateRPS < 0 || cfg.Portal.RateBurst < 1 {
		return errors.New("PUBLIC_RATE_RPS must be >= 0 and PUBLIC_RATE_BURST >= 1")
	}

	if cfg.Minio.Endpoint != "" && (cfg.Minio.AccessKey == "" || cfg.Minio.SecretKey == "" || cfg.Minio.Bucket == "") {
		return errors.New("MINIO_ACCESS_KEY, MINIO_SECRET_KEY and MINIO_BUCKET are required when MINIO_ENDPOINT is set")
	}
	if cfg.Mail.Host != "" && cfg.Mail.From == "" {
		return errors.New("MAIL_FROM is required when SMTP_HOST is set")
	}

	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
