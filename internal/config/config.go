// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes bot settings such as
// the Telegram token, database selection, quote polling and retry behavior,
// notification pacing, the ops HTTP server, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the ops API.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "token-alert-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	DSN    string // Postgres DSN
}

// QuoteConfig controls the price quote client.
type QuoteConfig struct {
	BaseURL      string        // e.g. https://api.dexscreener.com
	Attempts     int           // total attempts per quote, including the first
	RetryWait    time.Duration // initial backoff
	RetryMaxWait time.Duration // backoff ceiling
	Timeout      time.Duration // per-attempt HTTP timeout
}

// HTTPConfig configures the ops HTTP server.
type HTTPConfig struct {
	Enabled           bool
	Token             string // bearer token required on the API group
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test
	APIBasePath       string
	RateRPS           float64
	RateBurst         int
	CORS              CORSConfig
	Security          SecurityConfig
}

// Config holds all configuration values for the application.
type Config struct {
	// Bot
	BotToken string

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Storage
	DB DBConfig

	// Refresh cycle
	UpdateEvery       time.Duration // scheduler period, whole minutes
	NotifyMinInterval time.Duration // pause between two outbound alerts
	CycleFailFast     bool          // abort a cycle on the first failed quote
	CatalogPath       string        // optional YAML catalog of supported tokens

	Quote QuoteConfig
	HTTP  HTTPConfig

	// Observability
	OTEL OTELConfig
}

// RequireBotToken reports an error when no Telegram token is configured.
// Only commands that talk to Telegram need one.
func (c Config) RequireBotToken() error {
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN must be set")
	}
	return nil
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
		BotToken: strings.TrimSpace(getenv("BOT_TOKEN", "")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "data/database.db"),
			DSN:    getenv("DB_DSN", ""),
		},

		UpdateEvery:       time.Duration(getint("UPDATE_EVERY_MINUTES", 5)) * time.Minute,
		NotifyMinInterval: getdur("NOTIFY_MIN_INTERVAL", 50*time.Millisecond),
		CycleFailFast:     getbool("CYCLE_FAIL_FAST", true),
		CatalogPath:       getenv("CATALOG_PATH", ""),

		Quote: QuoteConfig{
			BaseURL:      strings.TrimRight(getenv("QUOTE_BASE_URL", "https://api.dexscreener.com"), "/"),
			Attempts:     getint("QUOTE_ATTEMPTS", 5),
			RetryWait:    getdur("QUOTE_RETRY_WAIT", time.Second),
			RetryMaxWait: getdur("QUOTE_RETRY_MAX_WAIT", time.Minute),
			Timeout:      getdur("QUOTE_TIMEOUT", 10*time.Second),
		},

		HTTP: HTTPConfig{
			Enabled:           getbool("OPS_ENABLED", false),
			Token:             strings.TrimSpace(getenv("OPS_TOKEN", "")),
			Port:              getenv("PORT", "8080"),
			ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
			ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
			WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
			IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
			MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
			GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
			APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
			RateRPS:           getfloat("RATE_RPS", 5.0),
			RateBurst:         getint("RATE_BURST", 10),
			CORS: CORSConfig{
				AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
			},
			Security: SecurityConfig{
				EnableHSTS: getbool("ENABLE_HSTS", false),
				HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			},
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "token-alert-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}
	switch cfg.HTTP.GinMode {
	case "debug", "release", "test":
	default:
		cfg.HTTP.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.UpdateEvery < time.Minute {
		return cfg, errors.New("UPDATE_EVERY_MINUTES must be >= 1")
	}
	if cfg.NotifyMinInterval < 0 {
		return cfg, errors.New("NOTIFY_MIN_INTERVAL must be >= 0")
	}
	if cfg.Quote.BaseURL == "" {
		return cfg, errors.New("QUOTE_BASE_URL must not be empty")
	}
	if cfg.Quote.Attempts < 1 {
		return cfg, errors.New("QUOTE_ATTEMPTS must be >= 1")
	}
	if cfg.Quote.RetryWait <= 0 || cfg.Quote.RetryMaxWait < cfg.Quote.RetryWait {
		return cfg, errors.New("QUOTE_RETRY_WAIT must be > 0 and <= QUOTE_RETRY_MAX_WAIT")
	}
	if cfg.Quote.Timeout <= 0 {
		return cfg, errors.New("QUOTE_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.HTTP.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	h := cfg.HTTP
	if h.Enabled && h.Token == "" {
		return cfg, errors.New("OPS_TOKEN must be set when OPS_ENABLED=true")
	}
	if h.ReadTimeout <= 0 || h.ReadHeaderTimeout <= 0 || h.WriteTimeout <= 0 || h.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if h.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if h.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if h.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if h.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
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
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
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
