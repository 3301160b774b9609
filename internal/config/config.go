// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, quota limits, provider
// credentials, rate limiting, and observability.
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

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// QuotaConfig defines the metered translation limits per plan tier.
type QuotaConfig struct {
	FreePerPeriod int64 // FREE_QUOTA (default 50)
	ProPerPeriod  int64 // PRO_QUOTA (default 8000)
}

// ProviderConfig defines the generative translation provider settings.
type ProviderConfig struct {
	APIKey  string        // GEMINI_API_KEY
	Model   string        // GEMINI_MODEL
	Timeout time.Duration // GEMINI_TIMEOUT; must stay below the webhook delivery timeout
}

// ChatConfig defines the chat platform credentials.
type ChatConfig struct {
	ChannelSecret string        // LINE_CHANNEL_SECRET (webhook signature key)
	AccessToken   string        // LINE_CHANNEL_ACCESS_TOKEN
	Timeout       time.Duration // LINE_TIMEOUT for reply/push calls
	BotName       string        // BOT_MENTION_NAME, e.g. "@translator"
}

// BillingConfig defines the payment processor settings.
type BillingConfig struct {
	SecretKey       string // STRIPE_SECRET_KEY
	WebhookSecret   string // STRIPE_WEBHOOK_SECRET
	PriceMonthlyID  string // STRIPE_PRICE_MONTHLY_ID
	CheckoutBaseURL string // CHECKOUT_BASE_URL (optional pre-checkout landing)
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

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath             string // SQLite path
	MaxGroupLanguages  int    // cap on registered languages per group
	ContextWindow      int    // recent messages supplied to the provider
	TranslationRetries int    // bounded retry attempts for transient errors

	Quota    QuotaConfig
	Provider ProviderConfig
	Chat     ChatConfig
	Billing  BillingConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig

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

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:             getenv("DB_PATH", "app.db"),
		MaxGroupLanguages:  getint("MAX_GROUP_LANGUAGES", 5),
		ContextWindow:      getint("CONTEXT_WINDOW", 12),
		TranslationRetries: getint("TRANSLATION_RETRIES", 2),

		Quota: QuotaConfig{
			FreePerPeriod: int64(getint("FREE_QUOTA", 50)),
			ProPerPeriod:  int64(getint("PRO_QUOTA", 8000)),
		},
		Provider: ProviderConfig{
			APIKey:  getenv("GEMINI_API_KEY", ""),
			Model:   getenv("GEMINI_MODEL", "gemini-2.5-flash"),
			Timeout: getdur("GEMINI_TIMEOUT", 10*time.Second),
		},
		Chat: ChatConfig{
			ChannelSecret: getenv("LINE_CHANNEL_SECRET", ""),
			AccessToken:   getenv("LINE_CHANNEL_ACCESS_TOKEN", ""),
			Timeout:       getdur("LINE_TIMEOUT", 5*time.Second),
			BotName:       getenv("BOT_MENTION_NAME", "@translator"),
		},
		Billing: BillingConfig{
			SecretKey:       getenv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:   getenv("STRIPE_WEBHOOK_SECRET", ""),
			PriceMonthlyID:  getenv("STRIPE_PRICE_MONTHLY_ID", ""),
			CheckoutBaseURL: strings.TrimRight(getenv("CHECKOUT_BASE_URL", ""), "/"),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-translate-backend"),
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

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MaxGroupLanguages < 1 {
		return cfg, errors.New("MAX_GROUP_LANGUAGES must be >= 1")
	}
	if cfg.ContextWindow < 0 {
		return cfg, errors.New("CONTEXT_WINDOW must be >= 0")
	}
	if cfg.TranslationRetries < 0 {
		return cfg, errors.New("TRANSLATION_RETRIES must be >= 0")
	}
	if cfg.Quota.FreePerPeriod < 0 || cfg.Quota.ProPerPeriod < 0 {
		return cfg, errors.New("quota limits must be >= 0")
	}
	if cfg.Provider.Timeout <= 0 || cfg.Chat.Timeout <= 0 {
		return cfg, errors.New("provider and chat timeouts must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

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
