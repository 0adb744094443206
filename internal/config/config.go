// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, classification capabilities, notification transports,
// admin authentication, rate limiting and observability.
package config

import (
	"errors"
	"fmt"
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

// ClassifierConfig selects the primary classification provider.
type ClassifierConfig struct {
	Mode          string        // CLASSIFIER_MODE: keyword|similarity|llm
	ExemplarsPath string        // CLASSIFIER_EXEMPLARS: optional markdown file
	MinScore      float64       // CLASSIFIER_MIN_SCORE for similarity mode
	Timeout       time.Duration // CLASSIFIER_TIMEOUT per external call
}

// LLMConfig points at an OpenAI-compatible chat-completions endpoint. It is
// shared by the LLM classifier and the formal letter generator.
type LLMConfig struct {
	BaseURL    string // LLM_BASE_URL
	APIKey     string // LLM_API_KEY
	Model      string // LLM_MODEL
	Timeout    time.Duration
	MaxRetries int
}

// CapabilityConfig is an HTTP inference endpoint (captioning, speech-to-text).
type CapabilityConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// StorageConfig selects where evidence photos and voice notes are kept.
type StorageConfig struct {
	Backend         string // STORAGE_BACKEND: local|azure
	LocalRoot       string // STORAGE_LOCAL_ROOT
	AzureConnString string // AZURE_STORAGE_CONNECTION_STRING
	AzureContainer  string // AZURE_STORAGE_CONTAINER
	MaxUploadBytes  int64  // MAX_UPLOAD_BYTES per file
}

// NotifyConfig configures citizen notifications. Every transport is
// optional; missing credentials disable it.
type NotifyConfig struct {
	SendGridAPIKey  string
	SendGridBaseURL string
	FromEmail       string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMSEnabled      bool
	Timeout         time.Duration
}

// AdminConfig configures operator authentication.
type AdminConfig struct {
	JWTSecret         string        // JWT_SECRET; empty means a per-process random secret
	TokenTTL          time.Duration // ADMIN_TOKEN_TTL
	Issuer            string        // JWT_ISSUER
	BootstrapUsername string        // ADMIN_BOOTSTRAP_USERNAME
	BootstrapPassword string        // ADMIN_BOOTSTRAP_PASSWORD
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// Complaint store
	DBPath         string
	TrackingPrefix string // TRACKING_PREFIX, e.g. "CIV"
	TrackingDigits int    // TRACKING_DIGITS
	MaxTextRunes   int    // MAX_TEXT_RUNES across description and notes
	ExportMaxRows  int    // EXPORT_MAX_ROWS
	StatsTimezone  string // STATS_TIMEZONE (IANA name)
	StatsLocation  *time.Location

	Classifier  ClassifierConfig
	LLM         LLMConfig
	Captioner   CapabilityConfig
	Transcriber CapabilityConfig
	Storage     StorageConfig
	Notify      NotifyConfig
	Admin       AdminConfig

	// Rate limiting of public submission
	RateRPS         float64 // in-process token bucket
	RateBurst       int
	RedisURL        string        // REDIS_URL switches to the shared fixed-window limiter
	RateWindow      time.Duration // RATE_WINDOW for the Redis limiter
	RateWindowLimit int           // RATE_WINDOW_LIMIT for the Redis limiter

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

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

// Load reads configuration from environment variables, applies defaults,
// normalizes values and validates the result.
func Load() (Config, error) {
	hfToken := getenv("HF_API_TOKEN", "")
	capTimeout := getdur("CAPABILITY_TIMEOUT", 30*time.Second)

	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 30*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 15*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBPath:         getenv("DB_PATH", "complaints.db"),
		TrackingPrefix: strings.ToUpper(getenv("TRACKING_PREFIX", "CIV")),
		TrackingDigits: getint("TRACKING_DIGITS", 8),
		MaxTextRunes:   getint("MAX_TEXT_RUNES", 5000),
		ExportMaxRows:  getint("EXPORT_MAX_ROWS", 10000),
		StatsTimezone:  getenv("STATS_TIMEZONE", "Asia/Karachi"),

		Classifier: ClassifierConfig{
			Mode:          strings.ToLower(getenv("CLASSIFIER_MODE", "keyword")),
			ExemplarsPath: getenv("CLASSIFIER_EXEMPLARS", ""),
			MinScore:      getfloat("CLASSIFIER_MIN_SCORE", 0.2),
			Timeout:       getdur("CLASSIFIER_TIMEOUT", 10*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:    getenv("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
			APIKey:     getenv("LLM_API_KEY", ""),
			Model:      getenv("LLM_MODEL", "llama-3.3-70b-versatile"),
			Timeout:    getdur("LLM_TIMEOUT", 15*time.Second),
			MaxRetries: getint("LLM_MAX_RETRIES", 1),
		},
		Captioner: CapabilityConfig{
			URL:     getenv("CAPTION_URL", ""),
			APIKey:  hfToken,
			Timeout: capTimeout,
		},
		Transcriber: CapabilityConfig{
			URL:     getenv("TRANSCRIBE_URL", ""),
			APIKey:  hfToken,
			Timeout: capTimeout,
		},
		Storage: StorageConfig{
			Backend:         strings.ToLower(getenv("STORAGE_BACKEND", "local")),
			LocalRoot:       getenv("STORAGE_LOCAL_ROOT", "uploads"),
			AzureConnString: getenv("AZURE_STORAGE_CONNECTION_STRING", ""),
			AzureContainer:  getenv("AZURE_STORAGE_CONTAINER", "complaint-evidence"),
			MaxUploadBytes:  int64(getint("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Notify: NotifyConfig{
			SendGridAPIKey:  getenv("SENDGRID_API_KEY", ""),
			SendGridBaseURL: getenv("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
			FromEmail:       getenv("FROM_EMAIL", ""),
			SMTPHost:        getenv("SMTP_HOST", ""),
			SMTPPort:        getint("SMTP_PORT", 587),
			SMTPUsername:    getenv("SMTP_USERNAME", ""),
			SMTPPassword:    getenv("SMTP_PASSWORD", ""),
			SMSEnabled:      getbool("SMS_ENABLED", false),
			Timeout:         getdur("NOTIFY_TIMEOUT", 10*time.Second),
		},
		Admin: AdminConfig{
			JWTSecret:         getenv("JWT_SECRET", ""),
			TokenTTL:          getdur("ADMIN_TOKEN_TTL", 8*time.Hour),
			Issuer:            getenv("JWT_ISSUER", "civic-complaints"),
			BootstrapUsername: getenv("ADMIN_BOOTSTRAP_USERNAME", ""),
			BootstrapPassword: getenv("ADMIN_BOOTSTRAP_PASSWORD", ""),
		},

		RateRPS:         getfloat("RATE_RPS", 1.0),
		RateBurst:       getint("RATE_BURST", 5),
		RedisURL:        getenv("REDIS_URL", ""),
		RateWindow:      getdur("RATE_WINDOW", time.Minute),
		RateWindowLimit: getint("RATE_WINDOW_LIMIT", 30),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "civic-complaints-backend"),
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
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if !isLetters(cfg.TrackingPrefix) {
		return cfg, errors.New("TRACKING_PREFIX must be 1-8 letters")
	}
	if cfg.TrackingDigits < 6 || cfg.TrackingDigits > 12 {
		return cfg, errors.New("TRACKING_DIGITS must be between 6 and 12")
	}
	if cfg.MaxTextRunes < 0 || cfg.ExportMaxRows < 0 {
		return cfg, errors.New("MAX_TEXT_RUNES and EXPORT_MAX_ROWS must be >= 0")
	}
	loc, err := time.LoadLocation(cfg.StatsTimezone)
	if err != nil {
		return cfg, fmt.Errorf("STATS_TIMEZONE: %w", err)
	}
	cfg.StatsLocation = loc

	switch cfg.Classifier.Mode {
	case "keyword", "similarity", "llm":
	default:
		return cfg, errors.New("CLASSIFIER_MODE must be one of: keyword, similarity, llm")
	}
	if cfg.Classifier.MinScore < 0 || cfg.Classifier.MinScore > 1 {
		return cfg, errors.New("CLASSIFIER_MIN_SCORE must be between 0 and 1")
	}
	if cfg.Classifier.Timeout <= 0 || cfg.LLM.Timeout <= 0 || cfg.Notify.Timeout <= 0 {
		return cfg, errors.New("classifier, LLM and notification timeouts must be positive")
	}

	switch cfg.Storage.Backend {
	case "local":
		if strings.TrimSpace(cfg.Storage.LocalRoot) == "" {
			return cfg, errors.New("STORAGE_LOCAL_ROOT must not be empty")
		}
	case "azure":
		if cfg.Storage.AzureConnString == "" || cfg.Storage.AzureContainer == "" {
			return cfg, errors.New("azure storage needs AZURE_STORAGE_CONNECTION_STRING and AZURE_STORAGE_CONTAINER")
		}
	default:
		return cfg, errors.New("STORAGE_BACKEND must be local or azure")
	}
	if cfg.Storage.MaxUploadBytes <= 0 {
		return cfg, errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.Notify.SMTPPort <= 0 || cfg.Notify.SMTPPort > 65535 {
		return cfg, errors.New("SMTP_PORT must be a valid port")
	}

	if s := cfg.Admin.JWTSecret; s != "" && len(s) < 16 {
		return cfg, errors.New("JWT_SECRET must be at least 16 bytes")
	}
	if cfg.Admin.TokenTTL <= 0 {
		return cfg, errors.New("ADMIN_TOKEN_TTL must be > 0")
	}
	if (cfg.Admin.BootstrapUsername == "") != (cfg.Admin.BootstrapPassword == "") {
		return cfg, errors.New("ADMIN_BOOTSTRAP_USERNAME and ADMIN_BOOTSTRAP_PASSWORD must be set together")
	}

	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.RedisURL != "" && (cfg.RateWindow <= 0 || cfg.RateWindowLimit < 1) {
		return cfg, errors.New("RATE_WINDOW must be > 0 and RATE_WINDOW_LIMIT >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
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

func isLetters(s string) bool {
	if s == "" || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
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
