package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
}

// --- Load defaults ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TrackingPrefix != "CIV" || cfg.TrackingDigits != 8 {
		t.Fatalf("tracking defaults unexpected: %q %d", cfg.TrackingPrefix, cfg.TrackingDigits)
	}
	if cfg.Classifier.Mode != "keyword" || cfg.Storage.Backend != "local" {
		t.Fatalf("classifier/storage defaults unexpected: %+v %+v", cfg.Classifier, cfg.Storage)
	}
	if cfg.StatsLocation == nil || cfg.StatsLocation.String() != "Asia/Karachi" {
		t.Fatalf("stats location unexpected: %v", cfg.StatsLocation)
	}
	if cfg.Admin.JWTSecret != "" || cfg.Admin.TokenTTL != 8*time.Hour {
		t.Fatalf("admin defaults unexpected: %+v", cfg.Admin)
	}
	if cfg.Captioner.URL != "" || cfg.Transcriber.URL != "" || cfg.LLM.APIKey != "" {
		t.Fatalf("optional capabilities should default to disabled")
	}
	if cfg.RedisURL != "" || cfg.RateWindow != time.Minute || cfg.RateWindowLimit != 30 {
		t.Fatalf("rate defaults unexpected: %q %v %d", cfg.RedisURL, cfg.RateWindow, cfg.RateWindowLimit)
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_Overrides(t *testing.T) {
	// Server
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // normalizes to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // normalizes to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/")

	// Complaint store
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("TRACKING_PREFIX", "lhr")
	t.Setenv("TRACKING_DIGITS", "10")
	t.Setenv("STATS_TIMEZONE", "UTC")
	t.Setenv("MAX_TEXT_RUNES", "1000")

	// Capabilities
	t.Setenv("CLASSIFIER_MODE", "LLM")
	t.Setenv("CLASSIFIER_MIN_SCORE", "0.4")
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("HF_API_TOKEN", "hf")
	t.Setenv("CAPTION_URL", "http://caption")
	t.Setenv("TRANSCRIBE_URL", "http://stt")

	// Storage
	t.Setenv("STORAGE_BACKEND", "azure")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")

	// Notifications / admin
	t.Setenv("SMS_ENABLED", "1")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("ADMIN_BOOTSTRAP_USERNAME", "ops")
	t.Setenv("ADMIN_BOOTSTRAP_PASSWORD", "hunter22")

	// Rate limiting (invalid parse falls back to defaults)
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DBPath != "db.sqlite" || cfg.TrackingPrefix != "LHR" || cfg.TrackingDigits != 10 || cfg.MaxTextRunes != 1000 {
		t.Fatalf("complaint store unexpected: %+v", cfg)
	}
	if cfg.StatsLocation != time.UTC {
		t.Fatalf("stats location unexpected: %v", cfg.StatsLocation)
	}
	if cfg.Classifier.Mode != "llm" || cfg.Classifier.MinScore != 0.4 || cfg.LLM.APIKey != "k" {
		t.Fatalf("classifier unexpected: %+v %+v", cfg.Classifier, cfg.LLM)
	}
	if cfg.Captioner.URL != "http://caption" || cfg.Captioner.APIKey != "hf" || cfg.Transcriber.APIKey != "hf" {
		t.Fatalf("capabilities unexpected: %+v %+v", cfg.Captioner, cfg.Transcriber)
	}
	if cfg.Storage.Backend != "azure" || cfg.Storage.AzureContainer != "complaint-evidence" || cfg.Storage.MaxUploadBytes != 2048 {
		t.Fatalf("storage unexpected: %+v", cfg.Storage)
	}
	if !cfg.Notify.SMSEnabled || cfg.Notify.SMTPPort != 2525 {
		t.Fatalf("notify unexpected: %+v", cfg.Notify)
	}
	if cfg.Admin.BootstrapUsername != "ops" || cfg.Admin.JWTSecret == "" {
		t.Fatalf("admin unexpected: %+v", cfg.Admin)
	}
	if cfg.RateRPS != 1.0 || cfg.RateBurst != 5 || cfg.RedisURL == "" {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"tracking prefix digits", map[string]string{"TRACKING_PREFIX": "C1V"}, "TRACKING_PREFIX"},
		{"tracking digits range", map[string]string{"TRACKING_DIGITS": "3"}, "TRACKING_DIGITS"},
		{"unknown timezone", map[string]string{"STATS_TIMEZONE": "Mars/Olympus"}, "STATS_TIMEZONE"},
		{"classifier mode", map[string]string{"CLASSIFIER_MODE": "vibes"}, "CLASSIFIER_MODE"},
		{"classifier min score", map[string]string{"CLASSIFIER_MIN_SCORE": "1.5"}, "CLASSIFIER_MIN_SCORE"},
		{"storage backend", map[string]string{"STORAGE_BACKEND": "s3"}, "STORAGE_BACKEND"},
		{"azure without credentials", map[string]string{"STORAGE_BACKEND": "azure"}, "AZURE_STORAGE_CONNECTION_STRING"},
		{"upload cap", map[string]string{"MAX_UPLOAD_BYTES": "0"}, "MAX_UPLOAD_BYTES"},
		{"smtp port", map[string]string{"SMTP_PORT": "70000"}, "SMTP_PORT"},
		{"short jwt secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"bootstrap half set", map[string]string{"ADMIN_BOOTSTRAP_USERNAME": "ops"}, "ADMIN_BOOTSTRAP"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"redis window limit", map[string]string{"REDIS_URL": "redis://x", "RATE_WINDOW_LIMIT": "0"}, "RATE_WINDOW"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"otel sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}
	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}
	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		k := "B_T_" + string(rune('a'+i))
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		k := "B_F_" + string(rune('a'+i))
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_normalizeBasePath_isLetters(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: got %#v", got)
	}
	if normalizeBasePath("") != "/" || normalizeBasePath("v1") != "/v1" ||
		normalizeBasePath("/v1/") != "/v1" || normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath unexpected")
	}
	if !isLetters("CIV") || isLetters("") || isLetters("civ") || isLetters("ABCDEFGHI") {
		t.Fatalf("isLetters unexpected")
	}
}

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
