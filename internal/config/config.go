// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config groups every tunable the binaries read from the environment.
type Config struct {
	Addr        string
	PostgresDSN string

	AuthSecret       string
	AuthIssuer       string
	AccessTokenTTL   time.Duration
	MaxCredentialAge time.Duration

	AllowedOrigins []string
	FrontendURL    string

	RateLimitPerCredential int
	RateLimitWindow        time.Duration
	RateLimitPerIP         float64
	RateLimitBurst         int

	UploadDir        string
	MaxUploadBytes   int64
	AllowedMIMETypes []string
	CDNURL           string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	EnableEmail    bool
	EnableUploads  bool
	EnableRealtime bool
}

// Load reads configuration from PROCUR_* (and SMTP_*) environment
// variables, applying defaults suitable for local development.
func Load() Config {
	return Config{
		Addr:        getString("PROCUR_ADDR", ":8080"),
		PostgresDSN: os.Getenv("PROCUR_PG_DSN"),

		AuthSecret:       os.Getenv("PROCUR_AUTH_SECRET"),
		AuthIssuer:       getString("PROCUR_AUTH_ISSUER", "procur.org"),
		AccessTokenTTL:   getDuration("PROCUR_ACCESS_TOKEN_TTL", time.Hour),
		MaxCredentialAge: getDuration("PROCUR_MAX_CREDENTIAL_AGE", 24*time.Hour),

		AllowedOrigins: getList("PROCUR_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		FrontendURL:    getString("PROCUR_FRONTEND_URL", "http://localhost:3000"),

		RateLimitPerCredential: getInt("PROCUR_RATE_LIMIT_PER_CREDENTIAL", 5),
		RateLimitWindow:        getDuration("PROCUR_RATE_LIMIT_WINDOW", time.Minute),
		RateLimitPerIP:         getFloat("PROCUR_RATE_LIMIT_PER_IP", 20),
		RateLimitBurst:         getInt("PROCUR_RATE_LIMIT_BURST", 40),

		UploadDir:      getString("PROCUR_UPLOAD_DIR", "uploads"),
		MaxUploadBytes: getInt64("PROCUR_MAX_UPLOAD_BYTES", 5<<20),
		AllowedMIMETypes: getList("PROCUR_ALLOWED_MIME_TYPES",
			[]string{"image/jpeg", "image/png", "image/gif", "image/webp"}),
		CDNURL: os.Getenv("PROCUR_CDN_URL"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getString("SMTP_FROM", "noreply@procur.org"),
		SMTPFromName: getString("SMTP_FROM_NAME", "Procur"),

		EnableEmail:    getBool("ENABLE_EMAIL_NOTIFICATIONS", false),
		EnableUploads:  getBool("ENABLE_FILE_UPLOADS", true),
		EnableRealtime: getBool("ENABLE_REALTIME_NOTIFICATIONS", false),
	}
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
