package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Port        string
	GinMode     string
	Environment string
	Version     string
	LogLevel    string
	LogFormat   string

	DatabaseURL string
	JWTSecret   string
	CORSOrigins []string
	SentryDSN   string

	QuickBooks QuickBooksConfig
	Google     GoogleConfig
	Sync       SyncConfig
	Redis      RedisConfig
	Mail       MailConfig
}

type QuickBooksConfig struct {
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	CompanyID       string
	BaseURL         string
	WebhookVerifier string
	FrontendURL     string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	FrontendURL  string
}

type SyncConfig struct {
	Interval  time.Duration
	AutoStart bool
}

type RedisConfig struct {
	Addr     string
	Password string
}

type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
	AdminEmail   string
}

// Load loads the configuration from a .env file (if present) and environment variables
func Load() (*Config, error) {
	// Real environment variables win; a missing .env is fine
	for _, file := range []string{"configs/.env", ".env"} {
		_ = godotenv.Load(file)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		Environment: getEnv("APP_ENV", "dev"),
		Version:     getEnv("APP_VERSION", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", getEnv("SESSION_SECRET", "")),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		QuickBooks: QuickBooksConfig{
			ClientID:        getEnv("QBO_CLIENT_ID", ""),
			ClientSecret:    getEnv("QBO_CLIENT_SECRET", ""),
			RedirectURI:     getEnv("QBO_REDIRECT_URI", "http://localhost:8080/api/integrations/quickbooks/callback"),
			CompanyID:       getEnv("QBO_COMPANY_ID", ""),
			BaseURL:         getEnv("QBO_BASE_URL", "https://sandbox-quickbooks.api.intuit.com"),
			WebhookVerifier: getEnv("QBO_WEBHOOK_VERIFIER", ""),
			FrontendURL:     getEnv("QBO_FRONTEND_URL", "http://localhost:5173/settings"),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/integrations/google/callback"),
			FrontendURL:  getEnv("GOOGLE_FRONTEND_URL", "http://localhost:5173/settings"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Mail: MailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("MAIL_FROM", "no-reply@localhost"),
			AdminEmail:   getEnv("ADMIN_EMAIL", "admin@localhost"),
		},
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", "postgres"),
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_NAME", "postgres"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT value: %w", err)
	}
	cfg.Mail.SMTPPort = smtpPort

	interval, err := time.ParseDuration(getEnv("SYNC_INTERVAL", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL value: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("SYNC_INTERVAL must be positive, got %s", interval)
	}
	cfg.Sync.Interval = interval

	autoStart, err := strconv.ParseBool(getEnv("SYNC_AUTOSTART", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_AUTOSTART value: %w", err)
	}
	cfg.Sync.AutoStart = autoStart

	if cfg.JWTSecret == "" {
		if cfg.IsRelease() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in release mode")
		}
		cfg.JWTSecret = "dev_only_jwt_secret"
	}

	return cfg, nil
}

// IsRelease reports whether gin runs in release mode
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// getEnv retrieves a non-empty environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
