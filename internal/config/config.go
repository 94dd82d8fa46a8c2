package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultBarangay string        `mapstructure:"DEFAULT_BARANGAY"`
	MigrationsDir   string        `mapstructure:"MIGRATIONS_DIR"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	TokenTTL        time.Duration `mapstructure:"TOKEN_TTL"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	AdminEmail      string        `mapstructure:"ADMIN_EMAIL"`
	BarangayName    string        `mapstructure:"BARANGAY_NAME"`
	UploadsDir      string        `mapstructure:"UPLOADS_DIR"`

	EmailEnabled   bool   `mapstructure:"EMAIL_ENABLED"`
	SystemURL      string `mapstructure:"SYSTEM_URL"`
	SMTPHost       string `mapstructure:"SMTP_HOST"`
	SMTPPort       int    `mapstructure:"SMTP_PORT"`
	SMTPUsername   string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword   string `mapstructure:"SMTP_PASSWORD"`
	SMTPFromEmail  string `mapstructure:"SMTP_FROM_EMAIL"`
	SMTPFromName   string `mapstructure:"SMTP_FROM_NAME"`
	SMTPStartTLS   bool   `mapstructure:"SMTP_STARTTLS"`
	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`

	OutboxKey           string `mapstructure:"OUTBOX_KEY"`
	OutboxRetrySchedule string `mapstructure:"OUTBOX_RETRY_SCHEDULE"`
	OutboxMaxAttempts   int    `mapstructure:"OUTBOX_MAX_ATTEMPTS"`
	OutboxBatchSize     int    `mapstructure:"OUTBOX_BATCH_SIZE"`
}

// devOutboxKey seals outbox bodies when no OUTBOX_KEY is configured in development.
const devOutboxKey = "6465762d6f6e6c792d6f7574626f782d6b65792d6e6f742d666f722d70726f64"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_BARANGAY", "172")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("ADMIN_EMAIL", "admin@barangay172.com")
	v.SetDefault("BARANGAY_NAME", "Barangay 172 Urduja")
	v.SetDefault("UPLOADS_DIR", "uploads")
	v.SetDefault("EMAIL_ENABLED", true)
	v.SetDefault("SYSTEM_URL", "http://localhost:8000")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM_NAME", "Barangay 172 Urduja Management System")
	v.SetDefault("SMTP_STARTTLS", true)
	v.SetDefault("OUTBOX_RETRY_SCHEDULE", "@every 5m")
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", 8)
	v.SetDefault("OUTBOX_BATCH_SIZE", 25)

	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"DEFAULT_BARANGAY", "MIGRATIONS_DIR", "JWT_SECRET", "TOKEN_TTL",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "ADMIN_EMAIL", "BARANGAY_NAME",
		"UPLOADS_DIR",
		"EMAIL_ENABLED", "SYSTEM_URL", "SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME",
		"SMTP_PASSWORD", "SMTP_FROM_EMAIL", "SMTP_FROM_NAME", "SMTP_STARTTLS",
		"SENDGRID_API_KEY", "OUTBOX_KEY", "OUTBOX_RETRY_SCHEDULE",
		"OUTBOX_MAX_ATTEMPTS", "OUTBOX_BATCH_SIZE",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "dev-only-signing-secret"
		}
		if cfg.OutboxKey == "" {
			cfg.OutboxKey = devOutboxKey
		}
		log.Println("WARNING: running in DEVELOPMENT mode with built-in signing and outbox keys")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// OutboxKeyBytes decodes OUTBOX_KEY into the 32-byte AES key used to seal
// queued email bodies.
func (c *Config) OutboxKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.OutboxKey)
	if err != nil {
		return nil, fmt.Errorf("OUTBOX_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("OUTBOX_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive and DB_MIN_CONNS non-negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.OutboxKey == "" {
		return fmt.Errorf("OUTBOX_KEY is required outside development")
	}
	if _, err := c.OutboxKeyBytes(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.OutboxRetrySchedule); err != nil {
		return fmt.Errorf("OUTBOX_RETRY_SCHEDULE %q: %w", c.OutboxRetrySchedule, err)
	}
	if c.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be positive")
	}
	if c.EmailEnabled && c.SMTPFromEmail == "" && c.IsProduction() {
		return fmt.Errorf("SMTP_FROM_EMAIL is required when EMAIL_ENABLED is true")
	}
	return nil
}
