package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`
	ServiceName     string        `mapstructure:"SERVICE_NAME" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	// DatabaseURL is a postgres DSN or a sqlite:<path> reference.
	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required"`

	// Redis is optional for the API; without it audit events are written inline.
	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	AsynqConcurrency int `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`

	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	AccessTokenTTL   time.Duration `mapstructure:"ACCESS_TOKEN_TTL" validate:"required"`
	RefreshTokenTTL  time.Duration `mapstructure:"REFRESH_TOKEN_TTL" validate:"required"`
	PasswordResetTTL time.Duration `mapstructure:"PASSWORD_RESET_TTL" validate:"required"`
	CookieSecure     bool          `mapstructure:"COOKIE_SECURE"`
	CookieSameSite   string        `mapstructure:"COOKIE_SAMESITE" validate:"oneof=lax strict none"`
	CORSOrigins      string        `mapstructure:"CORS_ORIGINS"`

	AdminEmail    string `mapstructure:"ADMIN_EMAIL" validate:"omitempty,email"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
	TestUsers     string `mapstructure:"TEST_USERS"`

	OpenAIAPIKey  string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `mapstructure:"OPENAI_BASE_URL" validate:"required,url"`
	OpenAIModel   string        `mapstructure:"OPENAI_MODEL" validate:"required"`
	OpenAITimeout time.Duration `mapstructure:"OPENAI_TIMEOUT" validate:"required"`

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

var (
	cfg      *Config
	validate = validator.New(validator.WithRequiredStructEnabled())
)

var durationKeys = []string{
	"SHUTDOWN_TIMEOUT",
	"ACCESS_TOKEN_TTL",
	"REFRESH_TOKEN_TTL",
	"PASSWORD_RESET_TTL",
	"OPENAI_TIMEOUT",
}

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	// Load .env if present (non-fatal)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	// Defaults
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("SERVICE_NAME", "workflow-engine")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DATABASE_URL", "sqlite:./data/app.db")
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("GOMAXPROCS", 0)
	v.SetDefault("ACCESS_TOKEN_TTL", "24h")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h")
	v.SetDefault("PASSWORD_RESET_TTL", "1h")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("COOKIE_SAMESITE", "lax")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_TIMEOUT", "60s")

	// Optional config file
	_ = v.ReadInConfig()

	// Bind env without prefix for convenience
	keys := []string{
		"APP_ENV",
		"HTTP_ADDR",
		"SHUTDOWN_TIMEOUT",
		"SERVICE_NAME",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"ASYNQ_CONCURRENCY",
		"GOMAXPROCS",
		"JWT_SECRET",
		"ACCESS_TOKEN_TTL",
		"REFRESH_TOKEN_TTL",
		"PASSWORD_RESET_TTL",
		"COOKIE_SECURE",
		"COOKIE_SAMESITE",
		"CORS_ORIGINS",
		"ADMIN_EMAIL",
		"ADMIN_PASSWORD",
		"TEST_USERS",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_MODEL",
		"OPENAI_TIMEOUT",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	// Parse duration types that may come as string
	for _, key := range durationKeys {
		s := v.GetString(key)
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		switch key {
		case "SHUTDOWN_TIMEOUT":
			c.ShutdownTimeout = d
		case "ACCESS_TOKEN_TTL":
			c.AccessTokenTTL = d
		case "REFRESH_TOKEN_TTL":
			c.RefreshTokenTTL = d
		case "PASSWORD_RESET_TTL":
			c.PasswordResetTTL = d
		case "OPENAI_TIMEOUT":
			c.OpenAITimeout = d
		}
	}
	c.CookieSameSite = strings.ToLower(c.CookieSameSite)

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	cfg = &c
	return cfg, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Get returns the loaded configuration. Panics if not loaded.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call config.Load or config.MustLoad first")
	}
	return cfg
}

// AllowedOrigins splits CORS_ORIGINS on commas, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// SeedUser is one entry of TEST_USERS.
type SeedUser struct {
	Email    string
	Password string
	Role     string
}

// SeedUsers parses TEST_USERS, formatted as "email:password[:role];...".
// Malformed entries are skipped.
func (c *Config) SeedUsers() []SeedUser {
	var out []SeedUser
	for _, entry := range strings.Split(c.TestUsers, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 {
			continue
		}
		su := SeedUser{
			Email:    strings.ToLower(strings.TrimSpace(parts[0])),
			Password: strings.TrimSpace(parts[1]),
			Role:     "user",
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			su.Role = strings.TrimSpace(parts[2])
		}
		if su.Email == "" || su.Password == "" {
			continue
		}
		out = append(out, su)
	}
	return out
}

// IsSQLite reports whether DATABASE_URL points at a sqlite database.
func (c *Config) IsSQLite() bool {
	return strings.HasPrefix(c.DatabaseURL, "sqlite:") || strings.HasPrefix(c.DatabaseURL, "file:")
}
