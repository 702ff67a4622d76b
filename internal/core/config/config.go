package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Security      SecurityConfig
	Redis         RedisConfig
	Notifications NotificationsConfig
	Scheduler     SchedulerConfig
	Procurement   ProcurementConfig
	Assets        AssetsConfig
	RateLimit     RateLimitConfig
}

type AppConfig struct {
	Host           string
	Env            string
	LogLevel       string
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	URL           string
	MigrationsDir string
}

type SecurityConfig struct {
	JWTSecret string
}

// RedisConfig enables cross-process aggregate locks when URL is set.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

type NotificationsConfig struct {
	WebhookURL string
	Timeout    time.Duration
	Retries    int
}

type SchedulerConfig struct {
	ReturnReminderCron string
}

type ProcurementConfig struct {
	DefaultVATRate decimal.Decimal
	DefaultEWTRate decimal.Decimal
}

type AssetsConfig struct {
	RefPrefix string
}

// RateLimitConfig caps write requests per user within Window.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads the optional .env file and the environment. System
// environment variables win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	vatRate, err := getDecimal("DEFAULT_VAT_RATE", "12")
	if err != nil {
		return nil, err
	}
	ewtRate, err := getDecimal("DEFAULT_EWT_RATE", "0")
	if err != nil {
		return nil, err
	}
	requestTimeout, err := getDuration("REQUEST_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	lockTTL, err := getDuration("LOCK_TTL", "30s")
	if err != nil {
		return nil, err
	}
	notificationTimeout, err := getDuration("NOTIFICATION_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	retries, err := strconv.Atoi(getEnv("NOTIFICATION_RETRIES", "2"))
	if err != nil {
		return nil, fmt.Errorf("NOTIFICATION_RETRIES must be an integer: %w", err)
	}
	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_REQUESTS", "120"))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_REQUESTS must be an integer: %w", err)
	}
	rateWindow, err := getDuration("RATE_LIMIT_WINDOW", "1m")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Host:           getEnv("APP_HOST", ":8080"),
			Env:            getEnv("APP_ENV", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			RequestTimeout: requestTimeout,
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Security: SecurityConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			LockTTL: lockTTL,
		},
		Notifications: NotificationsConfig{
			WebhookURL: os.Getenv("NOTIFICATION_WEBHOOK_URL"),
			Timeout:    notificationTimeout,
			Retries:    retries,
		},
		Scheduler: SchedulerConfig{
			ReturnReminderCron: getEnv("RETURN_REMINDER_CRON", "0 7 * * *"),
		},
		Procurement: ProcurementConfig{
			DefaultVATRate: vatRate,
			DefaultEWTRate: ewtRate,
		},
		Assets: AssetsConfig{
			RefPrefix: getEnv("ASSET_REF_PREFIX", "CL"),
		},
		RateLimit: RateLimitConfig{
			Requests: rateLimit,
			Window:   rateWindow,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	switch {
	case c.Database.URL == "":
		return errors.New("DATABASE_URL must be provided")
	case c.Security.JWTSecret == "":
		return errors.New("JWT_SECRET must be provided")
	case c.App.Host == "":
		return errors.New("APP_HOST must not be empty")
	}

	if c.Procurement.DefaultVATRate.IsNegative() || c.Procurement.DefaultEWTRate.IsNegative() {
		return errors.New("DEFAULT_VAT_RATE and DEFAULT_EWT_RATE must not be negative")
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}

	if c.Notifications.Retries < 0 {
		return errors.New("NOTIFICATION_RETRIES must not be negative")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func getDecimal(key, defaultValue string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return d, nil
}
