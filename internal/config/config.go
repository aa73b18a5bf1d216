package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string `validate:"required,numeric"`
	Env  string `validate:"required,oneof=development staging production test"`

	// Database
	DatabaseURL string `validate:"required"`

	// Redis
	RedisURL string `validate:"required,url"`

	// JWT
	JWTSecret string `validate:"required,min=16"`

	// Frontend
	FrontendURL string `validate:"required,url"`

	// Stopwatch
	ReferenceTimezone    string `validate:"required"`
	StaleSessionHours    int    `validate:"min=1"`
	DayCheckIntervalSecs int    `validate:"min=1,max=3600"`
	WarningCheckInterval int    `validate:"min=1,max=3600"`
	MidnightWarningMins  int    `validate:"min=1,max=720"`
	RateLimitPerMinute   int    `validate:"min=1"`
	MigrationsDir        string `validate:"required"`
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		DatabaseURL:          mustGetEnv("DATABASE_URL"),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
		ReferenceTimezone:    getEnvOrDefault("REFERENCE_TIMEZONE", "Europe/Istanbul"),
		StaleSessionHours:    getEnvAsIntOrDefault("STALE_SESSION_HOURS", 24),
		DayCheckIntervalSecs: getEnvAsIntOrDefault("DAY_CHECK_INTERVAL_SECONDS", 60),
		WarningCheckInterval: getEnvAsIntOrDefault("WARNING_CHECK_INTERVAL_SECONDS", 300),
		MidnightWarningMins:  getEnvAsIntOrDefault("MIDNIGHT_WARNING_MINUTES", 60),
		RateLimitPerMinute:   getEnvAsIntOrDefault("RATE_LIMIT_PER_MINUTE", 60),
		MigrationsDir:        getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
	}
}

var validate = validator.New()

// Validate checks field constraints and that the reference timezone exists.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: REFERENCE_TIMEZONE: %w", err)
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.ReferenceTimezone)
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleSessionHours) * time.Hour
}

func (c *Config) DayCheckInterval() time.Duration {
	return time.Duration(c.DayCheckIntervalSecs) * time.Second
}

func (c *Config) WarningInterval() time.Duration {
	return time.Duration(c.WarningCheckInterval) * time.Second
}

func (c *Config) WarningWindow() time.Duration {
	return time.Duration(c.MidnightWarningMins) * time.Minute
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
