// Package config reads runtime settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseDriver string `validate:"oneof=postgres mysql sqlite"`
	DatabaseURL    string `validate:"required"`
	ServerAddr     string `validate:"required"`
	LoanPeriodDays int    `validate:"min=1"`
	MaxOpenConns   int    `validate:"min=1"`
	DailyRate      decimal.Decimal
}

const (
	defaultDriver         = "postgres"
	defaultServerAddr     = ":8080"
	defaultLoanPeriodDays = 14
	defaultDailyRate      = "0.50"
	defaultMaxOpenConns   = 20
)

// Load reads configuration from the environment, falling back to defaults for
// everything except DATABASE_URL.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] config: no .env file found, using process environment")
	}

	rate, err := decimal.NewFromString(readEnv("LATE_FEE_DAILY_RATE", defaultDailyRate))
	if err != nil {
		return nil, fmt.Errorf("parse LATE_FEE_DAILY_RATE: %w", err)
	}

	loanPeriod, err := parseInt("LOAN_PERIOD_DAYS", defaultLoanPeriodDays)
	if err != nil {
		return nil, err
	}
	maxOpenConns, err := parseInt("DB_MAX_OPEN_CONNS", defaultMaxOpenConns)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseDriver: readEnv("DATABASE_DRIVER", defaultDriver),
		DatabaseURL:    readEnv("DATABASE_URL", ""),
		ServerAddr:     readEnv("SERVER_ADDR", defaultServerAddr),
		LoanPeriodDays: loanPeriod,
		MaxOpenConns:   maxOpenConns,
		DailyRate:      rate,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints. A negative daily rate is rejected.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.DailyRate.IsNegative() {
		return fmt.Errorf("invalid config: LATE_FEE_DAILY_RATE must not be negative")
	}
	return nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
