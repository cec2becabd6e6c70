// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "time/tzdata" // Rate timezone must resolve on minimal hosts

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	LocalCurrency string // Currency every payment is converted into

	// Upstream rate sources
	GoldAPIURL      string
	GoldAPIKey      string
	ExchangeAPIURL  string
	ExchangeAPIKey  string
	HTTPTimeout     time.Duration
	RatesServiceURL string // Optional remote rates service; empty = in-process
	OrderServiceURL string // Optional remote order store; empty = in-process

	Rates RatesConfig
}

// RatesConfig controls the daily rate snapshot refresh.
type RatesConfig struct {
	LookbackDays int    // Days walked back looking for a business day with data
	RefreshHour  int    // Hour (local) after which upstream publishes the day's rates
	SyncSchedule string // Cron expression with seconds field
	Location     *time.Location
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ATELIER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	loc, err := time.LoadLocation(getEnv("RATES_TIMEZONE", "Asia/Seoul"))
	if err != nil {
		return nil, fmt.Errorf("failed to load rates timezone: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("GO_PORT", 8001),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LocalCurrency:   strings.ToUpper(getEnv("LOCAL_CURRENCY", "KRW")),
		GoldAPIURL:      getEnv("GOLD_API_URL", "https://apis.data.go.kr/1160100/service/GetGeneralProductInfoService/getGoldPriceInfo"),
		GoldAPIKey:      getEnv("GOLD_API_KEY", ""),
		ExchangeAPIURL:  getEnv("EXCHANGE_API_URL", "https://www.koreaexim.go.kr/site/program/financial/exchangeJSON"),
		ExchangeAPIKey:  getEnv("EXCHANGE_API_KEY", ""),
		HTTPTimeout:     time.Duration(getEnvAsInt("HTTP_TIMEOUT_SECONDS", 10)) * time.Second,
		RatesServiceURL: getEnv("RATES_API_URL", ""),
		OrderServiceURL: getEnv("ORDERS_API_URL", ""),
		Rates: RatesConfig{
			LookbackDays: getEnvAsInt("RATE_LOOKBACK_DAYS", 5),
			RefreshHour:  getEnvAsInt("RATE_REFRESH_HOUR", 11),
			SyncSchedule: getEnv("RATE_SYNC_SCHEDULE", "0 5 11 * * *"),
			Location:     loc,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.LocalCurrency == "" {
		return fmt.Errorf("local currency must not be empty")
	}
	if c.Rates.LookbackDays < 1 {
		return fmt.Errorf("rate lookback days must be at least 1, got %d", c.Rates.LookbackDays)
	}
	if c.Rates.RefreshHour < 0 || c.Rates.RefreshHour > 23 {
		return fmt.Errorf("rate refresh hour out of range: %d", c.Rates.RefreshHour)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}

	// Upstream keys are optional: without them the rate snapshot
	// falls back to whatever is already stored.
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
