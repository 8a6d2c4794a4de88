package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradejournal/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration. Nothing reads process-wide
// state after LoadConfig returns; the struct is passed explicitly into every
// constructor.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Sync Parameters
	Symbols         []string      // Explicit symbols to sync; empty means discover from income history
	SyncDays        int           // How many days back a default sync run covers
	TrailingContext time.Duration // How far before the window fills are loaded to resume open positions
	DayStartHour    int           // Journal day boundary offset in hours from UTC midnight

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API. Credentials stay optional here: the exchange adapter
	// rejects empty keys on construction, and the offline tools (rebuild,
	// export) never construct it.
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Sync Parameters
	if symbols := getEnv("SYMBOLS", ""); symbols != "" {
		for _, s := range strings.Split(symbols, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Symbols = append(cfg.Symbols, strings.ToUpper(s))
			}
		}
	}

	cfg.SyncDays, err = getEnvAsIntRequired("SYNC_DAYS", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYNC_DAYS: %v", err))
	} else if cfg.SyncDays <= 0 {
		errs = append(errs, "SYNC_DAYS must be positive")
	}

	trailingDays, err := getEnvAsIntRequired("TRAILING_CONTEXT_DAYS", 7)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRAILING_CONTEXT_DAYS: %v", err))
	} else if trailingDays <= 0 {
		errs = append(errs, "TRAILING_CONTEXT_DAYS must be positive")
	} else {
		cfg.TrailingContext = time.Duration(trailingDays) * 24 * time.Hour
	}

	cfg.DayStartHour, err = getEnvAsIntRequired("DAY_START_HOUR", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DAY_START_HOUR: %v", err))
	} else if cfg.DayStartHour < 0 || cfg.DayStartHour > 23 {
		errs = append(errs, "DAY_START_HOUR must be between 0 and 23")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_journal.db")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// --- Env helpers ---

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
