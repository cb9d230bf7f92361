package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"coinledger/internal/adapters/logger" // for LogLevel parsing
)

// Config holds all application configuration.
type Config struct {
	// Binance API (optional; public market data works without keys)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Price feed
	PriceFeedEnabled bool
	// QuoteSuffix is appended to coin symbols to form exchange tickers,
	// e.g. BTC + USDT -> BTCUSDT.
	QuoteSuffix string

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "text" (StdLogger) or "json" (ZapLogger)

	// Reporting
	PortfolioID string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Price feed
	cfg.PriceFeedEnabled = getEnvAsBool("PRICE_FEED_ENABLED", false)
	cfg.QuoteSuffix = getEnv("QUOTE_SUFFIX", "USDT")
	if cfg.PriceFeedEnabled && cfg.QuoteSuffix == "" {
		errs = append(errs, "QUOTE_SUFFIX must be set when PRICE_FEED_ENABLED is true")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/coinledger.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("invalid LOG_FORMAT %q (want \"text\" or \"json\")", cfg.LogFormat))
	}

	// Reporting
	cfg.PortfolioID = getEnv("PORTFOLIO_ID", "")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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
