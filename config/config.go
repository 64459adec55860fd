package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"klineforge/internal/adapters/binanceclient"
	"klineforge/internal/adapters/logger"
	"klineforge/internal/adapters/sqlstore"
	"klineforge/internal/tableio"
)

// Config holds all application configuration.
type Config struct {
	// Binance API. Keys are optional: klines are public.
	APIKey    string
	SecretKey string
	IsTestnet bool
	BaseURL   string // overrides the production/testnet endpoint, e.g. a mirror

	// Market selection
	Symbols  []string
	Interval string
	Lookback string // e.g. 720d, 12h, 4w

	// Output
	OutputDir     string
	OutputFormats []string

	// Feature plan
	PlanFile       string // YAML plan; empty means the default preset
	LabelSteps     int    // 0 disables the label
	LabelThreshold float64
	LabelBinary    bool

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // text or json

	// Database (run bookkeeping). DBDriver "none" disables it.
	DBDriver string
	DBDSN    string

	// Redis kline cache. Empty address disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Metrics endpoint. Empty address disables it.
	MetricsAddr string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)
	cfg.BaseURL = getEnv("BINANCE_BASE_URL", "")

	// Market selection
	cfg.Symbols = getEnvAsList("SYMBOLS", []string{"ETHUSDT"})
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}
	seen := make(map[string]bool, len(cfg.Symbols))
	for i, s := range cfg.Symbols {
		cfg.Symbols[i] = strings.ToUpper(s)
		if seen[cfg.Symbols[i]] {
			errs = append(errs, fmt.Sprintf("SYMBOLS lists %s twice", cfg.Symbols[i]))
		}
		seen[cfg.Symbols[i]] = true
	}

	cfg.Interval = getEnv("INTERVAL", "1h")
	if err := binanceclient.ValidateInterval(cfg.Interval); err != nil {
		errs = append(errs, fmt.Sprintf("invalid INTERVAL: %v", err))
	}
	cfg.Lookback = getEnv("LOOKBACK", "720d")
	if _, err := binanceclient.ParseLookback(cfg.Lookback); err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOOKBACK: %v", err))
	}

	// Output
	cfg.OutputDir = getEnv("OUTPUT_DIR", "./data/features")
	cfg.OutputFormats = getEnvAsList("OUTPUT_FORMATS", []string{"csv", "parquet"})
	if len(cfg.OutputFormats) == 0 {
		errs = append(errs, "OUTPUT_FORMATS must list at least one format")
	}
	for _, f := range cfg.OutputFormats {
		if _, err := tableio.ForFormat(f); err != nil {
			errs = append(errs, fmt.Sprintf("invalid OUTPUT_FORMATS: %v", err))
		}
	}

	// Feature plan
	cfg.PlanFile = getEnv("PLAN_FILE", "")
	cfg.LabelSteps, err = getEnvAsIntRequired("LABEL_STEPS", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LABEL_STEPS: %v", err))
	} else if cfg.LabelSteps < 0 {
		errs = append(errs, "LABEL_STEPS cannot be negative")
	}
	cfg.LabelThreshold, err = getEnvAsFloatRequired("LABEL_THRESHOLD", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LABEL_THRESHOLD: %v", err))
	}
	cfg.LabelBinary = getEnvAsBool("LABEL_BINARY", true)

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	// Database
	cfg.DBDriver = getEnv("DB_DRIVER", sqlstore.DriverSQLite)
	cfg.DBDSN = getEnv("DB_DSN", "./data/klineforge.db")
	switch cfg.DBDriver {
	case "none", sqlstore.DriverSQLite:
	case sqlstore.DriverPostgres:
		if os.Getenv("DB_DSN") == "" {
			errs = append(errs, "DB_DSN must be set for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER must be none, %s or %s", sqlstore.DriverSQLite, sqlstore.DriverPostgres))
	}

	// Redis
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvAsIntRequired("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REDIS_DB: %v", err))
	}
	cfg.CacheTTL, err = getEnvAsDurationRequired("CACHE_TTL", 24*time.Hour)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CACHE_TTL: %v", err))
	} else if cfg.CacheTTL <= 0 {
		errs = append(errs, "CACHE_TTL must be positive")
	}

	// Metrics
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if strings.TrimSpace(valueStr) == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDurationRequired(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
