package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port           string
	DatabasePath   string
	LogLevel       string
	BaseCurrencyID int64 // asset id of the base currency used for cross-account valuation

	QuoteCacheTTLMinutes int
	RateLimitPerSecond   float64
	RateLimitBurst       int
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	baseCurrencyID := getEnvAsInt64("BASE_CURRENCY_ID", 1)
	if baseCurrencyID <= 0 {
		log.Fatalf("FATAL: BASE_CURRENCY_ID must be a positive asset id, got %d", baseCurrencyID)
	}

	rateLimitPerSecond := getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10)
	if rateLimitPerSecond <= 0 {
		log.Printf("WARNING: Invalid RATE_LIMIT_PER_SECOND %v. Using default 10.", rateLimitPerSecond)
		rateLimitPerSecond = 10
	}

	Cfg = &AppConfig{
		Port:           getEnv("PORT", "8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "./ledgerfolio.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		BaseCurrencyID: baseCurrencyID,

		QuoteCacheTTLMinutes: getEnvAsInt("QUOTE_CACHE_TTL_MINUTES", 15),
		RateLimitPerSecond:   rateLimitPerSecond,
		RateLimitBurst:       getEnvAsInt("RATE_LIMIT_BURST", 30),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, BaseCurrencyID=%d",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.BaseCurrencyID)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %v", key, valueStr, fallback)
	return fallback
}
