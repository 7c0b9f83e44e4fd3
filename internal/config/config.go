package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Env      string
	Port     string
	Database DatabaseConfig
	Otomax   OtomaxConfig
	Otoplus  OtoplusConfig
	Gemini   GeminiConfig
	Photos   PhotosConfig
	Pipeline PipelineConfig
}

// DatabaseConfig holds staging database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// OtomaxConfig holds the external core (Otomax) connection settings
type OtomaxConfig struct {
	URL      string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// OtoplusConfig holds the upstream serial verification settings.
// Verification is advisory and can be disabled entirely.
type OtoplusConfig struct {
	BaseURL string
	Timeout time.Duration
	Enabled bool
}

// GeminiConfig holds the AI photo-parsing settings
type GeminiConfig struct {
	APIKey string
	Model  string
}

// PhotosConfig holds the read-only photo-search service settings
type PhotosConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PipelineConfig holds tunables for the staging pipeline itself
type PipelineConfig struct {
	CommitConcurrency int
	Retention         time.Duration
	PurgeInterval     time.Duration
	StockPollInterval time.Duration
	LowStockThreshold int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	otomaxURL := os.Getenv("OTOMAX_URL")
	if otomaxURL == "" {
		return nil, fmt.Errorf("OTOMAX_URL is required")
	}

	return &Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnv("PORT", "3001"),
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "mkit_voucher"),
		},
		Otomax: OtomaxConfig{
			URL:      otomaxURL,
			Database: getEnv("OTOMAX_DB", "otomax"),
			Username: getEnv("OTOMAX_USERNAME", "admin"),
			Password: os.Getenv("OTOMAX_PASSWORD"),
			Timeout:  getDurationEnv("OTOMAX_TIMEOUT", 15*time.Second),
		},
		Otoplus: OtoplusConfig{
			BaseURL: os.Getenv("OTOPLUS_URL"),
			Timeout: getDurationEnv("OTOPLUS_TIMEOUT", 5*time.Second),
			Enabled: os.Getenv("OTOPLUS_URL") != "",
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Photos: PhotosConfig{
			BaseURL: os.Getenv("PHOTO_SEARCH_URL"),
			Timeout: getDurationEnv("PHOTO_SEARCH_TIMEOUT", 5*time.Second),
		},
		Pipeline: PipelineConfig{
			CommitConcurrency: getIntEnv("COMMIT_CONCURRENCY", 4),
			Retention:         getDurationEnv("STAGING_RETENTION", 7*24*time.Hour),
			PurgeInterval:     getDurationEnv("PURGE_INTERVAL", time.Hour),
			StockPollInterval: getDurationEnv("STOCK_POLL_INTERVAL", time.Minute),
			LowStockThreshold: getIntEnv("LOW_STOCK_THRESHOLD", 20),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
