package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Data sources
	FRED FREDConfig
	CPS  CPSConfig

	// Scoring model
	Scoring ScoringSettings

	// Services
	Ingest    IngestConfig
	API       APIConfig
	WSGateway WSGatewayConfig
}

// DatabaseConfig holds TimescaleDB configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// FREDConfig holds the FRED download configuration
type FREDConfig struct {
	BaseURL          string
	Timeout          time.Duration
	RateLimitRPS     int
	CacheTTL         time.Duration
	LaborShareID     string
	GDPPerCapitaID   string
	UnemploymentID   string
	QuarterlyHistory int // observations kept for quarterly series
	MonthlyHistory   int // observations kept for monthly series
}

// CPSConfig holds the location of the Current Population Survey extracts
type CPSConfig struct {
	DataDir string
}

// ScoringSettings holds the scoring model and where it was loaded from
type ScoringSettings struct {
	ConfigFile string
	Model      models.ScoringConfig
}

// IngestConfig holds ingest service configuration
type IngestConfig struct {
	Source     string // "fred" or "csv"
	CSVDir     string
	Schedule   string // cron expression, empty runs once
	RunOnStart bool
	Timeout    time.Duration
	// HealthPort serves /health and /metrics while scheduled
	HealthPort int
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port           int
	JWTSecret      string
	JWTExpiry      time.Duration
	RateLimitRPS   int
	RequestTimeout time.Duration
}

// WSGatewayConfig holds WebSocket gateway configuration
type WSGatewayConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxConnections int
	JWTSecret      string
	UpdateChannel  string
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "displacement_tracker"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		FRED: FREDConfig{
			BaseURL:          getEnv("FRED_BASE_URL", "https://fred.stlouisfed.org/graph/fredgraph.csv"),
			Timeout:          getEnvAsDuration("FRED_TIMEOUT", 30*time.Second),
			RateLimitRPS:     getEnvAsInt("FRED_RATE_LIMIT_RPS", 2),
			CacheTTL:         getEnvAsDuration("FRED_CACHE_TTL", 6*time.Hour),
			LaborShareID:     getEnv("FRED_LABOR_SHARE_ID", "PRS85006173"),
			GDPPerCapitaID:   getEnv("FRED_GDP_PER_CAPITA_ID", "A939RX0Q048SBEA"),
			UnemploymentID:   getEnv("FRED_UNEMPLOYMENT_ID", "UNRATE"),
			QuarterlyHistory: getEnvAsInt("FRED_QUARTERLY_HISTORY", 14),
			MonthlyHistory:   getEnvAsInt("FRED_MONTHLY_HISTORY", 42),
		},
		CPS: CPSConfig{
			DataDir: getEnv("CPS_DATA_DIR", "data/raw/accountants_employed"),
		},
		Ingest: IngestConfig{
			Source:     getEnv("INGEST_SOURCE", "fred"),
			CSVDir:     getEnv("INGEST_CSV_DIR", "data/processed"),
			Schedule:   getEnv("INGEST_SCHEDULE", ""),
			RunOnStart: getEnvAsBool("INGEST_RUN_ON_START", true),
			Timeout:    getEnvAsDuration("INGEST_TIMEOUT", 2*time.Minute),
			HealthPort: getEnvAsInt("INGEST_HEALTH_PORT", 8092),
		},
		API: APIConfig{
			Port:           getEnvAsInt("API_PORT", 8090),
			JWTSecret:      getEnv("API_JWT_SECRET", ""),
			JWTExpiry:      getEnvAsDuration("API_JWT_EXPIRY", 24*time.Hour),
			RateLimitRPS:   getEnvAsInt("API_RATE_LIMIT_RPS", 20),
			RequestTimeout: getEnvAsDuration("API_REQUEST_TIMEOUT", 60*time.Second),
		},
		WSGateway: WSGatewayConfig{
			Port:           getEnvAsInt("WS_GATEWAY_PORT", 8088),
			ReadTimeout:    getEnvAsDuration("WS_GATEWAY_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:   getEnvAsDuration("WS_GATEWAY_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:   getEnvAsDuration("WS_GATEWAY_PING_INTERVAL", 30*time.Second),
			MaxConnections: getEnvAsInt("WS_GATEWAY_MAX_CONNECTIONS", 500),
			JWTSecret:      getEnv("WS_GATEWAY_JWT_SECRET", ""),
			UpdateChannel:  getEnv("WS_GATEWAY_UPDATE_CHANNEL", "scores.updates"),
		},
	}

	scoringFile := getEnv("SCORING_CONFIG_FILE", "")
	model, err := LoadScoringConfig(scoringFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load scoring config: %w", err)
	}
	cfg.Scoring = ScoringSettings{ConfigFile: scoringFile, Model: model}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.Ingest.Source != "fred" && c.Ingest.Source != "csv" {
		return fmt.Errorf("INGEST_SOURCE must be 'fred' or 'csv', got %q", c.Ingest.Source)
	}
	if c.FRED.BaseURL == "" {
		return fmt.Errorf("FRED_BASE_URL is required")
	}
	if c.FRED.QuarterlyHistory <= 0 || c.FRED.MonthlyHistory <= 0 {
		return fmt.Errorf("FRED history lengths must be positive")
	}
	if c.FRED.RateLimitRPS <= 0 {
		return fmt.Errorf("FRED_RATE_LIMIT_RPS must be positive")
	}
	if err := c.Scoring.Model.Validate(); err != nil {
		return fmt.Errorf("scoring model: %w", err)
	}
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
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsFloat(key string) (float64, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, false
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return floatValue, true
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
