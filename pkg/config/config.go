package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// External APIs
	MarketData MarketDataConfig
	Filings    FilingsConfig
	Oracle     OracleConfig

	// Pipeline behavior
	Scoring Scoring
	Tiering Tiering

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// MarketDataConfig holds market data API configuration.
type MarketDataConfig struct {
	APIKey   string
	BaseURL  string
	MinDelay time.Duration // minimum gap between calls
}

// FilingsConfig holds filings registry API configuration.
type FilingsConfig struct {
	UserAgent string
	MinDelay  time.Duration
}

// OracleConfig holds correction oracle configuration.
type OracleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Scoring holds the sub-score ceilings and composite weights.
type Scoring struct {
	// Quick-screen thresholds
	ShareCAGRMin        float64 // annual share growth that makes a candidate
	FCFNegativeQuarters int     // min negative-FCF quarters out of trailing 8

	// Sub-score normalization ceilings
	ShareCAGRCeiling    float64
	FCFBurnCeiling      float64
	SBCRevenueCeiling   float64
	OfferingFreqCeiling int
	CashRunwayMaxMonths float64

	// Weights (must sum to 1.0)
	WeightShareCAGR    float64
	WeightFCFBurn      float64
	WeightSBCRevenue   float64
	WeightOfferingFreq float64
	WeightCashRunway   float64
	WeightATMActive    float64
}

// Tiering holds the percentile cut points for tier assignment.
type Tiering struct {
	CriticalPercentile  float64
	WatchlistPercentile float64
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		MarketData: MarketDataConfig{
			APIKey:   getEnv("MARKET_DATA_API_KEY", ""),
			BaseURL:  getEnv("MARKET_DATA_BASE_URL", "https://financialmodelingprep.com/stable"),
			MinDelay: getEnvAsDuration("MARKET_DATA_MIN_DELAY", "250ms"),
		},

		Filings: FilingsConfig{
			UserAgent: getEnv("FILINGS_USER_AGENT", "dilmon dev@example.com"),
			MinDelay:  getEnvAsDuration("FILINGS_MIN_DELAY", "120ms"),
		},

		Oracle: OracleConfig{
			APIKey:  getEnv("ORACLE_API_KEY", ""),
			BaseURL: getEnv("ORACLE_BASE_URL", "https://api.anthropic.com"),
			Model:   getEnv("ORACLE_MODEL", "claude-sonnet-4-5-20250929"),
		},

		Scoring: Scoring{
			ShareCAGRMin:        getEnvAsFloat("SHARE_CAGR_MIN", 0.05),
			FCFNegativeQuarters: getEnvAsInt("FCF_NEGATIVE_QUARTERS", 4),
			ShareCAGRCeiling:    getEnvAsFloat("SHARE_CAGR_CEILING", 0.50),
			FCFBurnCeiling:      getEnvAsFloat("FCF_BURN_CEILING", 0.70),
			SBCRevenueCeiling:   getEnvAsFloat("SBC_REVENUE_CEILING", 0.60),
			OfferingFreqCeiling: getEnvAsInt("OFFERING_FREQ_CEILING", 7),
			CashRunwayMaxMonths: getEnvAsFloat("CASH_RUNWAY_MAX_MONTHS", 24),
			WeightShareCAGR:     getEnvAsFloat("WEIGHT_SHARE_CAGR", 0.25),
			WeightFCFBurn:       getEnvAsFloat("WEIGHT_FCF_BURN", 0.20),
			WeightSBCRevenue:    getEnvAsFloat("WEIGHT_SBC_REVENUE", 0.15),
			WeightOfferingFreq:  getEnvAsFloat("WEIGHT_OFFERING_FREQ", 0.20),
			WeightCashRunway:    getEnvAsFloat("WEIGHT_CASH_RUNWAY", 0.10),
			WeightATMActive:     getEnvAsFloat("WEIGHT_ATM_ACTIVE", 0.10),
		},

		Tiering: Tiering{
			CriticalPercentile:  getEnvAsFloat("CRITICAL_PERCENTILE", 90),
			WatchlistPercentile: getEnvAsFloat("WATCHLIST_PERCENTILE", 70),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	sum := c.Scoring.WeightShareCAGR + c.Scoring.WeightFCFBurn + c.Scoring.WeightSBCRevenue +
		c.Scoring.WeightOfferingFreq + c.Scoring.WeightCashRunway + c.Scoring.WeightATMActive
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.3f", sum)
	}

	if c.Tiering.CriticalPercentile < c.Tiering.WatchlistPercentile {
		return fmt.Errorf("CRITICAL_PERCENTILE must be >= WATCHLIST_PERCENTILE")
	}

	return nil
}

// ValidateForPipeline checks credentials that a pipeline mode needs
// before any network work starts. Score-only mode touches nothing
// outside the database, so it needs no API keys.
func (c *Config) ValidateForPipeline(mode string) error {
	if mode == "score-only" {
		return nil
	}
	if c.MarketData.APIKey == "" {
		return fmt.Errorf("MARKET_DATA_API_KEY is required for %s mode", mode)
	}
	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
