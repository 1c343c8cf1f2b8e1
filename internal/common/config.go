// Package common provides shared utilities for xMarket
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for xMarket
type Config struct {
	Environment string         `toml:"environment"`
	Storage     StorageConfig  `toml:"storage"`
	History     HistoryConfig  `toml:"history"`
	Clients     ClientsConfig  `toml:"clients"`
	Database    DatabaseConfig `toml:"database"`
	Logging     LoggingConfig  `toml:"logging"`
}

// StorageConfig holds the artifact directory layout.
type StorageConfig struct {
	DataPath   string `toml:"data_path"`   // ticker list, working quotes.json
	PublicPath string `toml:"public_path"` // published history/, history_ohlc/, companies/, quotes.json
}

// HistoryConfig holds tunable policy values for the history pipelines.
type HistoryConfig struct {
	MinYears       int    `toml:"min_years"`
	SymbolDelay    string `toml:"symbol_delay"` // politeness delay between symbols
	BatchSize      int    `toml:"batch_size"`
	WorkerPriority bool   `toml:"worker_priority"`
}

// GetSymbolDelay parses and returns the per-symbol delay duration.
func (c *HistoryConfig) GetSymbolDelay() time.Duration {
	d, err := time.ParseDuration(c.SymbolDelay)
	if err != nil {
		return 1500 * time.Millisecond
	}
	return d
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Worker       WorkerConfig       `toml:"worker"`
	Yahoo        YahooConfig        `toml:"yahoo"`
	Finnhub      FinnhubConfig      `toml:"finnhub"`
	AlphaVantage AlphaVantageConfig `toml:"alphavantage"`
	Stooq        StooqConfig        `toml:"stooq"`
	Alltick      AlltickConfig      `toml:"alltick"`
	Eastmoney    EastmoneyConfig    `toml:"eastmoney"`
}

// WorkerConfig holds Cloudflare Yahoo proxy configuration.
type WorkerConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
	Range   string `toml:"range"` // optional override: 1y|2y|5y|10y
	Timeout string `toml:"timeout"`
}

// YahooConfig holds direct Yahoo chart API configuration.
type YahooConfig struct {
	Timeout   string `toml:"timeout"`
	RateLimit int    `toml:"rate_limit"`
}

// FinnhubConfig holds Finnhub API configuration.
type FinnhubConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	Timeout   string `toml:"timeout"`
	RateLimit int    `toml:"rate_limit"`
}

// AlphaVantageConfig holds Alpha Vantage API configuration.
type AlphaVantageConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Timeout string `toml:"timeout"`
}

// StooqConfig holds Stooq CSV endpoint configuration.
type StooqConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// AlltickConfig holds Alltick API configuration.
type AlltickConfig struct {
	HistoryURL string `toml:"history_url"` // optional override for the kline endpoint
	QuoteURL   string `toml:"quote_url"`   // optional override for the quote endpoint
	APIKey     string `toml:"api_key"`
	Timeout    string `toml:"timeout"`
}

// EastmoneyConfig holds the CN market data endpoint configuration.
type EastmoneyConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// DatabaseConfig holds the relational sink configurations.
type DatabaseConfig struct {
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Postgres PostgresConfig `toml:"postgres"`
}

// SQLiteConfig holds the local SQLite sink configuration.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// PostgresConfig holds the Postgres sink configuration.
type PostgresConfig struct {
	DSN       string `toml:"dsn"`
	BatchSize int    `toml:"batch_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// ParseTimeout parses a duration string, falling back to a default.
func ParseTimeout(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			DataPath:   "data",
			PublicPath: "public",
		},
		History: HistoryConfig{
			MinYears:    1,
			SymbolDelay: "1.5s",
			BatchSize:   80,
		},
		Clients: ClientsConfig{
			Yahoo: YahooConfig{
				Timeout:   "20s",
				RateLimit: 2,
			},
			Finnhub: FinnhubConfig{
				BaseURL:   "https://finnhub.io/api/v1",
				Timeout:   "20s",
				RateLimit: 10,
			},
			AlphaVantage: AlphaVantageConfig{
				BaseURL: "https://www.alphavantage.co/query",
				Timeout: "30s",
			},
			Stooq: StooqConfig{
				BaseURL: "https://stooq.com",
				Timeout: "20s",
			},
			Alltick: AlltickConfig{
				Timeout: "25s",
			},
			Eastmoney: EastmoneyConfig{
				BaseURL: "https://push2his.eastmoney.com",
				Timeout: "25s",
			},
			Worker: WorkerConfig{
				Timeout: "20s",
			},
		},
		Database: DatabaseConfig{
			SQLite: SQLiteConfig{
				Path: "data/xmarket.db",
			},
			Postgres: PostgresConfig{
				BatchSize: 1000,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("XMARKET_ENV"); env != "" {
		config.Environment = env
	}
	if level := os.Getenv("XMARKET_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("XMARKET_DATA_PATH"); path != "" {
		config.Storage.DataPath = path
	}
	if path := os.Getenv("XMARKET_PUBLIC_PATH"); path != "" {
		config.Storage.PublicPath = path
	}

	if v := firstEnv("YAHOO_WORKER_URL"); v != "" {
		config.Clients.Worker.BaseURL = v
	}
	if v := firstEnv("YAHOO_WORKER_TOKEN"); v != "" {
		config.Clients.Worker.Token = v
	}
	if v := firstEnv("YAHOO_WORKER_RANGE"); v != "" {
		config.Clients.Worker.Range = v
	}
	if v := firstEnv("FINNHUB_API_KEY", "FINNHUB_TOKEN"); v != "" {
		config.Clients.Finnhub.APIKey = v
	}
	if v := firstEnv("ALPHAVANTAGE_API_KEY", "ALPHAVANTAGE_TOKEN"); v != "" {
		config.Clients.AlphaVantage.APIKey = v
	}
	if v := firstEnv("ALLTICK_API_KEY", "ALLTICK_TOKEN"); v != "" {
		config.Clients.Alltick.APIKey = v
	}
	if v := firstEnv("ALLTICK_HISTORY_URL"); v != "" {
		config.Clients.Alltick.HistoryURL = v
	}
	if v := firstEnv("ALLTICK_QUOTE_URL"); v != "" {
		config.Clients.Alltick.QuoteURL = v
	}

	if v := os.Getenv("HISTORY_SYMBOL_DELAY"); v != "" {
		// accepted as plain seconds ("1.5") or a duration string ("1500ms")
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			config.History.SymbolDelay = time.Duration(float64(time.Second) * secs).String()
		} else {
			config.History.SymbolDelay = v
		}
	}
	if v := os.Getenv("HISTORY_WORKER_PRIORITY"); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			config.History.WorkerPriority = true
		}
	}
	if v := os.Getenv("HISTORY_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.History.BatchSize = n
		}
	}

	if v := os.Getenv("XMARKET_SQLITE_PATH"); v != "" {
		config.Database.SQLite.Path = v
	}
	if v := firstEnv("XMARKET_POSTGRES_DSN", "DATABASE_URL"); v != "" {
		config.Database.Postgres.DSN = v
	}
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
