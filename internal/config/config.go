package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/web3guy0/trailguard/types"
)

// Config holds all configuration for the bot
type Config struct {
	// Instrument
	Symbol     string // unified, e.g. BTC/USDT
	BaseAsset  string
	QuoteAsset string

	// Exchange
	Exchange  string // binance
	TestMode  bool   // exchange testnet
	DryRun    bool   // paper gateway, no real orders
	APIKey    string
	APISecret string

	// Signal intake
	AuthID string
	Port   int

	// Risk
	Leverage             decimal.Decimal
	TrailingStopPercent  decimal.Decimal // 0.02 = 2%
	EmergencyExitPercent decimal.Decimal // 0.05 = 5%
	TriggerBasis         types.PriceBasis

	// Execution
	MaxRetries     int
	RetryBaseDelay time.Duration
	PollInterval   time.Duration
	PriceFeed      string // poll or stream

	// Paper trading
	PaperQuoteBalance decimal.Decimal

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Observability
	MetricsAddr string
	Debug       bool

	// Database
	DatabasePath string
}

// Load reads the optional YAML file named by CONFIG_FILE, then the
// environment. Environment variables win.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile loads configuration with path as the YAML base layer. Keys in the
// file are the environment variable names in lower case.
func LoadFile(path string) (*Config, error) {
	l := &loader{file: map[string]string{}}
	if path != "" {
		if err := l.readFile(path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		// Instrument
		Symbol:     l.getEnv("SYMBOL", ""),
		BaseAsset:  l.getEnv("TICKER_BASE", "BTC"),
		QuoteAsset: l.getEnv("TICKER_QUOTE", "USDT"),

		// Exchange
		Exchange:  strings.ToLower(l.getEnv("EXCHANGE", "binance")),
		TestMode:  l.getEnvBool("TEST_MODE", false),
		DryRun:    l.getEnvBool("DRY_RUN", true),
		APIKey:    l.getEnv("API_KEY", ""),
		APISecret: l.getEnv("API_SECRET", ""),

		// Signal intake
		AuthID: l.getEnv("AUTH_ID", ""),
		Port:   l.getEnvInt("PORT", 8080),

		// Risk
		Leverage:             l.getEnvDecimal("LEVERAGE", decimal.NewFromInt(1)),
		TrailingStopPercent:  l.getEnvDecimal("TRAILING_STOP_PERCENT", decimal.NewFromFloat(0.02)),
		EmergencyExitPercent: l.getEnvDecimal("EMERGENCY_EXIT_PERCENT", decimal.NewFromFloat(0.05)),

		// Execution
		MaxRetries:     l.getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay: l.getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		PollInterval:   l.getEnvDuration("POLL_INTERVAL", time.Second),
		PriceFeed:      strings.ToLower(l.getEnv("PRICE_FEED", "poll")),

		// Paper trading
		PaperQuoteBalance: l.getEnvDecimal("PAPER_QUOTE_BALANCE", decimal.NewFromInt(1000)),

		// Telegram
		TelegramToken: l.getEnv("TELEGRAM_BOT_TOKEN", ""),

		// Observability
		MetricsAddr: l.getEnv("METRICS_ADDR", ":9090"),
		Debug:       l.getEnvBool("DEBUG", false),

		// Database
		DatabasePath: l.getEnv("DATABASE_PATH", "data/trailguard.db"),
	}

	// Symbol wins over the base/quote pair
	if cfg.Symbol != "" {
		base, quote, ok := strings.Cut(cfg.Symbol, "/")
		if !ok || base == "" || quote == "" {
			return nil, fmt.Errorf("invalid SYMBOL %q, expected BASE/QUOTE", cfg.Symbol)
		}
		cfg.BaseAsset, cfg.QuoteAsset = base, quote
	}
	cfg.BaseAsset = strings.ToUpper(cfg.BaseAsset)
	cfg.QuoteAsset = strings.ToUpper(cfg.QuoteAsset)
	cfg.Symbol = cfg.BaseAsset + "/" + cfg.QuoteAsset

	basis, err := types.ParsePriceBasis(l.getEnv("TRAILING_STOP_TYPE", "ByMarkPrice"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRAILING_STOP_TYPE: %w", err)
	}
	cfg.TriggerBasis = basis

	// Parse chat ID
	if chatID := l.getEnv("TELEGRAM_CHAT_ID", ""); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AuthID == "" {
		return fmt.Errorf("AUTH_ID is required")
	}
	if !inUnitRange(c.TrailingStopPercent) {
		return fmt.Errorf("TRAILING_STOP_PERCENT must be between 0 and 1, got %s", c.TrailingStopPercent)
	}
	if !inUnitRange(c.EmergencyExitPercent) {
		return fmt.Errorf("EMERGENCY_EXIT_PERCENT must be between 0 and 1, got %s", c.EmergencyExitPercent)
	}
	if !c.Leverage.IsPositive() {
		return fmt.Errorf("LEVERAGE must be positive, got %s", c.Leverage)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.PriceFeed != "poll" && c.PriceFeed != "stream" {
		return fmt.Errorf("PRICE_FEED must be poll or stream, got %q", c.PriceFeed)
	}
	if !c.DryRun {
		if c.Exchange != "binance" {
			return fmt.Errorf("unsupported EXCHANGE %q", c.Exchange)
		}
		if c.APIKey == "" || c.APISecret == "" {
			return fmt.Errorf("API_KEY and API_SECRET are required when DRY_RUN=false")
		}
	}
	return nil
}

func inUnitRange(d decimal.Decimal) bool {
	return d.IsPositive() && d.LessThan(decimal.NewFromInt(1))
}

// Helper functions

type loader struct {
	file map[string]string
}

func (l *loader) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		l.file[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return nil
}

func (l *loader) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return l.file[key]
}

func (l *loader) getEnv(key, defaultValue string) string {
	if value := l.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) getEnvBool(key string, defaultValue bool) bool {
	if value := l.lookup(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (l *loader) getEnvInt(key string, defaultValue int) int {
	if value := l.lookup(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func (l *loader) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := l.lookup(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare numbers are seconds
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}

func (l *loader) getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := l.lookup(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
