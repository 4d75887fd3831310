package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

const (
	appDirName       = "InvestmentTracker"
	databaseFileName = "investment_tracker.db"
)

// Quote providers
const (
	QuoteProviderTencent = "tencent"
	QuoteProviderAlpaca  = "alpaca"
	QuoteProviderMock    = "mock"
)

// Quote cache backends
const (
	CacheNone  = "none"
	CacheDB    = "db"
	CacheRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	// Storage
	Database DatabaseConfig

	// Ledger defaults and portfolio sizing
	Ledger LedgerConfig

	// Quote resolution
	Quotes QuoteConfig
	Alpaca AlpacaConfig
	Redis  RedisConfig

	// Background P&L refresh
	Refresh RefreshConfig

	HTTP HTTPConfig
	Log  LogConfig
}

// DatabaseConfig holds database configuration.
// URL selects PostgreSQL; otherwise SQLitePath is used.
type DatabaseConfig struct {
	URL        string
	SQLitePath string
}

// LedgerConfig holds the default portfolio and full-position sizing
type LedgerConfig struct {
	DefaultPortfolio        string
	FullPosition            float64
	PortfolioFullPositions  map[string]float64 // portfolio name -> full position
	InstrumentFullPositions map[string]float64 // lower-case code -> full position
}

// QuoteConfig holds quote provider configuration
type QuoteConfig struct {
	Provider          string // tencent, alpaca, or mock
	TimeoutSeconds    int
	RequestsPerSecond float64
	CacheBackend      string // none, db, or redis
	CacheTTLSeconds   int
	TencentBaseURL    string
}

// AlpacaConfig holds Alpaca market data configuration
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	Feed      string
}

// RedisConfig holds the shared quote cache location
type RedisConfig struct {
	URL string
}

// RefreshConfig controls the scheduled profit/loss refresh
type RefreshConfig struct {
	Enabled  bool
	Schedule string // standard 5-field cron spec
	UseMock  bool
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port               int
	CORSAllowedOrigins string
	AllowReset         bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Production bool
	Level      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	portfolioOverrides, err := parseOverrides(os.Getenv("PORTFOLIO_FULL_POSITIONS"), false)
	if err != nil {
		return nil, fmt.Errorf("PORTFOLIO_FULL_POSITIONS: %w", err)
	}
	instrumentOverrides, err := parseOverrides(os.Getenv("INSTRUMENT_FULL_POSITIONS"), true)
	if err != nil {
		return nil, fmt.Errorf("INSTRUMENT_FULL_POSITIONS: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:        os.Getenv("DATABASE_URL"),
			SQLitePath: getEnvString("SQLITE_PATH", filepath.Join(DefaultDataDir(), databaseFileName)),
		},
		Ledger: LedgerConfig{
			DefaultPortfolio:        getEnvString("DEFAULT_PORTFOLIO", "default"),
			FullPosition:            getEnvFloatRange("FULL_POSITION", 50000, 1, 1e15),
			PortfolioFullPositions:  portfolioOverrides,
			InstrumentFullPositions: instrumentOverrides,
		},
		Quotes: QuoteConfig{
			Provider:          strings.ToLower(getEnvString("QUOTE_PROVIDER", QuoteProviderTencent)),
			TimeoutSeconds:    getEnvInt("QUOTE_TIMEOUT_SECONDS", 10),
			RequestsPerSecond: getEnvFloatRange("QUOTE_REQUESTS_PER_SECOND", 5, 0, 1000),
			CacheBackend:      strings.ToLower(getEnvString("QUOTE_CACHE", CacheNone)),
			CacheTTLSeconds:   getEnvInt("QUOTE_CACHE_TTL_SECONDS", 30),
			TencentBaseURL:    getEnvString("TENCENT_QUOTE_URL", "http://qt.gtimg.cn/"),
		},
		Alpaca: AlpacaConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
			Feed:      getEnvString("ALPACA_FEED", "iex"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Refresh: RefreshConfig{
			Enabled:  getEnvBool("REFRESH_ENABLED", false),
			Schedule: getEnvString("REFRESH_SCHEDULE", "*/5 * * * *"),
			UseMock:  getEnvBool("REFRESH_USE_MOCK", false),
		},
		HTTP: HTTPConfig{
			Port:               getEnvInt("PORT", 8080),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
			AllowReset:         getEnvBool("ALLOW_RESET", false),
		},
		Log: LogConfig{
			Production: getEnvBool("LOG_PRODUCTION", false),
			Level:      getEnvString("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.SQLitePath == "" {
		return fmt.Errorf("either DATABASE_URL or SQLITE_PATH must be set")
	}

	if strings.TrimSpace(c.Ledger.DefaultPortfolio) == "" {
		return fmt.Errorf("DEFAULT_PORTFOLIO must not be empty")
	}
	if c.Ledger.FullPosition <= 0 {
		return fmt.Errorf("FULL_POSITION must be positive, got %.2f", c.Ledger.FullPosition)
	}

	switch c.Quotes.Provider {
	case QuoteProviderTencent, QuoteProviderMock:
	case QuoteProviderAlpaca:
		if !c.HasAlpaca() {
			return fmt.Errorf("QUOTE_PROVIDER=alpaca requires ALPACA_API_KEY and ALPACA_API_SECRET")
		}
	default:
		return fmt.Errorf("QUOTE_PROVIDER must be one of tencent, alpaca, mock, got %q", c.Quotes.Provider)
	}

	switch c.Quotes.CacheBackend {
	case CacheNone, CacheDB:
	case CacheRedis:
		if !c.HasRedis() {
			return fmt.Errorf("QUOTE_CACHE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("QUOTE_CACHE must be one of none, db, redis, got %q", c.Quotes.CacheBackend)
	}

	if c.Quotes.TimeoutSeconds <= 0 {
		return fmt.Errorf("QUOTE_TIMEOUT_SECONDS must be positive, got %d", c.Quotes.TimeoutSeconds)
	}
	if c.Quotes.CacheTTLSeconds <= 0 {
		return fmt.Errorf("QUOTE_CACHE_TTL_SECONDS must be positive, got %d", c.Quotes.CacheTTLSeconds)
	}

	if c.Refresh.Enabled {
		if _, err := cron.ParseStandard(c.Refresh.Schedule); err != nil {
			return fmt.Errorf("REFRESH_SCHEDULE %q is invalid: %w", c.Refresh.Schedule, err)
		}
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	return nil
}

// DSN returns the connection string for the repository
func (c *Config) DSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return c.Database.SQLitePath
}

// HasPostgres returns true if a PostgreSQL URL is configured
func (c *Config) HasPostgres() bool {
	return strings.HasPrefix(c.Database.URL, "postgres://") || strings.HasPrefix(c.Database.URL, "postgresql://")
}

// HasAlpaca returns true if Alpaca configuration is available
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// HasRedis returns true if a Redis URL is configured
func (c *Config) HasRedis() bool {
	return c.Redis.URL != ""
}

// DefaultDataDir is the per-user directory holding the default SQLite file
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("APPDATA"); dir != "" {
			return filepath.Join(dir, appDirName)
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", appDirName)
		}
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return filepath.Join(dir, appDirName)
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", appDirName)
		}
	}
	return appDirName
}

// parseOverrides parses "name=amount,name=amount"
func parseOverrides(raw string, lowerKeys bool) (map[string]float64, error) {
	overrides := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q, expected name=amount", pair)
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("invalid amount in override %q", pair)
		}
		if lowerKeys {
			key = strings.ToLower(key)
		}
		overrides[key] = amount
	}
	return overrides, nil
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatRange(key string, defaultValue, minVal, maxVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil && parsed >= minVal && parsed <= maxVal {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:        "",
			SQLitePath: ":memory:",
		},
		Ledger: LedgerConfig{
			DefaultPortfolio:        "default",
			FullPosition:            50000,
			PortfolioFullPositions:  map[string]float64{},
			InstrumentFullPositions: map[string]float64{},
		},
		Quotes: QuoteConfig{
			Provider:          QuoteProviderMock,
			TimeoutSeconds:    10,
			RequestsPerSecond: 0,
			CacheBackend:      CacheNone,
			CacheTTLSeconds:   30,
			TencentBaseURL:    "http://qt.gtimg.cn/",
		},
		Alpaca: AlpacaConfig{
			Feed: "iex",
		},
		Refresh: RefreshConfig{
			Enabled:  false,
			Schedule: "*/5 * * * *",
			UseMock:  true,
		},
		HTTP: HTTPConfig{
			Port:               8080,
			CORSAllowedOrigins: "*",
			AllowReset:         true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
