package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultTrackedCoins is the documented default watchlist.
const DefaultTrackedCoins = "BTC,ETH,SOL,BNB,AVAX,LINK,MATIC,DOT,ADA,XRP,INJ,SEI,ARB,OP,TIA,SUI"

type Config struct {
	ServerConfig    ServerConfig    `json:"server"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	RedisConfig     RedisConfig     `json:"redis"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	BinanceConfig   BinanceConfig   `json:"binance"`
	CoinGeckoConfig CoinGeckoConfig `json:"coingecko"`
	MacroConfig     MacroConfig     `json:"macro"`
	AIConfig        AIConfig        `json:"ai"`
	SignalConfig    SignalConfig    `json:"signal"`
}

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	AllowedOrigins string `json:"allowed_origins"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout or stderr
	JSONFormat bool   `json:"json_format"` // JSON output
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// BinanceConfig covers the primary (high-limit) market data provider.
type BinanceConfig struct {
	BaseURL           string `json:"base_url"`
	APIKey            string `json:"api_key"`
	CallsPerMinute    int    `json:"calls_per_minute"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

// CoinGeckoConfig covers the secondary (low-limit) provider. The free tier
// allows 50 calls/minute, so the limiter budget matters here.
type CoinGeckoConfig struct {
	BaseURL           string `json:"base_url"`
	APIKey            string `json:"api_key"`
	CallsPerMinute    int    `json:"calls_per_minute"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type MacroConfig struct {
	RefreshIntervalMin int      `json:"refresh_interval_min"`
	FearGreedURL       string   `json:"fear_greed_url"`
	DXY                *float64 `json:"dxy,omitempty"` // optional seed when no feed is configured
	VIX                *float64 `json:"vix,omitempty"`
	PolicyStance       string   `json:"policy_stance"`
}

type AIConfig struct {
	Enabled        bool    `json:"enabled"`
	Provider       string  `json:"provider"` // claude, openai, deepseek
	ClaudeAPIKey   string  `json:"claude_api_key"`
	OpenAIAPIKey   string  `json:"openai_api_key"`
	DeepSeekAPIKey string  `json:"deepseek_api_key"`
	Model          string  `json:"model"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature"`
	TimeoutSec     int     `json:"timeout_sec"`
}

type SignalConfig struct {
	TrackedCoins          string `json:"tracked_coins"` // comma-separated symbols
	HistoryCandles        int    `json:"history_candles"`
	Interval              string `json:"interval"`
	UpdateIntervalSec     int    `json:"update_interval_sec"`     // background warmer cadence
	OverviewRefreshMin    int    `json:"overview_refresh_min"`    // market overview cadence
	SentimentTimeoutSec   int    `json:"sentiment_timeout_sec"`   // hard bound on the AI call
	UpstreamFetchTimeoutS int    `json:"upstream_fetch_timeout_s"`
}

// CoinsList returns the tracked symbols, normalized to upper case.
func (c *Config) CoinsList() []string {
	raw := c.SignalConfig.TrackedCoins
	if raw == "" {
		raw = DefaultTrackedCoins
	}
	parts := strings.Split(raw, ",")
	coins := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.ToUpper(strings.TrimSpace(p)); s != "" {
			coins = append(coins, s)
		}
	}
	return coins
}

// Load reads config.json if present and applies environment overrides on top.
// A .env file in the working directory is honored the same way.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.CoinsList()) == 0 {
		return fmt.Errorf("no tracked coins configured")
	}
	if c.BinanceConfig.CallsPerMinute <= 0 || c.CoinGeckoConfig.CallsPerMinute <= 0 {
		return fmt.Errorf("provider rate ceilings must be positive")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8000))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("CORS_ORIGINS",
		defaultStr(cfg.ServerConfig.AllowedOrigins, "http://localhost:3000,http://localhost:5173"))

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultStr(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Database (signal history persistence; optional)
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", boolStr(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultStr(cfg.DatabaseConfig.User, "dashboard"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultStr(cfg.DatabaseConfig.Database, "dashboard"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Binance (primary provider)
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", defaultStr(cfg.BinanceConfig.BaseURL, "https://api.binance.com"))
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.CallsPerMinute = getEnvIntOrDefault("BINANCE_MAX_CALLS_PER_MINUTE", defaultInt(cfg.BinanceConfig.CallsPerMinute, 1200))
	cfg.BinanceConfig.RequestTimeoutSec = defaultInt(cfg.BinanceConfig.RequestTimeoutSec, 10)

	// CoinGecko (secondary provider)
	cfg.CoinGeckoConfig.BaseURL = getEnvOrDefault("COINGECKO_BASE_URL", defaultStr(cfg.CoinGeckoConfig.BaseURL, "https://api.coingecko.com/api/v3"))
	cfg.CoinGeckoConfig.APIKey = getEnvOrDefault("COINGECKO_API_KEY", cfg.CoinGeckoConfig.APIKey)
	cfg.CoinGeckoConfig.CallsPerMinute = getEnvIntOrDefault("COINGECKO_MAX_CALLS_PER_MINUTE", defaultInt(cfg.CoinGeckoConfig.CallsPerMinute, 50))
	cfg.CoinGeckoConfig.RequestTimeoutSec = defaultInt(cfg.CoinGeckoConfig.RequestTimeoutSec, 10)

	// Macro
	cfg.MacroConfig.RefreshIntervalMin = getEnvIntOrDefault("MACRO_REFRESH_MIN", defaultInt(cfg.MacroConfig.RefreshIntervalMin, 10))
	cfg.MacroConfig.FearGreedURL = getEnvOrDefault("FEAR_GREED_URL", defaultStr(cfg.MacroConfig.FearGreedURL, "https://api.alternative.me/fng/"))

	// AI
	cfg.AIConfig.Enabled = getEnvOrDefault("AI_ENABLED", "true") == "true"
	cfg.AIConfig.Provider = getEnvOrDefault("AI_PROVIDER", defaultStr(cfg.AIConfig.Provider, "claude"))
	cfg.AIConfig.ClaudeAPIKey = getEnvOrDefault("ANTHROPIC_API_KEY", cfg.AIConfig.ClaudeAPIKey)
	cfg.AIConfig.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", cfg.AIConfig.OpenAIAPIKey)
	cfg.AIConfig.DeepSeekAPIKey = getEnvOrDefault("DEEPSEEK_API_KEY", cfg.AIConfig.DeepSeekAPIKey)
	cfg.AIConfig.Model = getEnvOrDefault("AI_MODEL", defaultStr(cfg.AIConfig.Model, "claude-sonnet-4-20250514"))
	cfg.AIConfig.MaxTokens = getEnvIntOrDefault("AI_MAX_TOKENS", defaultInt(cfg.AIConfig.MaxTokens, 4096))
	if cfg.AIConfig.Temperature == 0 {
		cfg.AIConfig.Temperature = 0.7
	}
	cfg.AIConfig.TimeoutSec = getEnvIntOrDefault("AI_TIMEOUT_SEC", defaultInt(cfg.AIConfig.TimeoutSec, 30))

	// Signal pipeline
	cfg.SignalConfig.TrackedCoins = getEnvOrDefault("TRACKED_COINS", defaultStr(cfg.SignalConfig.TrackedCoins, DefaultTrackedCoins))
	cfg.SignalConfig.HistoryCandles = defaultInt(cfg.SignalConfig.HistoryCandles, 200)
	cfg.SignalConfig.Interval = defaultStr(cfg.SignalConfig.Interval, "1h")
	cfg.SignalConfig.UpdateIntervalSec = getEnvIntOrDefault("SIGNAL_UPDATE_INTERVAL", defaultInt(cfg.SignalConfig.UpdateIntervalSec, 60))
	cfg.SignalConfig.OverviewRefreshMin = defaultInt(cfg.SignalConfig.OverviewRefreshMin, 5)
	cfg.SignalConfig.SentimentTimeoutSec = defaultInt(cfg.SignalConfig.SentimentTimeoutSec, 30)
	cfg.SignalConfig.UpstreamFetchTimeoutS = defaultInt(cfg.SignalConfig.UpstreamFetchTimeoutS, 20)
}

func (c *SignalConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalSec) * time.Second
}

func (c *SignalConfig) OverviewRefresh() time.Duration {
	return time.Duration(c.OverviewRefreshMin) * time.Minute
}

func (c *SignalConfig) SentimentTimeout() time.Duration {
	return time.Duration(c.SentimentTimeoutSec) * time.Second
}

func (c *SignalConfig) UpstreamFetchTimeout() time.Duration {
	return time.Duration(c.UpstreamFetchTimeoutS) * time.Second
}

func (c *MacroConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMin) * time.Minute
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func defaultStr(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func defaultInt(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
