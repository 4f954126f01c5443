package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"ai-crypto-dashboard/config"
	"ai-crypto-dashboard/internal/ai/llm"
	"ai-crypto-dashboard/internal/api"
	"ai-crypto-dashboard/internal/cache"
	"ai-crypto-dashboard/internal/database"
	"ai-crypto-dashboard/internal/engine"
	"ai-crypto-dashboard/internal/events"
	"ai-crypto-dashboard/internal/logging"
	"ai-crypto-dashboard/internal/macro"
	"ai-crypto-dashboard/internal/market"
	"ai-crypto-dashboard/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Setup(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Output:     cfg.LoggingConfig.Output,
	})
	logger := logging.Component("main")
	logger.Info().Strs("coins", cfg.CoinsList()).Msg("starting crypto dashboard backend")

	// Rate limiting, one bucket per provider.
	limits := ratelimit.NewManager()
	limits.Register(market.ProviderBinance, cfg.BinanceConfig.CallsPerMinute)
	limits.Register(market.ProviderCoinGecko, cfg.CoinGeckoConfig.CallsPerMinute)

	// Market data providers behind the fallback gateway.
	binance := market.NewBinanceClient(market.BinanceOptions{
		BaseURL: cfg.BinanceConfig.BaseURL,
		APIKey:  cfg.BinanceConfig.APIKey,
		Timeout: time.Duration(cfg.BinanceConfig.RequestTimeoutSec) * time.Second,
	}, limits)
	coingecko := market.NewCoinGeckoClient(market.CoinGeckoOptions{
		BaseURL:      cfg.CoinGeckoConfig.BaseURL,
		APIKey:       cfg.CoinGeckoConfig.APIKey,
		FearGreedURL: cfg.MacroConfig.FearGreedURL,
		Timeout:      time.Duration(cfg.CoinGeckoConfig.RequestTimeoutSec) * time.Second,
	}, limits)
	gateway := market.NewGateway(binance, coingecko, cfg.CoinsList())

	// Cache: redis-backed when available, in-process memo otherwise.
	var cacheStore *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheStore, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, running with in-process cache only")
			cacheStore = nil
		}
	}
	tiered := cache.NewTiered(cacheStore)

	// Macro context provider.
	macroProvider := macro.NewProvider(
		macro.NewDefaultFetcher(coingecko, cfg.MacroConfig),
		cfg.MacroConfig.RefreshInterval(),
	)

	// AI analyzer: absence degrades signals, it never blocks them.
	var analyzer *llm.Analyzer
	{
		clientCfg := llm.DefaultClientConfig()
		clientCfg.Provider = llm.Provider(cfg.AIConfig.Provider)
		clientCfg.Model = cfg.AIConfig.Model
		clientCfg.MaxTokens = cfg.AIConfig.MaxTokens
		clientCfg.Temperature = cfg.AIConfig.Temperature
		clientCfg.Timeout = time.Duration(cfg.AIConfig.TimeoutSec) * time.Second
		switch clientCfg.Provider {
		case llm.ProviderOpenAI:
			clientCfg.APIKey = cfg.AIConfig.OpenAIAPIKey
		case llm.ProviderDeepSeek:
			clientCfg.APIKey = cfg.AIConfig.DeepSeekAPIKey
		default:
			clientCfg.APIKey = cfg.AIConfig.ClaudeAPIKey
		}
		analyzer = llm.NewAnalyzer(llm.NewClient(clientCfg), cfg.AIConfig.Enabled)
	}
	if !analyzer.IsEnabled() {
		logger.Warn().Msg("AI analysis disabled, signals will degrade to technical + macro")
	}

	// Optional signal history persistence.
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("database unavailable, signal history disabled")
			db = nil
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := db.RunMigrations(ctx); err != nil {
				logger.Error().Err(err).Msg("migrations failed, signal history disabled")
				db.Close()
				db = nil
			}
			cancel()
		}
	}

	eventBus := events.NewEventBus()

	eng := engine.New(engine.Options{
		Config:    cfg,
		Gateway:   gateway,
		Secondary: coingecko,
		Cache:     tiered,
		Macro:     macroProvider,
		Analyzer:  analyzer,
		Limits:    limits,
		DB:        db,
		Bus:       eventBus,
	})
	eng.Start()

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: strings.ToUpper(cfg.LoggingConfig.Level) != "DEBUG",
		AllowOrigins:   strings.Split(cfg.ServerConfig.AllowedOrigins, ","),
	}, eng, eventBus)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	eng.Stop()
	if cacheStore != nil {
		cacheStore.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info().Msg("shutdown complete")
}
