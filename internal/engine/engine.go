// Package engine orchestrates the signal pipeline: cache-first reads, the
// rate-limited market gateway, indicator computation, macro context, the AI
// layer and the aggregator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ai-crypto-dashboard/config"
	"ai-crypto-dashboard/internal/ai/llm"
	"ai-crypto-dashboard/internal/cache"
	"ai-crypto-dashboard/internal/database"
	"ai-crypto-dashboard/internal/events"
	"ai-crypto-dashboard/internal/indicators"
	"ai-crypto-dashboard/internal/logging"
	"ai-crypto-dashboard/internal/macro"
	"ai-crypto-dashboard/internal/market"
	"ai-crypto-dashboard/internal/ratelimit"
	"ai-crypto-dashboard/internal/signal"
)

// ErrHistoryDisabled reports that signal persistence is not configured.
var ErrHistoryDisabled = errors.New("signal history persistence disabled")

// CoinAnalysis is the full per-coin response: price, indicators, the
// optional AI assessment and the composite signal.
type CoinAnalysis struct {
	Coin       string                  `json:"coin"`
	Price      *market.PriceSnapshot   `json:"price"`
	Technical  indicators.IndicatorSet `json:"technical"`
	AIAnalysis *llm.Assessment         `json:"ai_analysis,omitempty"`
	Signal     signal.CompositeSignal  `json:"signal"`
}

// Options wires the engine's collaborators. DB is optional.
type Options struct {
	Config    *config.Config
	Gateway   *market.Gateway
	Secondary *market.CoinGeckoClient
	Cache     *cache.Tiered
	Macro     *macro.Provider
	Analyzer  *llm.Analyzer
	Limits    *ratelimit.Manager
	DB        *database.DB
	Bus       *events.EventBus
}

// Engine is the domain facade consumed by the API layer.
type Engine struct {
	cfg       *config.Config
	gateway   *market.Gateway
	secondary *market.CoinGeckoClient
	cache     *cache.Tiered
	macro     *macro.Provider
	analyzer  *llm.Analyzer
	limits    *ratelimit.Manager
	db        *database.DB
	bus       *events.EventBus
	logger    zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Engine {
	if opts.Macro != nil && opts.Bus != nil {
		opts.Macro.OnUpdate(func(c macro.Context) {
			opts.Bus.PublishMacroUpdate(macro.Score(c), c.Stale)
		})
	}
	return &Engine{
		cfg:       opts.Config,
		gateway:   opts.Gateway,
		secondary: opts.Secondary,
		cache:     opts.Cache,
		macro:     opts.Macro,
		analyzer:  opts.Analyzer,
		limits:    opts.Limits,
		db:        opts.DB,
		bus:       opts.Bus,
		logger:    logging.Component("engine"),
	}
}

// TrackedCoins returns the configured symbol set.
func (e *Engine) TrackedCoins() []string {
	return e.gateway.Tracked()
}

// IsTracked reports whether the symbol is in the configured set.
func (e *Engine) IsTracked(symbol string) bool {
	return e.gateway.IsTracked(symbol)
}

// AnalyzeCoin returns the full analysis for one tracked coin, serving from
// cache when fresh.
func (e *Engine) AnalyzeCoin(ctx context.Context, symbol string) (*CoinAnalysis, error) {
	return e.analyzeCoin(ctx, symbol, ratelimit.PriorityHigh)
}

func (e *Engine) analyzeCoin(ctx context.Context, symbol string, prio ratelimit.Priority) (*CoinAnalysis, error) {
	symbol = strings.ToUpper(symbol)
	if !e.gateway.IsTracked(symbol) {
		return nil, fmt.Errorf("coin %s: %w", symbol, market.ErrUnknownSymbol)
	}

	analysis, err := cache.Fetch(ctx, e.cache, cache.SignalKey(symbol), cache.TTLIndicators,
		func(ctx context.Context) (CoinAnalysis, error) {
			return e.buildAnalysis(ctx, symbol, prio)
		})
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// buildAnalysis runs the full pipeline for one coin on a cache miss.
func (e *Engine) buildAnalysis(ctx context.Context, symbol string, prio ratelimit.Priority) (CoinAnalysis, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.SignalConfig.UpstreamFetchTimeout())
	defer cancel()

	snap, err := cache.Fetch(fetchCtx, e.cache, cache.PriceKey(symbol), cache.TTLPrice,
		func(ctx context.Context) (market.PriceSnapshot, error) {
			s, err := e.gateway.Snapshot(ctx, symbol, prio)
			if err != nil {
				return market.PriceSnapshot{}, err
			}
			return *s, nil
		})
	if err != nil {
		return CoinAnalysis{}, err
	}

	history, err := cache.Fetch(fetchCtx, e.cache, cache.HistoryKey(symbol), cache.TTLHistory,
		func(ctx context.Context) ([]market.Kline, error) {
			return e.gateway.History(ctx, symbol, e.cfg.SignalConfig.Interval, e.cfg.SignalConfig.HistoryCandles, prio)
		})
	if err != nil {
		return CoinAnalysis{}, err
	}

	set := indicators.Compute(history)
	assessment := e.assess(ctx, symbol, &snap, set)

	// Before the first successful macro refresh there is nothing to score;
	// the signal degrades rather than blending a fabricated neutral layer.
	var macroPtr *macro.Context
	if macroCtx := e.macro.Current(); !macroCtx.FetchedAt.IsZero() {
		macroPtr = &macroCtx
	}

	sig := signal.Build(symbol, &snap, set, assessment, macroPtr)

	e.persistSignal(sig, snap.Price)
	e.bus.PublishSignalUpdate(symbol, sig.Signal, sig.OverallScore, sig.Confidence)
	e.bus.PublishPriceUpdate(symbol, snap.Price, snap.Change24h)

	return CoinAnalysis{
		Coin:       symbol,
		Price:      &snap,
		Technical:  set,
		AIAnalysis: assessment,
		Signal:     sig,
	}, nil
}

// assess runs the AI layer under its own timeout. Any failure degrades the
// signal to technical+macro instead of failing the pipeline.
func (e *Engine) assess(ctx context.Context, symbol string, snap *market.PriceSnapshot, set indicators.IndicatorSet) *llm.Assessment {
	if !e.analyzer.IsEnabled() {
		return nil
	}

	aiCtx, cancel := context.WithTimeout(ctx, e.cfg.SignalConfig.SentimentTimeout())
	defer cancel()

	assessment, err := cache.Fetch(aiCtx, e.cache, cache.AnalysisKey(symbol), cache.TTLAIAnalysis,
		func(ctx context.Context) (llm.Assessment, error) {
			a, err := e.analyzer.Assess(ctx, symbol, snap, set)
			if err != nil {
				return llm.Assessment{}, err
			}
			return *a, nil
		})
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("ai assessment unavailable, degrading")
		return nil
	}
	return &assessment
}

// persistSignal writes the signal to history off the request path.
func (e *Engine) persistSignal(sig signal.CompositeSignal, price float64) {
	if e.db == nil {
		return
	}

	rec := database.SignalRecord{
		Coin:            sig.Coin,
		Signal:          sig.Signal,
		OverallScore:    sig.OverallScore,
		Confidence:      sig.Confidence,
		TechnicalScore:  sig.TechnicalScore,
		MacroScore:      sig.MacroScore,
		SentimentScore:  sig.SentimentScore,
		Price:           price,
		PositionSizePct: sig.PositionSizePct,
		Degraded:        sig.Degraded,
		GeneratedAt:     sig.Timestamp,
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.db.SaveSignal(ctx, rec); err != nil {
			e.logger.Warn().Err(err).Str("symbol", rec.Coin).Msg("signal persistence failed")
			e.bus.PublishError("database", "signal persistence failed", err)
		}
	}()
}

// Signals analyzes every tracked coin with bounded parallelism. Individual
// coin failures are skipped, not fatal.
func (e *Engine) Signals(ctx context.Context) []signal.Summary {
	return e.collectSignals(ctx, ratelimit.PriorityNormal)
}

func (e *Engine) collectSignals(ctx context.Context, prio ratelimit.Priority) []signal.Summary {
	coins := e.gateway.Tracked()
	results := make([]*signal.Summary, len(coins))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, coin := range coins {
		i, coin := i, coin
		g.Go(func() error {
			analysis, err := e.analyzeCoin(gctx, coin, prio)
			if err != nil {
				e.logger.Warn().Err(err).Str("symbol", coin).Msg("signal fetch failed, skipping")
				return nil
			}
			sum := signal.Summarize(analysis.Signal, analysis.Price)
			results[i] = &sum
			return nil
		})
	}
	_ = g.Wait()

	out := make([]signal.Summary, 0, len(coins))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// OrderBook returns normalized depth for one tracked coin.
func (e *Engine) OrderBook(ctx context.Context, symbol string, limit int) (*market.OrderBook, error) {
	return e.gateway.OrderBook(ctx, strings.ToUpper(symbol), limit, ratelimit.PriorityNormal)
}

// History returns the cached candle series for one tracked coin.
func (e *Engine) History(ctx context.Context, symbol string) ([]market.Kline, error) {
	symbol = strings.ToUpper(symbol)
	if !e.gateway.IsTracked(symbol) {
		return nil, fmt.Errorf("coin %s: %w", symbol, market.ErrUnknownSymbol)
	}
	return cache.Fetch(ctx, e.cache, cache.HistoryKey(symbol), cache.TTLHistory,
		func(ctx context.Context) ([]market.Kline, error) {
			return e.gateway.History(ctx, symbol, e.cfg.SignalConfig.Interval, e.cfg.SignalConfig.HistoryCandles, ratelimit.PriorityNormal)
		})
}

// SignalHistory returns persisted signals for one coin, newest first.
func (e *Engine) SignalHistory(ctx context.Context, symbol string, limit int) ([]database.SignalRecord, error) {
	symbol = strings.ToUpper(symbol)
	if !e.gateway.IsTracked(symbol) {
		return nil, fmt.Errorf("coin %s: %w", symbol, market.ErrUnknownSymbol)
	}
	if e.db == nil {
		return nil, ErrHistoryDisabled
	}
	return e.db.RecentSignals(ctx, symbol, limit)
}

// RateLimits reports the current budget state per provider.
func (e *Engine) RateLimits() map[string]ratelimit.ProviderStatus {
	return e.limits.Status()
}

// Health is the liveness/readiness view of the pipeline's dependencies.
type Health struct {
	Status    string          `json:"status"`
	Providers map[string]bool `json:"providers"`
	Cache     bool            `json:"cache"`
	Database  *bool           `json:"database,omitempty"`
	AIEnabled bool            `json:"ai_enabled"`
	MacroOK   bool            `json:"macro_ok"`
}

// HealthCheck reports upstream connectivity and cache backing health.
func (e *Engine) HealthCheck(ctx context.Context) Health {
	h := Health{
		Providers: e.gateway.Healthy(),
		Cache:     e.cache.Healthy(),
		AIEnabled: e.analyzer.IsEnabled(),
		MacroOK:   !e.macro.Current().Stale,
	}

	if e.db != nil {
		ok := e.db.HealthCheck(ctx) == nil
		h.Database = &ok
	}

	h.Status = "ok"
	for _, up := range h.Providers {
		if !up {
			h.Status = "degraded"
		}
	}
	if e.db != nil && h.Database != nil && !*h.Database {
		h.Status = "degraded"
	}
	return h
}
