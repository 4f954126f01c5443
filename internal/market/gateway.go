package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"ai-crypto-dashboard/internal/logging"
	"ai-crypto-dashboard/internal/ratelimit"
)

// primaryProvider is the high-limit feed (Binance).
type primaryProvider interface {
	Ticker24h(ctx context.Context, symbol string, prio ratelimit.Priority) (*PriceSnapshot, error)
	Klines(ctx context.Context, symbol, interval string, limit int, prio ratelimit.Priority) ([]Kline, error)
	Depth(ctx context.Context, symbol string, limit int, prio ratelimit.Priority) (*OrderBook, error)
}

// secondaryProvider is the low-limit feed (CoinGecko).
type secondaryProvider interface {
	Snapshot(ctx context.Context, symbol string, prio ratelimit.Priority) (*PriceSnapshot, error)
	History(ctx context.Context, symbol string, days int, prio ratelimit.Priority) ([]Kline, error)
}

// Gateway normalizes market data behind a fixed two-step fallback: try the
// primary provider, on failure try the secondary, and when both fail return
// ErrDataUnavailable. It never serves stale or synthetic data itself; caching
// is the cache manager's job.
type Gateway struct {
	primary   primaryProvider
	secondary secondaryProvider
	tracked   map[string]struct{}
	breakers  map[string]*gobreaker.CircuitBreaker
	logger    zerolog.Logger
}

func NewGateway(primary primaryProvider, secondary secondaryProvider, trackedCoins []string) *Gateway {
	tracked := make(map[string]struct{}, len(trackedCoins))
	for _, c := range trackedCoins {
		tracked[strings.ToUpper(c)] = struct{}{}
	}
	return &Gateway{
		primary:   primary,
		secondary: secondary,
		tracked:   tracked,
		breakers: map[string]*gobreaker.CircuitBreaker{
			ProviderBinance:   newProviderBreaker(ProviderBinance),
			ProviderCoinGecko: newProviderBreaker(ProviderCoinGecko),
		},
		logger: logging.Component("gateway"),
	}
}

func newProviderBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	return gobreaker.NewCircuitBreaker(st)
}

// IsTracked reports whether the symbol belongs to the configured set.
func (g *Gateway) IsTracked(symbol string) bool {
	_, ok := g.tracked[strings.ToUpper(symbol)]
	return ok
}

// Tracked returns the configured symbol set.
func (g *Gateway) Tracked() []string {
	coins := make([]string, 0, len(g.tracked))
	for c := range g.tracked {
		coins = append(coins, c)
	}
	return coins
}

func (g *Gateway) checkSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(symbol)
	if _, ok := g.tracked[symbol]; !ok {
		return "", fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
	}
	return symbol, nil
}

// Snapshot returns the current normalized ticker for a tracked symbol.
func (g *Gateway) Snapshot(ctx context.Context, symbol string, prio ratelimit.Priority) (*PriceSnapshot, error) {
	symbol, err := g.checkSymbol(symbol)
	if err != nil {
		return nil, err
	}

	snap, primaryErr := execBreaker(g.breakers[ProviderBinance], func() (*PriceSnapshot, error) {
		return g.primary.Ticker24h(ctx, symbol, prio)
	})
	if primaryErr == nil {
		return snap, nil
	}
	g.logger.Warn().Str("symbol", symbol).Err(primaryErr).Msg("primary snapshot failed, trying secondary")

	snap, secondaryErr := execBreaker(g.breakers[ProviderCoinGecko], func() (*PriceSnapshot, error) {
		return g.secondary.Snapshot(ctx, symbol, prio)
	})
	if secondaryErr == nil {
		return snap, nil
	}

	return nil, fmt.Errorf("%s (primary: %v; secondary: %v): %w",
		symbol, primaryErr, secondaryErr, ErrDataUnavailable)
}

// History returns an ordered close series for indicator computation. The
// primary serves hourly candles; the secondary only has a daily series, which
// still satisfies the indicator engine's input contract.
func (g *Gateway) History(ctx context.Context, symbol, interval string, limit int, prio ratelimit.Priority) ([]Kline, error) {
	symbol, err := g.checkSymbol(symbol)
	if err != nil {
		return nil, err
	}

	klines, primaryErr := execBreaker(g.breakers[ProviderBinance], func() ([]Kline, error) {
		return g.primary.Klines(ctx, symbol, interval, limit, prio)
	})
	if primaryErr == nil {
		return klines, nil
	}
	g.logger.Warn().Str("symbol", symbol).Err(primaryErr).Msg("primary history failed, trying secondary")

	days := limit/24 + 1
	klines, secondaryErr := execBreaker(g.breakers[ProviderCoinGecko], func() ([]Kline, error) {
		return g.secondary.History(ctx, symbol, days, prio)
	})
	if secondaryErr == nil {
		return klines, nil
	}

	return nil, fmt.Errorf("%s (primary: %v; secondary: %v): %w",
		symbol, primaryErr, secondaryErr, ErrDataUnavailable)
}

// OrderBook returns normalized depth levels. Only the primary provider
// carries an order book, so there is no second step here.
func (g *Gateway) OrderBook(ctx context.Context, symbol string, limit int, prio ratelimit.Priority) (*OrderBook, error) {
	symbol, err := g.checkSymbol(symbol)
	if err != nil {
		return nil, err
	}

	book, primaryErr := execBreaker(g.breakers[ProviderBinance], func() (*OrderBook, error) {
		return g.primary.Depth(ctx, symbol, limit, prio)
	})
	if primaryErr != nil {
		return nil, fmt.Errorf("%s (primary: %v): %w", symbol, primaryErr, ErrDataUnavailable)
	}
	return book, nil
}

// Healthy reports per-provider breaker state for the health endpoint.
func (g *Gateway) Healthy() map[string]bool {
	out := make(map[string]bool, len(g.breakers))
	for name, cb := range g.breakers {
		out[name] = cb.State() != gobreaker.StateOpen
	}
	return out
}

func execBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
