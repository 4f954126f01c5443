package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ai-crypto-dashboard/config"
	"ai-crypto-dashboard/internal/ai/llm"
	"ai-crypto-dashboard/internal/cache"
	"ai-crypto-dashboard/internal/events"
	"ai-crypto-dashboard/internal/macro"
	"ai-crypto-dashboard/internal/market"
	"ai-crypto-dashboard/internal/ratelimit"
	"ai-crypto-dashboard/internal/signal"
)

type fakePrimary struct {
	snap       *market.PriceSnapshot
	klines     []market.Kline
	err        error
	failSymbol string
	tickerN    int32
	klinesN    int32
}

func (f *fakePrimary) Ticker24h(ctx context.Context, symbol string, prio ratelimit.Priority) (*market.PriceSnapshot, error) {
	atomic.AddInt32(&f.tickerN, 1)
	if f.err != nil {
		return nil, f.err
	}
	if f.failSymbol == symbol {
		return nil, errors.New("symbol feed down")
	}
	return f.snap, nil
}

func (f *fakePrimary) Klines(ctx context.Context, symbol, interval string, limit int, prio ratelimit.Priority) ([]market.Kline, error) {
	atomic.AddInt32(&f.klinesN, 1)
	if f.err != nil {
		return nil, f.err
	}
	if f.failSymbol == symbol {
		return nil, errors.New("symbol feed down")
	}
	return f.klines, nil
}

func (f *fakePrimary) Depth(ctx context.Context, symbol string, limit int, prio ratelimit.Priority) (*market.OrderBook, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &market.OrderBook{Symbol: symbol, Timestamp: time.Now()}, nil
}

type failingSecondary struct{}

func (failingSecondary) Snapshot(ctx context.Context, symbol string, prio ratelimit.Priority) (*market.PriceSnapshot, error) {
	return nil, errors.New("secondary down")
}

func (failingSecondary) History(ctx context.Context, symbol string, days int, prio ratelimit.Priority) ([]market.Kline, error) {
	return nil, errors.New("secondary down")
}

type stubMacroFetcher struct {
	ctx macro.Context
}

func (s *stubMacroFetcher) Fetch(context.Context) (macro.Context, error) {
	return s.ctx, nil
}

func candles(n int) []market.Kline {
	out := make([]market.Kline, n)
	base := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := range out {
		price := 50000 + float64(i)*10
		out[i] = market.Kline{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price * 1.01,
			Low:      price * 0.99,
			Close:    price,
			Volume:   1000,
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		SignalConfig: config.SignalConfig{
			TrackedCoins:          "BTC,ETH",
			HistoryCandles:        200,
			Interval:              "1h",
			UpdateIntervalSec:     60,
			OverviewRefreshMin:    5,
			SentimentTimeoutSec:   1,
			UpstreamFetchTimeoutS: 5,
		},
	}
}

func healthyPrimary() *fakePrimary {
	return &fakePrimary{
		snap:   &market.PriceSnapshot{Symbol: "BTC", Price: 52000, Change24h: 1.5, Volume24h: 2e10},
		klines: candles(250),
	}
}

// newTestEngine builds an engine with faked providers, an in-process cache,
// a disabled analyzer and no database.
func newTestEngine(primary *fakePrimary) (*Engine, *cache.Tiered, *macro.Provider) {
	cfg := testConfig()
	tiered := cache.NewTiered(nil)
	macroProvider := macro.NewProvider(&stubMacroFetcher{
		ctx: macro.Context{DXY: func() *float64 { v := 98.0; return &v }()},
	}, time.Minute)

	eng := New(Options{
		Config:   cfg,
		Gateway:  market.NewGateway(primary, failingSecondary{}, cfg.CoinsList()),
		Cache:    tiered,
		Macro:    macroProvider,
		Analyzer: llm.NewAnalyzer(nil, false),
		Limits:   ratelimit.NewManager(),
		Bus:      events.NewEventBus(),
	})
	return eng, tiered, macroProvider
}

func TestAnalyzeCoinDegradesWithoutSentimentOrMacro(t *testing.T) {
	eng, _, _ := newTestEngine(healthyPrimary())

	analysis, err := eng.AnalyzeCoin(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.AIAnalysis != nil {
		t.Error("disabled analyzer should yield no assessment")
	}
	if analysis.Signal.Signal == "" {
		t.Fatal("degraded pipeline must still produce a signal")
	}
	if !analysis.Signal.Degraded {
		t.Error("signal should be marked degraded")
	}
	if analysis.Signal.MacroScore != nil {
		t.Error("macro score should be absent before the first macro refresh")
	}
	inputs := map[string]bool{}
	for _, in := range analysis.Signal.DegradedInputs {
		inputs[in] = true
	}
	if !inputs[signal.InputSentiment] || !inputs[signal.InputMacro] {
		t.Errorf("degraded inputs = %v, want sentiment and macro", analysis.Signal.DegradedInputs)
	}
}

func TestAnalyzeCoinUsesMacroAfterRefresh(t *testing.T) {
	eng, _, macroProvider := newTestEngine(healthyPrimary())
	if err := macroProvider.Refresh(context.Background()); err != nil {
		t.Fatalf("macro refresh: %v", err)
	}

	analysis, err := eng.AnalyzeCoin(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.Signal.MacroScore == nil {
		t.Fatal("macro score should be present after a successful refresh")
	}
	for _, in := range analysis.Signal.DegradedInputs {
		if in == signal.InputMacro {
			t.Error("macro should not be listed degraded after refresh")
		}
	}
}

func TestAnalyzeCoinBothProvidersDown(t *testing.T) {
	primary := healthyPrimary()
	primary.err = errors.New("primary down")
	eng, tiered, _ := newTestEngine(primary)

	_, err := eng.AnalyzeCoin(context.Background(), "BTC")
	if !errors.Is(err, market.ErrDataUnavailable) {
		t.Fatalf("error = %v, want ErrDataUnavailable", err)
	}

	// Failures must never leave a cache entry behind.
	if _, hit := tiered.Get(context.Background(), cache.SignalKey("BTC")); hit {
		t.Error("failed analysis must not be cached under the signal key")
	}
	if _, hit := tiered.Get(context.Background(), cache.PriceKey("BTC")); hit {
		t.Error("failed analysis must not be cached under the price key")
	}
}

func TestAnalyzeCoinServesFromCache(t *testing.T) {
	primary := healthyPrimary()
	eng, _, _ := newTestEngine(primary)

	if _, err := eng.AnalyzeCoin(context.Background(), "BTC"); err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	if _, err := eng.AnalyzeCoin(context.Background(), "BTC"); err != nil {
		t.Fatalf("second analyze: %v", err)
	}

	if n := atomic.LoadInt32(&primary.tickerN); n != 1 {
		t.Errorf("ticker calls = %d, want 1 with a warm cache", n)
	}
	if n := atomic.LoadInt32(&primary.klinesN); n != 1 {
		t.Errorf("kline calls = %d, want 1 with a warm cache", n)
	}
}

func TestAnalyzeCoinUnknownSymbol(t *testing.T) {
	primary := healthyPrimary()
	eng, _, _ := newTestEngine(primary)

	_, err := eng.AnalyzeCoin(context.Background(), "DOGE")
	if !errors.Is(err, market.ErrUnknownSymbol) {
		t.Fatalf("error = %v, want ErrUnknownSymbol", err)
	}
	if n := atomic.LoadInt32(&primary.tickerN); n != 0 {
		t.Errorf("ticker calls = %d, want 0 for an untracked symbol", n)
	}
}

func TestSignalsSkipsFailingCoins(t *testing.T) {
	primary := healthyPrimary()
	primary.failSymbol = "ETH"
	eng, _, _ := newTestEngine(primary)

	summaries := eng.Signals(context.Background())
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1 with ETH's feed down", len(summaries))
	}
	if summaries[0].Coin != "BTC" {
		t.Errorf("surviving summary = %q, want BTC", summaries[0].Coin)
	}
	if !summaries[0].Degraded {
		t.Error("summary should carry the degraded flag")
	}
}

func TestSignalHistoryWithoutDatabase(t *testing.T) {
	eng, _, _ := newTestEngine(healthyPrimary())

	_, err := eng.SignalHistory(context.Background(), "BTC", 10)
	if !errors.Is(err, ErrHistoryDisabled) {
		t.Fatalf("error = %v, want ErrHistoryDisabled", err)
	}
}
