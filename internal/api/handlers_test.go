package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ai-crypto-dashboard/internal/database"
	"ai-crypto-dashboard/internal/engine"
	"ai-crypto-dashboard/internal/events"
	"ai-crypto-dashboard/internal/market"
	"ai-crypto-dashboard/internal/ratelimit"
	"ai-crypto-dashboard/internal/signal"
)

type fakeEngine struct {
	coins      []string
	analysis   *engine.CoinAnalysis
	analyzeErr error
	signals    []signal.Summary
	overview   *engine.Overview
	health     engine.Health
	historyErr error
}

func (f *fakeEngine) TrackedCoins() []string { return f.coins }

func (f *fakeEngine) IsTracked(symbol string) bool {
	for _, c := range f.coins {
		if c == symbol {
			return true
		}
	}
	return false
}

func (f *fakeEngine) AnalyzeCoin(ctx context.Context, symbol string) (*engine.CoinAnalysis, error) {
	if !f.IsTracked(symbol) {
		return nil, market.ErrUnknownSymbol
	}
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return f.analysis, nil
}

func (f *fakeEngine) Signals(ctx context.Context) []signal.Summary { return f.signals }

func (f *fakeEngine) MarketOverview(ctx context.Context) (*engine.Overview, error) {
	if f.overview == nil {
		return nil, market.ErrDataUnavailable
	}
	return f.overview, nil
}

func (f *fakeEngine) GetMorningBrief(ctx context.Context) (*engine.MorningBrief, error) {
	return &engine.MorningBrief{Date: "2025-06-01", MarketStatus: "BULLISH", RiskLevel: "LOW"}, nil
}

func (f *fakeEngine) OrderBook(ctx context.Context, symbol string, limit int) (*market.OrderBook, error) {
	if !f.IsTracked(symbol) {
		return nil, market.ErrUnknownSymbol
	}
	return &market.OrderBook{Symbol: symbol, Timestamp: time.Now()}, nil
}

func (f *fakeEngine) History(ctx context.Context, symbol string) ([]market.Kline, error) {
	if !f.IsTracked(symbol) {
		return nil, market.ErrUnknownSymbol
	}
	return []market.Kline{{Close: 50000}}, nil
}

func (f *fakeEngine) SignalHistory(ctx context.Context, symbol string, limit int) ([]database.SignalRecord, error) {
	if !f.IsTracked(symbol) {
		return nil, market.ErrUnknownSymbol
	}
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return []database.SignalRecord{{Coin: symbol, Signal: "BUY"}}, nil
}

func (f *fakeEngine) RateLimits() map[string]ratelimit.ProviderStatus {
	return map[string]ratelimit.ProviderStatus{}
}

func (f *fakeEngine) HealthCheck(ctx context.Context) engine.Health { return f.health }

func newTestServer(t *testing.T, eng EngineAPI) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewServer(ServerConfig{Port: 0, Host: "127.0.0.1"}, eng, events.NewEventBus())
}

func doRequest(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func defaultFake() *fakeEngine {
	score := 72.5
	return &fakeEngine{
		coins: []string{"BTC", "ETH"},
		analysis: &engine.CoinAnalysis{
			Coin:  "BTC",
			Price: &market.PriceSnapshot{Symbol: "BTC", Price: 50000},
			Signal: signal.CompositeSignal{
				Coin:         "BTC",
				Signal:       signal.BandBuy,
				OverallScore: score,
				Confidence:   60,
			},
		},
		signals: []signal.Summary{
			{Coin: "BTC", Signal: signal.BandBuy, OverallScore: score, Price: 50000},
		},
		health: engine.Health{
			Status:    "ok",
			Providers: map[string]bool{"binance": true, "coingecko": true},
			Cache:     true,
		},
	}
}

func TestCoinAnalysisEndpoint(t *testing.T) {
	s := newTestServer(t, defaultFake())

	w := doRequest(t, s, "/api/coin/btc")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool                `json:"success"`
		Data    engine.CoinAnalysis `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Data.Coin != "BTC" {
		t.Errorf("expected coin BTC, got %q", resp.Data.Coin)
	}
	if resp.Data.Signal.Signal != signal.BandBuy {
		t.Errorf("expected BUY signal, got %q", resp.Data.Signal.Signal)
	}
}

func TestCoinAnalysisUnknownSymbol(t *testing.T) {
	s := newTestServer(t, defaultFake())

	w := doRequest(t, s, "/api/coin/DOGE")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for untracked coin, got %d", w.Code)
	}

	var resp struct {
		Error   bool   `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Error {
		t.Error("expected error=true")
	}
}

func TestCoinAnalysisUpstreamUnavailable(t *testing.T) {
	fake := defaultFake()
	fake.analyzeErr = market.ErrDataUnavailable
	s := newTestServer(t, fake)

	w := doRequest(t, s, "/api/coin/BTC")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when upstreams fail, got %d", w.Code)
	}
}

func TestCoinAnalysisRateLimited(t *testing.T) {
	fake := defaultFake()
	fake.analyzeErr = ratelimit.ErrRateLimitExceeded
	s := newTestServer(t, fake)

	w := doRequest(t, s, "/api/coin/BTC")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 when rate limited, got %d", w.Code)
	}
}

func TestCoinsEndpoint(t *testing.T) {
	s := newTestServer(t, defaultFake())

	w := doRequest(t, s, "/api/coins")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Data struct {
			Coins []string `json:"coins"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Data.Coins) != 2 {
		t.Errorf("expected 2 coins, got %d", len(resp.Data.Coins))
	}
}

func TestSignalsEndpoint(t *testing.T) {
	s := newTestServer(t, defaultFake())

	w := doRequest(t, s, "/api/signals")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Data struct {
			Signals []signal.Summary `json:"signals"`
			Count   int              `json:"count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Data.Count != 1 || len(resp.Data.Signals) != 1 {
		t.Errorf("expected 1 signal, got count=%d len=%d", resp.Data.Count, len(resp.Data.Signals))
	}
}

func TestSignalHistoryDisabled(t *testing.T) {
	fake := defaultFake()
	fake.historyErr = engine.ErrHistoryDisabled
	s := newTestServer(t, fake)

	w := doRequest(t, s, "/api/coin/BTC/signals")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when history store disabled, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, defaultFake())

	w := doRequest(t, s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var health engine.Health
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("expected ok status, got %q", health.Status)
	}
}

func TestHealthEndpointDegraded(t *testing.T) {
	fake := defaultFake()
	fake.health.Status = "degraded"
	fake.health.Providers["binance"] = false
	s := newTestServer(t, fake)

	w := doRequest(t, s, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for degraded health, got %d", w.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, defaultFake())

	w := doRequest(t, s, "/api/coins")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}
