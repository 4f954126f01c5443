package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"ai-crypto-dashboard/internal/logging"
	"ai-crypto-dashboard/internal/ratelimit"
)

// ProviderBinance is the rate limiter bucket name for the primary provider.
const ProviderBinance = "binance"

// BinanceClient talks to the public Binance spot REST API. No credentials are
// required for market data; the optional API key only raises the ceiling.
type BinanceClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limits     *ratelimit.Manager
	logger     zerolog.Logger
}

// BinanceOptions configures the client.
type BinanceOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewBinanceClient(opts BinanceOptions, limits *ratelimit.Manager) *BinanceClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.binance.com"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &BinanceClient{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limits:     limits,
		logger:     logging.Component("binance"),
	}
}

// pair maps a tracked symbol to its USDT trading pair.
func pair(symbol string) string {
	return symbol + "USDT"
}

// Ticker24h returns the normalized 24h ticker for a symbol.
func (c *BinanceClient) Ticker24h(ctx context.Context, symbol string, prio ratelimit.Priority) (*PriceSnapshot, error) {
	var raw struct {
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
		Volume             string `json:"volume"`
		QuoteVolume        string `json:"quoteVolume"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
	}

	params := url.Values{"symbol": {pair(symbol)}}
	if err := c.doGet(ctx, "/api/v3/ticker/24hr", params, prio, 1, &raw); err != nil {
		return nil, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}

	snap := &PriceSnapshot{
		Symbol:    symbol,
		Price:     parseFloat(raw.LastPrice),
		Change24h: parseFloat(raw.PriceChangePercent),
		Volume24h: parseFloat(raw.QuoteVolume),
		High24h:   parseFloat(raw.HighPrice),
		Low24h:    parseFloat(raw.LowPrice),
		Timestamp: time.Now().UTC(),
	}
	if snap.Price == 0 {
		return nil, fmt.Errorf("binance ticker %s: empty payload", symbol)
	}
	return snap, nil
}

// Klines returns up to limit candles for a symbol at the given interval.
func (c *BinanceClient) Klines(ctx context.Context, symbol, interval string, limit int, prio ratelimit.Priority) ([]Kline, error) {
	params := url.Values{
		"symbol":   {pair(symbol)},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}

	// Each kline row is a mixed array: [openTime, open, high, low, close,
	// volume, closeTime, ...] with numbers encoded as strings.
	var raw [][]json.RawMessage
	if err := c.doGet(ctx, "/api/v3/klines", params, prio, 2, &raw); err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		klines = append(klines, Kline{
			OpenTime: time.UnixMilli(openTime).UTC(),
			Open:     parseRawFloat(row[1]),
			High:     parseRawFloat(row[2]),
			Low:      parseRawFloat(row[3]),
			Close:    parseRawFloat(row[4]),
			Volume:   parseRawFloat(row[5]),
		})
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("binance klines %s: empty payload", symbol)
	}
	return klines, nil
}

// Depth returns the normalized order book for a symbol.
func (c *BinanceClient) Depth(ctx context.Context, symbol string, limit int, prio ratelimit.Priority) (*OrderBook, error) {
	params := url.Values{
		"symbol": {pair(symbol)},
		"limit":  {strconv.Itoa(limit)},
	}

	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := c.doGet(ctx, "/api/v3/depth", params, prio, 5, &raw); err != nil {
		return nil, fmt.Errorf("binance depth %s: %w", symbol, err)
	}

	book := &OrderBook{Symbol: symbol, Timestamp: time.Now().UTC()}
	for _, b := range raw.Bids {
		book.Bids = append(book.Bids, PriceLevel{Price: parseFloat(b[0]), Amount: parseFloat(b[1])})
	}
	for _, a := range raw.Asks {
		book.Asks = append(book.Asks, PriceLevel{Price: parseFloat(a[0]), Amount: parseFloat(a[1])})
	}
	return book, nil
}

func (c *BinanceClient) doGet(ctx context.Context, path string, params url.Values, prio ratelimit.Priority, weight int, out any) error {
	if err := c.limits.Acquire(ctx, ProviderBinance, prio, weight); err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(out)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
			// 418 is the Binance IP-ban response; back off hard either way.
			io.Copy(io.Discard, resp.Body)
			c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("provider rate limit response")
			return backoff.Permanent(fmt.Errorf("provider throttled (status %d): %w", resp.StatusCode, ratelimit.ErrRateLimitExceeded))
		case resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("status %d", resp.StatusCode)
		default:
			io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
	}

	policy := backoff.WithContext(retryPolicy(), ctx)
	return backoff.Retry(operation, policy)
}

func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 8 * time.Second
	return b
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseRawFloat(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseFloat(s)
	}
	var f float64
	_ = json.Unmarshal(raw, &f)
	return f
}
