package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"ai-crypto-dashboard/internal/logging"
	"ai-crypto-dashboard/internal/ratelimit"
)

// ProviderCoinGecko is the rate limiter bucket name for the secondary
// provider. The free tier allows only 50 calls/minute, which is why the
// gateway prefers Binance and the cache absorbs everything it can.
const ProviderCoinGecko = "coingecko"

// coinGeckoIDs maps tracked symbols to CoinGecko coin IDs.
var coinGeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"MATIC": "matic-network",
	"DOT":   "polkadot",
	"ADA":   "cardano",
	"XRP":   "ripple",
	"INJ":   "injective-protocol",
	"SEI":   "sei-network",
	"ARB":   "arbitrum",
	"OP":    "optimism",
	"TIA":   "celestia",
	"SUI":   "sui",
}

// CoinGeckoClient talks to the CoinGecko REST API plus the alternative.me
// fear & greed feed.
type CoinGeckoClient struct {
	baseURL      string
	apiKey       string
	fearGreedURL string
	httpClient   *http.Client
	limits       *ratelimit.Manager
	logger       zerolog.Logger
}

type CoinGeckoOptions struct {
	BaseURL      string
	APIKey       string
	FearGreedURL string
	Timeout      time.Duration
}

func NewCoinGeckoClient(opts CoinGeckoOptions, limits *ratelimit.Manager) *CoinGeckoClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if opts.FearGreedURL == "" {
		opts.FearGreedURL = "https://api.alternative.me/fng/"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &CoinGeckoClient{
		baseURL:      opts.BaseURL,
		apiKey:       opts.APIKey,
		fearGreedURL: opts.FearGreedURL,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		limits:       limits,
		logger:       logging.Component("coingecko"),
	}
}

// CoinID resolves a tracked symbol to its CoinGecko ID.
func CoinID(symbol string) (string, bool) {
	id, ok := coinGeckoIDs[strings.ToUpper(symbol)]
	return id, ok
}

type geckoMarketRow struct {
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	CurrentPrice float64  `json:"current_price"`
	High24h      float64  `json:"high_24h"`
	Low24h       float64  `json:"low_24h"`
	TotalVolume  float64  `json:"total_volume"`
	Change24h    *float64 `json:"price_change_percentage_24h"`
	Change7d     *float64 `json:"price_change_percentage_7d_in_currency"`
}

// Snapshot returns the normalized ticker view from /coins/markets.
func (c *CoinGeckoClient) Snapshot(ctx context.Context, symbol string, prio ratelimit.Priority) (*PriceSnapshot, error) {
	id, ok := CoinID(symbol)
	if !ok {
		return nil, fmt.Errorf("coingecko %s: %w", symbol, ErrUnknownSymbol)
	}

	params := url.Values{
		"vs_currency":             {"usd"},
		"ids":                     {id},
		"price_change_percentage": {"7d"},
	}

	var rows []geckoMarketRow
	if err := c.doGet(ctx, "/coins/markets", params, prio, &rows); err != nil {
		return nil, fmt.Errorf("coingecko snapshot %s: %w", symbol, err)
	}
	if len(rows) == 0 || rows[0].CurrentPrice == 0 {
		return nil, fmt.Errorf("coingecko snapshot %s: empty payload", symbol)
	}

	row := rows[0]
	snap := &PriceSnapshot{
		Symbol:    symbol,
		Price:     row.CurrentPrice,
		Change7d:  row.Change7d,
		Volume24h: row.TotalVolume,
		High24h:   row.High24h,
		Low24h:    row.Low24h,
		Timestamp: time.Now().UTC(),
	}
	if row.Change24h != nil {
		snap.Change24h = *row.Change24h
	}
	return snap, nil
}

// History returns a daily close series from /coins/{id}/market_chart.
// CoinGecko has no OHLC at this tier, so open/high/low carry the close value;
// downstream indicator math only reads closes and volumes.
func (c *CoinGeckoClient) History(ctx context.Context, symbol string, days int, prio ratelimit.Priority) ([]Kline, error) {
	id, ok := CoinID(symbol)
	if !ok {
		return nil, fmt.Errorf("coingecko %s: %w", symbol, ErrUnknownSymbol)
	}

	params := url.Values{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(days)},
	}

	var raw struct {
		Prices       [][2]float64 `json:"prices"`
		TotalVolumes [][2]float64 `json:"total_volumes"`
	}
	if err := c.doGet(ctx, "/coins/"+id+"/market_chart", params, prio, &raw); err != nil {
		return nil, fmt.Errorf("coingecko history %s: %w", symbol, err)
	}
	if len(raw.Prices) == 0 {
		return nil, fmt.Errorf("coingecko history %s: empty payload", symbol)
	}

	volumes := make(map[int64]float64, len(raw.TotalVolumes))
	for _, v := range raw.TotalVolumes {
		volumes[int64(v[0])] = v[1]
	}

	klines := make([]Kline, 0, len(raw.Prices))
	for _, p := range raw.Prices {
		ts := int64(p[0])
		price := p[1]
		klines = append(klines, Kline{
			OpenTime: time.UnixMilli(ts).UTC(),
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
			Volume:   volumes[ts],
		})
	}
	return klines, nil
}

// Global returns market-wide aggregates from /global.
func (c *CoinGeckoClient) Global(ctx context.Context, prio ratelimit.Priority) (*GlobalStats, error) {
	var raw struct {
		Data struct {
			TotalMarketCap      map[string]float64 `json:"total_market_cap"`
			TotalVolume         map[string]float64 `json:"total_volume"`
			MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
			MarketCapChange24h  *float64           `json:"market_cap_change_percentage_24h_usd"`
		} `json:"data"`
	}
	if err := c.doGet(ctx, "/global", nil, prio, &raw); err != nil {
		return nil, fmt.Errorf("coingecko global: %w", err)
	}

	stats := &GlobalStats{MarketCapChange24h: raw.Data.MarketCapChange24h}
	if v, ok := raw.Data.TotalMarketCap["usd"]; ok {
		stats.TotalMarketCapUSD = &v
	}
	if v, ok := raw.Data.TotalVolume["usd"]; ok {
		stats.TotalVolume24hUSD = &v
	}
	if v, ok := raw.Data.MarketCapPercentage["btc"]; ok {
		stats.BTCDominance = &v
	}
	if v, ok := raw.Data.MarketCapPercentage["eth"]; ok {
		stats.ETHDominance = &v
	}
	return stats, nil
}

// TopMovers returns the biggest 24h gainers and losers among the top 100
// coins by market cap.
func (c *CoinGeckoClient) TopMovers(ctx context.Context, limit int, prio ratelimit.Priority) (gainers, losers []Mover, err error) {
	params := url.Values{
		"vs_currency": {"usd"},
		"order":       {"market_cap_desc"},
		"per_page":    {"100"},
		"page":        {"1"},
		"sparkline":   {"false"},
	}

	var rows []geckoMarketRow
	if err := c.doGet(ctx, "/coins/markets", params, prio, &rows); err != nil {
		return nil, nil, fmt.Errorf("coingecko movers: %w", err)
	}

	movers := make([]Mover, 0, len(rows))
	for _, r := range rows {
		if r.Change24h == nil {
			continue
		}
		movers = append(movers, Mover{
			Symbol:    strings.ToUpper(r.Symbol),
			Name:      r.Name,
			Price:     r.CurrentPrice,
			Change24h: *r.Change24h,
		})
	}

	sort.Slice(movers, func(i, j int) bool { return movers[i].Change24h > movers[j].Change24h })
	if limit > len(movers) {
		limit = len(movers)
	}
	gainers = append(gainers, movers[:limit]...)
	for i := 0; i < limit; i++ {
		losers = append(losers, movers[len(movers)-1-i])
	}
	return gainers, losers, nil
}

// FearGreedIndex fetches the current fear & greed reading. The feed lives on
// alternative.me and does not count against the CoinGecko budget.
func (c *CoinGeckoClient) FearGreedIndex(ctx context.Context) (*FearGreed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fearGreedURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fear greed fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fear greed fetch: status %d", resp.StatusCode)
	}

	var raw struct {
		Data []struct {
			Value               string `json:"value"`
			ValueClassification string `json:"value_classification"`
			Timestamp           string `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("fear greed decode: %w", err)
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("fear greed fetch: empty payload")
	}

	value, err := strconv.Atoi(raw.Data[0].Value)
	if err != nil {
		return nil, fmt.Errorf("fear greed decode: %w", err)
	}
	ts, _ := strconv.ParseInt(raw.Data[0].Timestamp, 10, 64)

	return &FearGreed{
		Value:          value,
		Classification: raw.Data[0].ValueClassification,
		Timestamp:      time.Unix(ts, 0).UTC(),
	}, nil
}

func (c *CoinGeckoClient) doGet(ctx context.Context, path string, params url.Values, prio ratelimit.Priority, out any) error {
	if err := c.limits.Acquire(ctx, ProviderCoinGecko, prio, 1); err != nil {
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
			req.Header.Set("x-cg-pro-api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(out)
		case resp.StatusCode == http.StatusTooManyRequests:
			io.Copy(io.Discard, resp.Body)
			c.logger.Warn().Str("path", path).Msg("provider rate limit response")
			return backoff.Permanent(fmt.Errorf("provider throttled: %w", ratelimit.ErrRateLimitExceeded))
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
