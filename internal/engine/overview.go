package engine

import (
	"context"
	"time"

	"ai-crypto-dashboard/internal/cache"
	"ai-crypto-dashboard/internal/macro"
	"ai-crypto-dashboard/internal/market"
	"ai-crypto-dashboard/internal/ratelimit"
)

// Overview is the market-wide aggregate response.
type Overview struct {
	TotalMarketCapUSD  *float64       `json:"total_market_cap,omitempty"`
	BTCDominance       *float64       `json:"btc_dominance,omitempty"`
	MarketCapChange24h *float64       `json:"market_cap_change_24h,omitempty"`
	FearGreedIndex     *int           `json:"fear_greed_index,omitempty"`
	TopGainers         []market.Mover `json:"top_gainers"`
	TopLosers          []market.Mover `json:"top_losers"`
	Sentiment          string         `json:"sentiment"`
	Summary            string         `json:"summary,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Opportunity is one morning-brief entry.
type Opportunity struct {
	Coin       string `json:"coin"`
	Signal     string `json:"signal"`
	Confidence int    `json:"confidence"`
}

// MorningBrief is the daily summary response.
type MorningBrief struct {
	Date             string        `json:"date"`
	MarketStatus     string        `json:"market_status"`
	TopOpportunities []Opportunity `json:"top_opportunities"`
	MacroAlerts      []string      `json:"macro_alerts"`
	RiskLevel        string        `json:"risk_level"`
	FearGreed        *int          `json:"fear_greed,omitempty"`
}

// briefCoins are the majors summarized in the morning brief.
var briefCoins = []string{"BTC", "ETH", "SOL"}

// MarketOverview returns the market-wide aggregate, cached on its own TTL.
func (e *Engine) MarketOverview(ctx context.Context) (*Overview, error) {
	overview, err := cache.Fetch(ctx, e.cache, cache.OverviewKey, cache.TTLMarketStats, e.buildOverview)
	if err != nil {
		return nil, err
	}
	return &overview, nil
}

func (e *Engine) buildOverview(ctx context.Context) (Overview, error) {
	stats, err := e.secondary.Global(ctx, ratelimit.PriorityNormal)
	if err != nil {
		return Overview{}, err
	}

	out := Overview{
		TotalMarketCapUSD:  stats.TotalMarketCapUSD,
		BTCDominance:       stats.BTCDominance,
		MarketCapChange24h: stats.MarketCapChange24h,
		UpdatedAt:          time.Now().UTC(),
	}

	gainers, losers, err := e.secondary.TopMovers(ctx, 5, ratelimit.PriorityNormal)
	if err != nil {
		e.logger.Warn().Err(err).Msg("top movers unavailable")
	}
	out.TopGainers = gainers
	out.TopLosers = losers

	fearGreed, err := e.secondary.FearGreedIndex(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("fear greed unavailable")
	} else {
		out.FearGreedIndex = &fearGreed.Value
	}

	out.Sentiment = marketStatus(stats.MarketCapChange24h)
	if summary, err := e.analyzer.MarketSentiment(ctx, stats, fearGreed, gainers, losers); err == nil {
		out.Sentiment = summary.Sentiment
		out.Summary = summary.Summary
	}

	if out.FearGreedIndex != nil {
		e.bus.PublishMarketOverview(out.Sentiment, *out.FearGreedIndex)
	}
	return out, nil
}

// GetMorningBrief summarizes the majors plus macro alerts for the day.
func (e *Engine) GetMorningBrief(ctx context.Context) (*MorningBrief, error) {
	overview, err := e.MarketOverview(ctx)
	if err != nil {
		return nil, err
	}

	brief := &MorningBrief{
		Date:         time.Now().UTC().Format("2006-01-02"),
		MarketStatus: marketStatus(overview.MarketCapChange24h),
		FearGreed:    overview.FearGreedIndex,
		MacroAlerts:  macroAlerts(e.macro.Current()),
		RiskLevel:    riskLevel(overview.FearGreedIndex),
	}

	for _, coin := range briefCoins {
		analysis, err := e.AnalyzeCoin(ctx, coin)
		if err != nil {
			e.logger.Warn().Err(err).Str("symbol", coin).Msg("brief analysis failed, skipping")
			continue
		}
		brief.TopOpportunities = append(brief.TopOpportunities, Opportunity{
			Coin:       analysis.Coin,
			Signal:     analysis.Signal.Signal,
			Confidence: analysis.Signal.Confidence,
		})
	}

	return brief, nil
}

func marketStatus(capChange *float64) string {
	if capChange != nil && *capChange > 0 {
		return "BULLISH"
	}
	return "BEARISH"
}

// riskLevel maps the fear & greed extremes to a headline risk tag.
func riskLevel(fearGreed *int) string {
	if fearGreed == nil {
		return "MEDIUM"
	}
	switch {
	case *fearGreed < 20 || *fearGreed > 80:
		return "HIGH"
	case *fearGreed < 40 || *fearGreed > 60:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// macroAlerts flags notable macro conditions for the brief.
func macroAlerts(ctx macro.Context) []string {
	alerts := []string{}
	if ctx.Stale {
		alerts = append(alerts, "Macro data is stale; treat macro-weighted scores with caution")
	}
	if ctx.DXY != nil && *ctx.DXY > 105 {
		alerts = append(alerts, "Dollar index elevated; historically a crypto headwind")
	}
	if ctx.VIX != nil && *ctx.VIX > 25 {
		alerts = append(alerts, "Equity volatility elevated; expect spillover")
	}
	if ctx.PolicyStance == macro.PolicyHawkish {
		alerts = append(alerts, "Hawkish policy stance in effect")
	}
	return alerts
}
