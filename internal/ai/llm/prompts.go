package llm

import (
	"fmt"
	"strings"

	"ai-crypto-dashboard/internal/indicators"
	"ai-crypto-dashboard/internal/market"
)

// System prompts for the analysis types
const (
	// SystemPromptCoinAssessment asks for a structured trade assessment of
	// a single coin.
	SystemPromptCoinAssessment = `You are an expert cryptocurrency trading analyst. Analyze the provided market data and technical indicators and give a clear trading assessment.

Your response must be in valid JSON format with the following structure:
{
  "rating": "STRONG_BUY" | "BUY" | "WEAK_BUY" | "HOLD" | "WEAK_SELL" | "SELL" | "STRONG_SELL",
  "confidence": 0-100,
  "timeframe": "SCALP" | "SWING" | "POSITION",
  "entry_zone_low": number or null,
  "entry_zone_high": number or null,
  "target_conservative": number or null,
  "target_aggressive": number or null,
  "stop_loss": number or null,
  "risk_reward": number or null,
  "position_size_pct": suggested portfolio percentage 0-100 or null,
  "reasoning": "brief explanation",
  "key_factors": ["up to 5 strings"],
  "risks": ["up to 5 strings"]
}

Be conservative with confidence scores. Only report high confidence (>70) when multiple indicators align.
Price levels must be realistic relative to the current price.
Respond with the JSON object only, no markdown formatting.`

	// SystemPromptMarketSentiment asks for a short overall market read used
	// in overview and briefing responses.
	SystemPromptMarketSentiment = `You are an expert cryptocurrency market analyst. Summarize the overall market conditions from the provided data.

Your response must be in valid JSON format:
{
  "sentiment": "RISK_ON" | "NEUTRAL" | "RISK_OFF",
  "summary": "2-3 sentence market summary",
  "watch_items": ["up to 3 things to watch today"]
}

Respond with the JSON object only, no markdown formatting.`
)

// buildAssessmentPrompt renders the per-coin user prompt from the price
// snapshot and computed indicators.
func buildAssessmentPrompt(symbol string, snap *market.PriceSnapshot, set indicators.IndicatorSet) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Coin: %s\n", symbol)
	fmt.Fprintf(&b, "Current price: $%.4f\n", snap.Price)
	fmt.Fprintf(&b, "24h change: %.2f%%\n", snap.Change24h)
	if snap.Change7d != nil {
		fmt.Fprintf(&b, "7d change: %.2f%%\n", *snap.Change7d)
	}
	fmt.Fprintf(&b, "24h volume: $%.0f\n", snap.Volume24h)
	fmt.Fprintf(&b, "24h range: $%.4f - $%.4f\n", snap.Low24h, snap.High24h)

	b.WriteString("\nTechnical indicators:\n")
	if set.RSI != nil {
		fmt.Fprintf(&b, "RSI(14): %.1f (%s)\n", *set.RSI, set.RSISignal)
	}
	if set.MACD != nil {
		fmt.Fprintf(&b, "MACD: %.4f signal %.4f histogram %.4f (%s)\n",
			set.MACD.MACD, set.MACD.Signal, set.MACD.Histogram, set.MACDSignal)
	}
	if set.Bollinger != nil {
		fmt.Fprintf(&b, "Bollinger(20,2): upper %.4f middle %.4f lower %.4f (%s)\n",
			set.Bollinger.Upper, set.Bollinger.Middle, set.Bollinger.Lower, set.BBSignal)
	}
	if set.EMA20 != nil && set.EMA50 != nil {
		fmt.Fprintf(&b, "EMA20: %.4f EMA50: %.4f", *set.EMA20, *set.EMA50)
		if set.EMA200 != nil {
			fmt.Fprintf(&b, " EMA200: %.4f", *set.EMA200)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Trend: %s\n", set.Trend)
	if set.VolumeRatio != nil {
		fmt.Fprintf(&b, "Volume vs 20-period average: %.2fx\n", *set.VolumeRatio)
	}

	b.WriteString("\nProvide your trading assessment.")
	return b.String()
}

// buildSentimentPrompt renders the market-wide user prompt.
func buildSentimentPrompt(stats *market.GlobalStats, fearGreed *market.FearGreed, gainers, losers []market.Mover) string {
	var b strings.Builder

	b.WriteString("Market data:\n")
	if stats != nil {
		if stats.TotalMarketCapUSD != nil {
			fmt.Fprintf(&b, "Total market cap: $%.0f\n", *stats.TotalMarketCapUSD)
		}
		if stats.MarketCapChange24h != nil {
			fmt.Fprintf(&b, "Market cap 24h change: %.2f%%\n", *stats.MarketCapChange24h)
		}
		if stats.BTCDominance != nil {
			fmt.Fprintf(&b, "BTC dominance: %.1f%%\n", *stats.BTCDominance)
		}
	}
	if fearGreed != nil {
		fmt.Fprintf(&b, "Fear & Greed index: %d (%s)\n", fearGreed.Value, fearGreed.Classification)
	}

	if len(gainers) > 0 {
		b.WriteString("\nTop gainers:\n")
		for _, m := range gainers {
			fmt.Fprintf(&b, "%s %+.2f%%\n", m.Symbol, m.Change24h)
		}
	}
	if len(losers) > 0 {
		b.WriteString("\nTop losers:\n")
		for _, m := range losers {
			fmt.Fprintf(&b, "%s %+.2f%%\n", m.Symbol, m.Change24h)
		}
	}

	b.WriteString("\nSummarize current market conditions.")
	return b.String()
}
