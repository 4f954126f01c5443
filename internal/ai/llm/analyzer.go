package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-crypto-dashboard/internal/indicators"
	"ai-crypto-dashboard/internal/logging"
	"ai-crypto-dashboard/internal/market"
)

// ErrSentimentUnavailable reports that no AI assessment could be produced.
// Callers degrade to technical-and-macro-only scoring.
var ErrSentimentUnavailable = errors.New("ai sentiment unavailable")

// Rating labels, strongest buy to strongest sell.
const (
	RatingStrongBuy  = "STRONG_BUY"
	RatingBuy        = "BUY"
	RatingWeakBuy    = "WEAK_BUY"
	RatingHold       = "HOLD"
	RatingWeakSell   = "WEAK_SELL"
	RatingSell       = "SELL"
	RatingStrongSell = "STRONG_SELL"
)

// Timeframe labels.
const (
	TimeframeScalp    = "SCALP"
	TimeframeSwing    = "SWING"
	TimeframePosition = "POSITION"
)

const maxListItems = 5

// Assessment is the model's structured trade view of one coin. Nil price
// fields mean the model declined to commit to a level.
type Assessment struct {
	Rating             string    `json:"rating"`
	Confidence         int       `json:"confidence"`
	Timeframe          string    `json:"timeframe"`
	EntryZoneLow       *float64  `json:"entry_zone_low,omitempty"`
	EntryZoneHigh      *float64  `json:"entry_zone_high,omitempty"`
	TargetConservative *float64  `json:"target_conservative,omitempty"`
	TargetAggressive   *float64  `json:"target_aggressive,omitempty"`
	StopLoss           *float64  `json:"stop_loss,omitempty"`
	RiskReward         *float64  `json:"risk_reward,omitempty"`
	PositionSizePct    *float64  `json:"position_size_pct,omitempty"`
	Reasoning          string    `json:"reasoning"`
	KeyFactors         []string  `json:"key_factors"`
	Risks              []string  `json:"risks"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// SentimentSummary is the market-wide read used by overview and briefing.
type SentimentSummary struct {
	Sentiment  string   `json:"sentiment"`
	Summary    string   `json:"summary"`
	WatchItems []string `json:"watch_items"`
}

// stripMarkdownCodeBlock removes markdown code block formatting from LLM
// responses. Handles formats like: ```json\n{...}\n``` or ```\n{...}\n```
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)

	re := regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")
	if matches := re.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	return response
}

// Analyzer produces coin assessments and market sentiment through the LLM
// client.
type Analyzer struct {
	client  *Client
	enabled bool
	logger  zerolog.Logger
}

func NewAnalyzer(client *Client, enabled bool) *Analyzer {
	return &Analyzer{
		client:  client,
		enabled: enabled && client != nil && client.IsConfigured(),
		logger:  logging.Component("ai"),
	}
}

// IsEnabled reports whether assessments will be attempted at all.
func (a *Analyzer) IsEnabled() bool {
	return a.enabled
}

// Assess asks the model for a trade assessment of one coin. Every failure
// mode maps to ErrSentimentUnavailable so callers have a single branch.
func (a *Analyzer) Assess(ctx context.Context, symbol string, snap *market.PriceSnapshot, set indicators.IndicatorSet) (*Assessment, error) {
	if !a.enabled {
		return nil, fmt.Errorf("analyzer disabled: %w", ErrSentimentUnavailable)
	}

	prompt := buildAssessmentPrompt(symbol, snap, set)
	response, err := a.client.Complete(ctx, SystemPromptCoinAssessment, prompt)
	if err != nil {
		a.logger.Warn().Err(err).Str("symbol", symbol).Msg("llm completion failed")
		return nil, fmt.Errorf("completion failed: %w", ErrSentimentUnavailable)
	}

	var assessment Assessment
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &assessment); err != nil {
		a.logger.Warn().Err(err).Str("symbol", symbol).Msg("llm returned unparseable assessment")
		return nil, fmt.Errorf("parse failed: %w", ErrSentimentUnavailable)
	}

	normalizeAssessment(&assessment)
	return &assessment, nil
}

// MarketSentiment asks the model for the market-wide read.
func (a *Analyzer) MarketSentiment(ctx context.Context, stats *market.GlobalStats, fearGreed *market.FearGreed, gainers, losers []market.Mover) (*SentimentSummary, error) {
	if !a.enabled {
		return nil, fmt.Errorf("analyzer disabled: %w", ErrSentimentUnavailable)
	}

	prompt := buildSentimentPrompt(stats, fearGreed, gainers, losers)
	response, err := a.client.Complete(ctx, SystemPromptMarketSentiment, prompt)
	if err != nil {
		a.logger.Warn().Err(err).Msg("llm sentiment completion failed")
		return nil, fmt.Errorf("completion failed: %w", ErrSentimentUnavailable)
	}

	var summary SentimentSummary
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &summary); err != nil {
		return nil, fmt.Errorf("parse failed: %w", ErrSentimentUnavailable)
	}
	if summary.Sentiment == "" {
		summary.Sentiment = "NEUTRAL"
	}
	if len(summary.WatchItems) > 3 {
		summary.WatchItems = summary.WatchItems[:3]
	}
	return &summary, nil
}

// normalizeAssessment clamps model output drift to the documented contract.
func normalizeAssessment(a *Assessment) {
	if !validRating(a.Rating) {
		a.Rating = RatingHold
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 100 {
		a.Confidence = 100
	}
	switch a.Timeframe {
	case TimeframeScalp, TimeframeSwing, TimeframePosition:
	default:
		a.Timeframe = TimeframeSwing
	}
	if a.PositionSizePct != nil {
		if *a.PositionSizePct < 0 {
			*a.PositionSizePct = 0
		}
		if *a.PositionSizePct > 100 {
			*a.PositionSizePct = 100
		}
	}
	if len(a.KeyFactors) > maxListItems {
		a.KeyFactors = a.KeyFactors[:maxListItems]
	}
	if len(a.Risks) > maxListItems {
		a.Risks = a.Risks[:maxListItems]
	}
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = time.Now().UTC()
	}
}

func validRating(r string) bool {
	switch r {
	case RatingStrongBuy, RatingBuy, RatingWeakBuy, RatingHold, RatingWeakSell, RatingSell, RatingStrongSell:
		return true
	}
	return false
}

// RatingScore maps a rating to a 0-100 base score, then pulls it toward 50
// in proportion to how unsure the model says it is.
func RatingScore(rating string, confidence int) int {
	base := 50.0
	switch rating {
	case RatingStrongBuy:
		base = 95
	case RatingBuy:
		base = 75
	case RatingWeakBuy:
		base = 60
	case RatingHold:
		base = 50
	case RatingWeakSell:
		base = 40
	case RatingSell:
		base = 25
	case RatingStrongSell:
		base = 5
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	weight := float64(confidence) / 100
	return int(50 + (base-50)*weight)
}
