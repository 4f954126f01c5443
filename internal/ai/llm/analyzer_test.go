package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-crypto-dashboard/internal/indicators"
	"ai-crypto-dashboard/internal/market"
)

func TestStripMarkdownCodeBlock(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain json", `{"rating":"BUY"}`, `{"rating":"BUY"}`},
		{"json fence", "```json\n{\"rating\":\"BUY\"}\n```", `{"rating":"BUY"}`},
		{"bare fence", "```\n{\"rating\":\"BUY\"}\n```", `{"rating":"BUY"}`},
		{"surrounding whitespace", "  ```json\n{}\n```  ", "{}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripMarkdownCodeBlock(tc.input); got != tc.want {
				t.Errorf("stripMarkdownCodeBlock(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeAssessmentDefaults(t *testing.T) {
	a := &Assessment{Rating: "MOON", Confidence: 150, Timeframe: "tomorrow"}
	normalizeAssessment(a)

	if a.Rating != RatingHold {
		t.Errorf("rating = %q, want %q for unknown input", a.Rating, RatingHold)
	}
	if a.Confidence != 100 {
		t.Errorf("confidence = %d, want clamp at 100", a.Confidence)
	}
	if a.Timeframe != TimeframeSwing {
		t.Errorf("timeframe = %q, want default %q", a.Timeframe, TimeframeSwing)
	}
	if a.GeneratedAt.IsZero() {
		t.Error("GeneratedAt should be stamped")
	}
}

func TestNormalizeAssessmentTrimsLists(t *testing.T) {
	factors := []string{"a", "b", "c", "d", "e", "f", "g"}
	a := &Assessment{
		Rating:      RatingBuy,
		Confidence:  70,
		Timeframe:   TimeframeSwing,
		KeyFactors:  factors,
		Risks:       factors,
		GeneratedAt: time.Now(),
	}
	normalizeAssessment(a)

	if len(a.KeyFactors) != maxListItems {
		t.Errorf("key factors trimmed to %d, want %d", len(a.KeyFactors), maxListItems)
	}
	if len(a.Risks) != maxListItems {
		t.Errorf("risks trimmed to %d, want %d", len(a.Risks), maxListItems)
	}
	if a.Rating != RatingBuy || a.Confidence != 70 {
		t.Error("valid fields should pass through unchanged")
	}
}

func TestNormalizeAssessmentNegativeConfidence(t *testing.T) {
	a := &Assessment{Rating: RatingSell, Confidence: -10, Timeframe: TimeframeScalp}
	normalizeAssessment(a)
	if a.Confidence != 0 {
		t.Errorf("confidence = %d, want clamp at 0", a.Confidence)
	}
}

func TestNormalizeAssessmentClampsPositionSize(t *testing.T) {
	over := 150.0
	a := &Assessment{Rating: RatingBuy, Confidence: 70, Timeframe: TimeframeSwing, PositionSizePct: &over}
	normalizeAssessment(a)
	if a.PositionSizePct == nil || *a.PositionSizePct != 100 {
		t.Errorf("position size = %v, want clamp at 100", a.PositionSizePct)
	}

	under := -5.0
	a = &Assessment{Rating: RatingBuy, Confidence: 70, Timeframe: TimeframeSwing, PositionSizePct: &under}
	normalizeAssessment(a)
	if a.PositionSizePct == nil || *a.PositionSizePct != 0 {
		t.Errorf("position size = %v, want clamp at 0", a.PositionSizePct)
	}

	a = &Assessment{Rating: RatingBuy, Confidence: 70, Timeframe: TimeframeSwing}
	normalizeAssessment(a)
	if a.PositionSizePct != nil {
		t.Errorf("position size = %v, want nil when the model declined", *a.PositionSizePct)
	}
}

func TestRatingScore(t *testing.T) {
	cases := []struct {
		rating     string
		confidence int
		want       int
	}{
		{RatingStrongBuy, 100, 95},
		{RatingBuy, 100, 75},
		{RatingWeakBuy, 100, 60},
		{RatingHold, 100, 50},
		{RatingWeakSell, 100, 40},
		{RatingSell, 100, 25},
		{RatingStrongSell, 100, 5},
		{RatingStrongBuy, 0, 50},
		{RatingStrongBuy, 50, 72},
		{RatingStrongSell, 50, 27},
		{"garbage", 100, 50},
	}
	for _, tc := range cases {
		if got := RatingScore(tc.rating, tc.confidence); got != tc.want {
			t.Errorf("RatingScore(%s, %d) = %d, want %d", tc.rating, tc.confidence, got, tc.want)
		}
	}
}

func TestAnalyzerDisabledReturnsSentinel(t *testing.T) {
	a := NewAnalyzer(NewClient(&ClientConfig{Provider: ProviderClaude}), true)
	if a.IsEnabled() {
		t.Fatal("analyzer without API key should be disabled")
	}

	_, err := a.Assess(context.Background(), "BTC", &market.PriceSnapshot{Symbol: "BTC", Price: 60000}, indicators.IndicatorSet{})
	if !errors.Is(err, ErrSentimentUnavailable) {
		t.Errorf("Assess error = %v, want ErrSentimentUnavailable", err)
	}

	_, err = a.MarketSentiment(context.Background(), nil, nil, nil, nil)
	if !errors.Is(err, ErrSentimentUnavailable) {
		t.Errorf("MarketSentiment error = %v, want ErrSentimentUnavailable", err)
	}
}
