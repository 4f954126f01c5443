// Package signal blends the technical, macro and AI layers into one
// composite trading signal. Everything in here is a pure function of its
// inputs; all I/O happens upstream.
package signal

import (
	"fmt"
	"math"
	"time"

	"ai-crypto-dashboard/internal/ai/llm"
	"ai-crypto-dashboard/internal/indicators"
	"ai-crypto-dashboard/internal/macro"
	"ai-crypto-dashboard/internal/market"
)

// Band labels, strongest buy to strongest sell.
const (
	BandStrongBuy  = "STRONG_BUY"
	BandBuy        = "BUY"
	BandWeakBuy    = "WEAK_BUY"
	BandHold       = "HOLD"
	BandWeakSell   = "WEAK_SELL"
	BandSell       = "SELL"
	BandStrongSell = "STRONG_SELL"
)

// Layer weights when all three inputs are present. With one optional layer
// missing, weight shifts to 0.6 technical / 0.4 remaining; with both
// missing, technical carries everything.
const (
	weightTechnical = 0.4
	weightMacro     = 0.3
	weightSentiment = 0.3

	degradedWeightTechnical = 0.6
	degradedWeightOther     = 0.4
)

// Degraded input markers.
const (
	InputSentiment = "sentiment"
	InputMacro     = "macro"
)

// CompositeSignal is the aggregated recommendation for one coin.
type CompositeSignal struct {
	Coin            string    `json:"coin"`
	Signal          string    `json:"signal"`
	OverallScore    float64   `json:"overall_score"`
	Confidence      int       `json:"confidence"`
	TechnicalScore  int       `json:"technical_score"`
	MacroScore      *int      `json:"macro_score,omitempty"`
	SentimentScore  *int      `json:"sentiment_score,omitempty"`
	Action          string    `json:"action"`
	EntryZone       string    `json:"entry_zone"`
	Targets         []float64 `json:"targets"`
	StopLoss        *float64  `json:"stop_loss,omitempty"`
	PositionSizePct float64   `json:"position_size_pct"`
	Timeframe       string    `json:"timeframe"`
	Degraded        bool      `json:"degraded"`
	DegradedInputs  []string  `json:"degraded_inputs,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Summary is the condensed per-coin row for list endpoints.
type Summary struct {
	Coin         string    `json:"coin"`
	Signal       string    `json:"signal"`
	OverallScore float64   `json:"overall_score"`
	Confidence   int       `json:"confidence"`
	Price        float64   `json:"price"`
	Change24h    float64   `json:"change_24h"`
	Degraded     bool      `json:"degraded"`
	Timestamp    time.Time `json:"timestamp"`
}

// Summarize condenses a composite signal and its snapshot into a list row.
func Summarize(sig CompositeSignal, snap *market.PriceSnapshot) Summary {
	return Summary{
		Coin:         sig.Coin,
		Signal:       sig.Signal,
		OverallScore: sig.OverallScore,
		Confidence:   sig.Confidence,
		Price:        snap.Price,
		Change24h:    snap.Change24h,
		Degraded:     sig.Degraded,
		Timestamp:    sig.Timestamp,
	}
}

// Build aggregates the layers into a composite signal. The assessment and
// macro context are optional; absence degrades the signal instead of
// failing it.
func Build(symbol string, snap *market.PriceSnapshot, set indicators.IndicatorSet, assessment *llm.Assessment, macroCtx *macro.Context) CompositeSignal {
	technicalScore := indicators.Score(set)

	var macroScore, sentimentScore *int
	var degradedInputs []string

	// A context that was never fetched carries no information; scoring it
	// would fabricate a neutral macro layer.
	if macroCtx != nil && macroCtx.FetchedAt.IsZero() {
		macroCtx = nil
	}

	if macroCtx != nil {
		s := macro.Score(*macroCtx)
		macroScore = &s
	} else {
		degradedInputs = append(degradedInputs, InputMacro)
	}

	if assessment != nil {
		s := llm.RatingScore(assessment.Rating, assessment.Confidence)
		sentimentScore = &s
	} else {
		degradedInputs = append(degradedInputs, InputSentiment)
	}

	overall := overallScore(technicalScore, macroScore, sentimentScore)
	band := BandForScore(overall)
	confidence := blendConfidence(technicalScore, macroScore, sentimentScore, assessment)
	action, entryZone, targets, stopLoss := tradeLevels(band, snap, set, assessment)

	timeframe := "7-14 days"
	if assessment != nil {
		timeframe = assessment.Timeframe
	} else {
		entryZone = decorateDegraded(entryZone)
	}

	return CompositeSignal{
		Coin:            symbol,
		Signal:          band,
		OverallScore:    overall,
		Confidence:      confidence,
		TechnicalScore:  technicalScore,
		MacroScore:      macroScore,
		SentimentScore:  sentimentScore,
		Action:          action,
		EntryZone:       entryZone,
		Targets:         targets,
		StopLoss:        stopLoss,
		PositionSizePct: positionSize(band, confidence, snap),
		Timeframe:       timeframe,
		Degraded:        len(degradedInputs) > 0,
		DegradedInputs:  degradedInputs,
		Timestamp:       time.Now().UTC(),
	}
}

// overallScore blends the layer scores, shifting weight onto the layers
// actually present.
func overallScore(technical int, macroScore, sentiment *int) float64 {
	switch {
	case macroScore != nil && sentiment != nil:
		return float64(technical)*weightTechnical +
			float64(*macroScore)*weightMacro +
			float64(*sentiment)*weightSentiment
	case macroScore != nil:
		return float64(technical)*degradedWeightTechnical + float64(*macroScore)*degradedWeightOther
	case sentiment != nil:
		return float64(technical)*degradedWeightTechnical + float64(*sentiment)*degradedWeightOther
	default:
		return float64(technical)
	}
}

// BandForScore maps a 0-100 score onto the seven bands. Lower bounds are
// inclusive: exactly 80 is STRONG_BUY, anything below it down to 65 is BUY.
func BandForScore(score float64) string {
	switch {
	case score >= 80:
		return BandStrongBuy
	case score >= 65:
		return BandBuy
	case score >= 55:
		return BandWeakBuy
	case score >= 45:
		return BandHold
	case score >= 35:
		return BandWeakSell
	case score >= 20:
		return BandSell
	default:
		return BandStrongSell
	}
}

// blendConfidence starts from the model's confidence (50 when absent) and
// adjusts it by how much the available layer scores agree.
func blendConfidence(technical int, macroScore, sentiment *int, assessment *llm.Assessment) int {
	confidence := 50
	if assessment != nil {
		confidence = assessment.Confidence
	}

	scores := []float64{float64(technical)}
	if macroScore != nil {
		scores = append(scores, float64(*macroScore))
	}
	if sentiment != nil {
		scores = append(scores, float64(*sentiment))
	}

	if len(scores) >= 2 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		mean := sum / float64(len(scores))

		var variance float64
		for _, s := range scores {
			variance += (s - mean) * (s - mean)
		}
		variance /= float64(len(scores))

		if variance < 100 {
			confidence += 10
		} else if variance > 400 {
			confidence -= 15
		}
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return confidence
}

// tradeLevels derives the action text, entry zone, targets and stop from
// the band, preferring the model's levels when it committed to them.
func tradeLevels(band string, snap *market.PriceSnapshot, set indicators.IndicatorSet, assessment *llm.Assessment) (action, entryZone string, targets []float64, stopLoss *float64) {
	price := snap.Price

	if assessment != nil && assessment.EntryZoneLow != nil && assessment.EntryZoneHigh != nil {
		entryZone = fmt.Sprintf("$%s-$%s", formatPrice(*assessment.EntryZoneLow), formatPrice(*assessment.EntryZoneHigh))
		conservative := price * 1.1
		if assessment.TargetConservative != nil {
			conservative = *assessment.TargetConservative
		}
		aggressive := price * 1.2
		if assessment.TargetAggressive != nil {
			aggressive = *assessment.TargetAggressive
		}
		targets = []float64{conservative, aggressive}

		if assessment.StopLoss != nil {
			stopLoss = assessment.StopLoss
		} else {
			s := price * 0.9
			stopLoss = &s
		}
	} else {
		switch band {
		case BandStrongBuy, BandBuy:
			entryZone = fmt.Sprintf("$%s-$%s", formatPrice(price*0.98), formatPrice(price*1.02))
			targets = []float64{price * 1.1, price * 1.2, price * 1.3}
			if set.Bollinger != nil {
				s := set.Bollinger.Lower
				stopLoss = &s
			} else {
				s := price * 0.92
				stopLoss = &s
			}
		case BandWeakSell, BandSell, BandStrongSell:
			entryZone = fmt.Sprintf("Current price ($%s)", formatPrice(price))
			targets = []float64{}
		default:
			entryZone = "Wait for better setup"
			targets = []float64{}
		}
	}

	switch band {
	case BandStrongBuy:
		action = "Enter Long Position (High Conviction)"
	case BandBuy:
		action = "Enter Long Position"
	case BandWeakBuy:
		action = "Scale In (Small Position)"
	case BandHold:
		action = "Wait / Hold Current Positions"
	case BandWeakSell:
		action = "Consider Taking Profits"
	case BandSell:
		action = "Exit Long Positions"
	case BandStrongSell:
		action = "Exit All Positions (Urgent)"
	}
	return action, entryZone, targets, stopLoss
}

// positionSize recommends a portfolio percentage, scaled by confidence and
// haircut for volatile 24h moves.
func positionSize(band string, confidence int, snap *market.PriceSnapshot) float64 {
	var base float64
	switch band {
	case BandStrongBuy:
		base = 10.0
	case BandBuy:
		base = 7.0
	case BandWeakBuy:
		base = 3.0
	default:
		return 0
	}

	size := base * float64(confidence) / 100

	volatility := math.Abs(snap.Change24h)
	if volatility > 10 {
		size *= 0.7
	} else if volatility > 5 {
		size *= 0.85
	}

	return math.Round(size*10) / 10
}

func decorateDegraded(entryZone string) string {
	return entryZone + " (AI analysis unavailable)"
}

func formatPrice(p float64) string {
	if p >= 1000 {
		return fmt.Sprintf("%.0f", p)
	}
	if p >= 1 {
		return fmt.Sprintf("%.2f", p)
	}
	return fmt.Sprintf("%.4f", p)
}
