// Package indicators computes technical analysis indicators as pure
// functions of an ordered candle series. Indicators whose lookback exceeds
// the available history are omitted from the result, never fabricated.
package indicators

import (
	"math"

	"ai-crypto-dashboard/internal/market"
)

// Standard lookback periods.
const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerPeriod = 20
	BollingerStdDev = 2.0
	VolumePeriod    = 20
)

// Signal classification labels.
const (
	SignalOversold   = "OVERSOLD"
	SignalOverbought = "OVERBOUGHT"
	SignalBullish    = "BULLISH"
	SignalBearish    = "BEARISH"
	SignalNeutral    = "NEUTRAL"
	SignalSqueeze    = "SQUEEZE"
)

// Trend classifications derived from EMA ordering.
const (
	TrendStrongUp   = "STRONG_UPTREND"
	TrendUp         = "UPTREND"
	TrendSideways   = "SIDEWAYS"
	TrendDown       = "DOWNTREND"
	TrendStrongDown = "STRONG_DOWNTREND"
	TrendUnknown    = "UNKNOWN"
)

// MACDResult holds the MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Bands holds the Bollinger band triple.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSet is the derived view of one price history window. Nil pointer
// fields mean the history was too short for that indicator.
type IndicatorSet struct {
	CurrentPrice float64     `json:"current_price"`
	RSI          *float64    `json:"rsi,omitempty"`
	RSISignal    string      `json:"rsi_signal"`
	MACD         *MACDResult `json:"macd,omitempty"`
	MACDSignal   string      `json:"macd_signal"`
	Bollinger    *Bands      `json:"bollinger,omitempty"`
	BBSignal     string      `json:"bb_signal"`
	EMA20        *float64    `json:"ema_20,omitempty"`
	EMA50        *float64    `json:"ema_50,omitempty"`
	EMA200       *float64    `json:"ema_200,omitempty"`
	Trend        string      `json:"trend"`
	VolumeRatio  *float64    `json:"volume_ratio,omitempty"`
}

// Compute derives the full indicator set from a candle series.
func Compute(klines []market.Kline) IndicatorSet {
	closes := make([]float64, len(klines))
	volumes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		volumes[i] = k.Volume
	}

	set := IndicatorSet{
		RSISignal:  SignalNeutral,
		MACDSignal: SignalNeutral,
		BBSignal:   SignalNeutral,
		Trend:      TrendUnknown,
	}
	if len(closes) == 0 {
		return set
	}
	set.CurrentPrice = closes[len(closes)-1]

	if rsi, ok := RSI(closes, RSIPeriod); ok {
		set.RSI = &rsi
		set.RSISignal = classifyRSI(rsi)
	}

	if macd, ok := MACD(closes, MACDFast, MACDSlow, MACDSignal); ok {
		set.MACD = &macd
		set.MACDSignal = classifyMACD(macd)
	}

	if bands, ok := Bollinger(closes, BollingerPeriod, BollingerStdDev); ok {
		set.Bollinger = &bands
		set.BBSignal = classifyBollinger(bands, set.CurrentPrice)
	}

	if ema, ok := EMA(closes, 20); ok {
		set.EMA20 = &ema
	}
	if ema, ok := EMA(closes, 50); ok {
		set.EMA50 = &ema
	}
	if ema, ok := EMA(closes, 200); ok {
		set.EMA200 = &ema
	}
	set.Trend = classifyTrend(set.CurrentPrice, set.EMA20, set.EMA50, set.EMA200)

	if ratio, ok := VolumeRatio(volumes, VolumePeriod); ok {
		set.VolumeRatio = &ratio
	}

	return set
}

// RSI computes the relative strength index with Wilder smoothing. Requires
// period+1 closes.
func RSI(closes []float64, period int) (float64, bool) {
	if len(closes) < period+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// EMA computes the exponential moving average seeded at the first close.
// Requires at least period closes.
func EMA(closes []float64, period int) (float64, bool) {
	if len(closes) < period {
		return 0, false
	}
	multiplier := 2.0 / float64(period+1)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = (c-ema)*multiplier + ema
	}
	return ema, true
}

// emaSeries returns the full EMA series, one value per close.
func emaSeries(closes []float64, period int) []float64 {
	multiplier := 2.0 / float64(period+1)
	out := make([]float64, len(closes))
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = (closes[i]-out[i-1])*multiplier + out[i-1]
	}
	return out
}

// MACD computes the MACD line (fast EMA - slow EMA), its signal line and the
// histogram. Requires slow+signal closes.
func MACD(closes []float64, fast, slow, signal int) (MACDResult, bool) {
	if len(closes) < slow+signal {
		return MACDResult{}, false
	}

	fastEMA := emaSeries(closes, fast)
	slowEMA := emaSeries(closes, slow)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := emaSeries(macdLine, signal)

	last := len(closes) - 1
	return MACDResult{
		MACD:      macdLine[last],
		Signal:    signalLine[last],
		Histogram: macdLine[last] - signalLine[last],
	}, true
}

// Bollinger computes the period-SMA band triple at stdDev deviations.
func Bollinger(closes []float64, period int, stdDev float64) (Bands, bool) {
	if len(closes) < period {
		return Bands{}, false
	}

	window := closes[len(closes)-period:]
	var sum float64
	for _, c := range window {
		sum += c
	}
	mean := sum / float64(period)

	var variance float64
	for _, c := range window {
		variance += (c - mean) * (c - mean)
	}
	sd := math.Sqrt(variance / float64(period))

	return Bands{
		Upper:  mean + stdDev*sd,
		Middle: mean,
		Lower:  mean - stdDev*sd,
	}, true
}

// VolumeRatio compares the latest volume against the trailing average.
func VolumeRatio(volumes []float64, period int) (float64, bool) {
	if len(volumes) < period+1 {
		return 0, false
	}

	window := volumes[len(volumes)-period-1 : len(volumes)-1]
	var sum float64
	for _, v := range window {
		sum += v
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 0, false
	}
	return volumes[len(volumes)-1] / avg, true
}

func classifyRSI(rsi float64) string {
	switch {
	case rsi < 30:
		return SignalOversold
	case rsi > 70:
		return SignalOverbought
	case rsi < 40:
		return SignalBearish
	case rsi > 60:
		return SignalBullish
	default:
		return SignalNeutral
	}
}

func classifyMACD(m MACDResult) string {
	if m.Histogram > 0 && m.MACD > m.Signal {
		return SignalBullish
	}
	if m.Histogram < 0 && m.MACD < m.Signal {
		return SignalBearish
	}
	return SignalNeutral
}

func classifyBollinger(b Bands, price float64) string {
	if price < b.Lower {
		return SignalOversold
	}
	if price > b.Upper {
		return SignalOverbought
	}
	if b.Middle != 0 {
		width := (b.Upper - b.Lower) / b.Middle * 100
		if width < 10 {
			return SignalSqueeze
		}
	}
	return SignalNeutral
}

// classifyTrend derives the trend from price position against the EMA stack.
func classifyTrend(price float64, ema20, ema50, ema200 *float64) string {
	if ema20 == nil || ema50 == nil || ema200 == nil {
		return TrendUnknown
	}
	switch {
	case price > *ema200:
		if *ema20 > *ema50 && *ema50 > *ema200 {
			return TrendStrongUp
		}
		return TrendUp
	case price < *ema200:
		if *ema20 < *ema50 && *ema50 < *ema200 {
			return TrendStrongDown
		}
		return TrendDown
	default:
		return TrendSideways
	}
}

// Score maps an indicator set to a 0-100 technical score, 50 being neutral.
func Score(set IndicatorSet) int {
	score := 50.0

	if set.RSI != nil {
		switch {
		case *set.RSI < 30:
			score += 20
		case *set.RSI < 40:
			score += 10
		case *set.RSI > 70:
			score -= 20
		case *set.RSI > 60:
			score -= 10
		}
	}

	switch set.MACDSignal {
	case SignalBullish:
		score += 20
	case SignalBearish:
		score -= 20
	}

	switch set.Trend {
	case TrendStrongUp:
		score += 30
	case TrendUp:
		score += 15
	case TrendStrongDown:
		score -= 30
	case TrendDown:
		score -= 15
	}

	switch set.BBSignal {
	case SignalOversold:
		score += 15
	case SignalOverbought:
		score -= 15
	case SignalSqueeze:
		score += 5
	}

	if set.VolumeRatio != nil {
		ratio := *set.VolumeRatio
		switch {
		case ratio > 1.5:
			// High volume confirms whichever way the score already leans.
			if score > 50 {
				score += 15
			} else {
				score -= 15
			}
		case ratio < 0.5:
			// Thin volume weakens the lean.
			if score > 50 {
				score -= 5
			} else {
				score += 5
			}
		}
	}

	return int(math.Max(0, math.Min(100, score)))
}
