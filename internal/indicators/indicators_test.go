package indicators

import (
	"math"
	"testing"
	"time"

	"ai-crypto-dashboard/internal/market"
)

func klinesFromCloses(closes []float64) []market.Kline {
	out := make([]market.Kline, len(closes))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = market.Kline{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c * 1.01,
			Low:      c * 0.99,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func TestComputeEmptyHistory(t *testing.T) {
	set := Compute(nil)
	if set.RSI != nil || set.MACD != nil || set.Bollinger != nil {
		t.Fatalf("expected no indicators for empty history, got %+v", set)
	}
	if set.Trend != TrendUnknown {
		t.Errorf("trend = %q, want %q", set.Trend, TrendUnknown)
	}
}

func TestComputeShortHistoryOmitsLongIndicators(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	set := Compute(klinesFromCloses(closes))

	if set.RSI == nil {
		t.Error("RSI should be present with 30 closes")
	}
	if set.MACD != nil {
		t.Error("MACD should be absent with fewer than 35 closes")
	}
	if set.EMA200 != nil {
		t.Error("EMA200 should be absent with fewer than 200 closes")
	}
	if set.Trend != TrendUnknown {
		t.Errorf("trend = %q, want %q without full EMA stack", set.Trend, TrendUnknown)
	}
}

func TestComputeFullHistory(t *testing.T) {
	closes := make([]float64, 250)
	for i := range closes {
		closes[i] = 100 + 0.2*float64(i) + 3*math.Sin(float64(i)/5)
	}
	set := Compute(klinesFromCloses(closes))

	if set.RSI == nil || set.MACD == nil || set.Bollinger == nil {
		t.Fatalf("expected all indicators with 250 closes, got %+v", set)
	}
	if set.EMA20 == nil || set.EMA50 == nil || set.EMA200 == nil {
		t.Fatal("expected full EMA stack with 250 closes")
	}
	if set.Trend == TrendUnknown {
		t.Error("trend should be classified with full EMA stack")
	}
	if set.CurrentPrice != closes[len(closes)-1] {
		t.Errorf("current price = %v, want %v", set.CurrentPrice, closes[len(closes)-1])
	}
}

func TestRSIBounds(t *testing.T) {
	up := make([]float64, 50)
	for i := range up {
		up[i] = float64(100 + i)
	}
	rsi, ok := RSI(up, RSIPeriod)
	if !ok {
		t.Fatal("RSI not computed")
	}
	if rsi != 100 {
		t.Errorf("RSI of monotonic gains = %v, want 100", rsi)
	}

	down := make([]float64, 50)
	for i := range down {
		down[i] = float64(200 - i)
	}
	rsi, ok = RSI(down, RSIPeriod)
	if !ok {
		t.Fatal("RSI not computed")
	}
	if rsi != 0 {
		t.Errorf("RSI of monotonic losses = %v, want 0", rsi)
	}
}

func TestRSIInsufficientHistory(t *testing.T) {
	if _, ok := RSI([]float64{1, 2, 3}, RSIPeriod); ok {
		t.Error("RSI should require period+1 closes")
	}
}

func TestBollingerOrdering(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 10, 9, 10, 11, 12, 13, 12, 11, 10, 11, 12, 13, 14, 13, 12, 11}
	bands, ok := Bollinger(closes, BollingerPeriod, BollingerStdDev)
	if !ok {
		t.Fatal("Bollinger not computed")
	}
	if !(bands.Lower < bands.Middle && bands.Middle < bands.Upper) {
		t.Errorf("band ordering violated: %+v", bands)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 42
	}
	ema, ok := EMA(closes, 20)
	if !ok {
		t.Fatal("EMA not computed")
	}
	if math.Abs(ema-42) > 1e-9 {
		t.Errorf("EMA of constant series = %v, want 42", ema)
	}
}

func TestVolumeRatio(t *testing.T) {
	volumes := make([]float64, 30)
	for i := range volumes {
		volumes[i] = 100
	}
	volumes[len(volumes)-1] = 200
	ratio, ok := VolumeRatio(volumes, VolumePeriod)
	if !ok {
		t.Fatal("volume ratio not computed")
	}
	if math.Abs(ratio-2) > 1e-9 {
		t.Errorf("volume ratio = %v, want 2", ratio)
	}
}

func TestScoreNeutralWithoutIndicators(t *testing.T) {
	set := IndicatorSet{
		RSISignal:  SignalNeutral,
		MACDSignal: SignalNeutral,
		BBSignal:   SignalNeutral,
		Trend:      TrendUnknown,
	}
	if got := Score(set); got != 50 {
		t.Errorf("score = %d, want 50", got)
	}
}

func TestScoreOversoldUptrend(t *testing.T) {
	rsi := 25.0
	set := IndicatorSet{
		RSI:        &rsi,
		RSISignal:  SignalOversold,
		MACDSignal: SignalBullish,
		BBSignal:   SignalOversold,
		Trend:      TrendStrongUp,
	}
	got := Score(set)
	if got != 100 {
		t.Errorf("score = %d, want clamp at 100", got)
	}
}

func TestScoreBearishStack(t *testing.T) {
	rsi := 75.0
	set := IndicatorSet{
		RSI:        &rsi,
		RSISignal:  SignalOverbought,
		MACDSignal: SignalBearish,
		BBSignal:   SignalOverbought,
		Trend:      TrendStrongDown,
	}
	got := Score(set)
	if got != 0 {
		t.Errorf("score = %d, want clamp at 0", got)
	}
}

func TestScoreBounds(t *testing.T) {
	rsis := []*float64{nil, ptr(10.0), ptr(35.0), ptr(50.0), ptr(65.0), ptr(90.0)}
	macds := []string{SignalBullish, SignalBearish, SignalNeutral}
	trends := []string{TrendStrongUp, TrendUp, TrendSideways, TrendDown, TrendStrongDown, TrendUnknown}
	bbs := []string{SignalOversold, SignalOverbought, SignalSqueeze, SignalNeutral}
	vols := []*float64{nil, ptr(0.3), ptr(1.0), ptr(2.0)}

	for _, rsi := range rsis {
		for _, macd := range macds {
			for _, trend := range trends {
				for _, bb := range bbs {
					for _, vol := range vols {
						set := IndicatorSet{RSI: rsi, MACDSignal: macd, Trend: trend, BBSignal: bb, VolumeRatio: vol}
						got := Score(set)
						if got < 0 || got > 100 {
							t.Fatalf("score %d out of range for %+v", got, set)
						}
					}
				}
			}
		}
	}
}

func ptr(f float64) *float64 { return &f }
