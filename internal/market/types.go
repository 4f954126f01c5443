// Package market fetches and normalizes price, depth and history data from
// the upstream providers behind one internal shape.
package market

import "time"

// PriceSnapshot is the normalized 24h ticker view of a coin. Immutable once
// fetched; the next poll supersedes it.
type PriceSnapshot struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	Change7d  *float64  `json:"change_7d,omitempty"`
	Volume24h float64   `json:"volume_24h"`
	High24h   float64   `json:"high_24h"`
	Low24h    float64   `json:"low_24h"`
	Timestamp time.Time `json:"timestamp"`
}

// Kline is one OHLCV candle.
type Kline struct {
	OpenTime time.Time `json:"timestamp"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// PriceLevel is one side entry of an order book.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// OrderBook holds normalized depth levels.
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// GlobalStats is the market-wide aggregate view.
type GlobalStats struct {
	TotalMarketCapUSD  *float64 `json:"total_market_cap_usd,omitempty"`
	TotalVolume24hUSD  *float64 `json:"total_volume_24h_usd,omitempty"`
	BTCDominance       *float64 `json:"btc_dominance,omitempty"`
	ETHDominance       *float64 `json:"eth_dominance,omitempty"`
	MarketCapChange24h *float64 `json:"market_cap_change_24h,omitempty"`
}

// Mover is a top gainer or loser entry.
type Mover struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
}

// FearGreed is the fear & greed index reading.
type FearGreed struct {
	Value          int       `json:"value"`
	Classification string    `json:"classification"`
	Timestamp      time.Time `json:"timestamp"`
}
