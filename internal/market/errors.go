package market

import "errors"

var (
	// ErrDataUnavailable means both providers failed; no stale or synthetic
	// data is substituted.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrUnknownSymbol means the symbol is not in the tracked set.
	ErrUnknownSymbol = errors.New("unknown symbol")
)
