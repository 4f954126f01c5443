package macro

import (
	"context"
	"fmt"
	"time"

	"ai-crypto-dashboard/config"
	"ai-crypto-dashboard/internal/market"
)

// fearGreedSource is the slice of the market client this package needs.
type fearGreedSource interface {
	FearGreedIndex(ctx context.Context) (*market.FearGreed, error)
}

// DefaultFetcher sources the fear & greed index live and carries DXY/VIX
// readings from configuration. Dedicated DXY/VIX feeds need paid market data
// subscriptions, so those values are operator-supplied seeds.
type DefaultFetcher struct {
	source fearGreedSource
	cfg    config.MacroConfig
}

func NewDefaultFetcher(source fearGreedSource, cfg config.MacroConfig) *DefaultFetcher {
	return &DefaultFetcher{source: source, cfg: cfg}
}

func (f *DefaultFetcher) Fetch(ctx context.Context) (Context, error) {
	out := Context{
		DXY:          f.cfg.DXY,
		VIX:          f.cfg.VIX,
		PolicyStance: f.cfg.PolicyStance,
		FetchedAt:    time.Now(),
	}

	fg, err := f.source.FearGreedIndex(ctx)
	if err != nil {
		return Context{}, fmt.Errorf("fear greed fetch: %w", err)
	}
	out.FearGreed = &fg.Value
	return out, nil
}
