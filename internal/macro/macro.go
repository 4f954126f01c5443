// Package macro maintains a periodically refreshed snapshot of macro market
// conditions (dollar index, volatility index, fear & greed, policy stance)
// and scores it for signal aggregation.
package macro

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-crypto-dashboard/internal/logging"
)

// Policy stance labels.
const (
	PolicyHawkish = "HAWKISH"
	PolicyNeutral = "NEUTRAL"
	PolicyDovish  = "DOVISH"
)

// Context is one snapshot of macro conditions. Nil fields could not be
// fetched and have never been observed.
type Context struct {
	DXY          *float64  `json:"dxy,omitempty"`
	VIX          *float64  `json:"vix,omitempty"`
	FearGreed    *int      `json:"fear_greed,omitempty"`
	PolicyStance string    `json:"policy_stance"`
	Stale        bool      `json:"stale"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Fetcher retrieves fresh macro readings from upstream sources.
type Fetcher interface {
	Fetch(ctx context.Context) (Context, error)
}

// Provider caches the latest macro context and refreshes it in the
// background. A failed refresh keeps the previous snapshot and marks it
// stale rather than dropping it.
type Provider struct {
	fetcher  Fetcher
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.RWMutex
	current  Context
	onUpdate func(Context)
}

func NewProvider(fetcher Fetcher, interval time.Duration) *Provider {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Provider{
		fetcher:  fetcher,
		interval: interval,
		logger:   logging.Component("macro"),
		current:  Context{PolicyStance: PolicyNeutral, Stale: true},
	}
}

// OnUpdate registers a callback invoked after every successful refresh.
// Set it before Run starts.
func (p *Provider) OnUpdate(fn func(Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// Current returns the latest snapshot. It never blocks on upstream calls.
func (p *Provider) Current() Context {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Refresh fetches once and updates the snapshot. On failure the previous
// values are retained with Stale set.
func (p *Provider) Refresh(ctx context.Context) error {
	fresh, err := p.fetcher.Fetch(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.current.Stale = true
		p.logger.Warn().Err(err).Msg("macro refresh failed, keeping stale snapshot")
		return err
	}
	fresh.Stale = false
	if fresh.FetchedAt.IsZero() {
		fresh.FetchedAt = time.Now()
	}
	if fresh.PolicyStance == "" {
		fresh.PolicyStance = PolicyNeutral
	}
	p.current = fresh
	if p.onUpdate != nil {
		go p.onUpdate(fresh)
	}
	return nil
}

// Run refreshes immediately and then on the configured interval until the
// context is cancelled.
func (p *Provider) Run(ctx context.Context) {
	if err := p.Refresh(ctx); err == nil {
		p.logger.Info().Msg("initial macro snapshot loaded")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Refresh(ctx)
		}
	}
}

// Score maps a macro context onto a 0-100 scale, 50 being neutral. Missing
// readings contribute nothing.
func Score(c Context) int {
	score := 50

	// Dollar strength correlates inversely with crypto.
	if c.DXY != nil {
		switch {
		case *c.DXY < 95:
			score += 20
		case *c.DXY < 100:
			score += 10
		case *c.DXY > 110:
			score -= 20
		case *c.DXY > 105:
			score -= 10
		}
	}

	if c.VIX != nil {
		switch {
		case *c.VIX < 15:
			score += 15
		case *c.VIX < 20:
			score += 5
		case *c.VIX > 30:
			score -= 15
		case *c.VIX > 25:
			score -= 5
		}
	}

	if c.FearGreed != nil {
		switch {
		case *c.FearGreed < 25:
			// Extreme fear is a contrarian buy zone.
			score += 15
		case *c.FearGreed < 40:
			score += 5
		case *c.FearGreed > 75:
			score -= 15
		case *c.FearGreed > 60:
			score -= 5
		}
	}

	switch c.PolicyStance {
	case PolicyDovish:
		score += 10
	case PolicyHawkish:
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
