package engine

import (
	"context"
	"time"

	"ai-crypto-dashboard/internal/ratelimit"
)

// Start launches the background loops: macro refresh, the local cache
// janitor, the market overview refresher and the low-priority signal
// warmer. Stop cancels them all.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.macro.Run(ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.cache.Janitor(ctx, time.Minute)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.overviewLoop(ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.warmLoop(ctx)
	}()

	e.logger.Info().
		Dur("update_interval", e.cfg.SignalConfig.UpdateInterval()).
		Dur("overview_refresh", e.cfg.SignalConfig.OverviewRefresh()).
		Msg("background loops started")
}

// Stop cancels the background loops and waits for in-flight work.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info().Msg("engine stopped")
}

// overviewLoop keeps the market overview cache warm.
func (e *Engine) overviewLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SignalConfig.OverviewRefresh())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.MarketOverview(ctx); err != nil {
				e.logger.Warn().Err(err).Msg("overview refresh failed")
				e.bus.PublishError("overview", "market overview refresh failed", err)
			}
		}
	}
}

// warmLoop pre-computes signals for all tracked coins at low priority so
// user requests mostly hit cache. It never competes with request traffic
// for rate budget.
func (e *Engine) warmLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SignalConfig.UpdateInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			warmed := e.collectSignals(ctx, ratelimit.PriorityLow)
			e.logger.Debug().Int("warmed", len(warmed)).Msg("signal warm cycle complete")
		}
	}
}
