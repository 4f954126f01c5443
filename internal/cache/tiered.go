package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ai-crypto-dashboard/internal/logging"

	"github.com/rs/zerolog"
)

// Cache key builders, keyed by (data kind, coin).
func PriceKey(symbol string) string    { return "price:" + symbol }
func HistoryKey(symbol string) string  { return "history:" + symbol }
func SignalKey(symbol string) string   { return "signal:" + symbol }
func AnalysisKey(symbol string) string { return "ai:" + symbol }

// OverviewKey is the market-wide aggregate entry.
const OverviewKey = "market:overview"

type memoEntry struct {
	data    []byte
	expires time.Time
}

// Tiered layers the shared Redis store over an in-process map. Reads try
// Redis first and fall back to the local tier; writes go to both. A nil
// store runs the cache purely in-process.
type Tiered struct {
	store  *CacheService
	logger zerolog.Logger

	mu    sync.RWMutex
	local map[string]memoEntry

	group singleflight.Group
}

func NewTiered(store *CacheService) *Tiered {
	return &Tiered{
		store:  store,
		logger: logging.Component("cache"),
		local:  make(map[string]memoEntry),
	}
}

// Get returns the cached payload for key, or a miss once its TTL elapsed.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if t.store != nil {
		if val, hit, err := t.store.Get(ctx, key); err == nil && hit {
			return []byte(val), true
		}
	}

	t.mu.RLock()
	entry, ok := t.local[key]
	t.mu.RUnlock()
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.data, true
}

// Set writes the payload to both tiers. A shared-store failure degrades to
// local-only silently; the entry must never outlive its TTL in either tier.
func (t *Tiered) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if t.store != nil {
		if err := t.store.Set(ctx, key, data, ttl); err != nil {
			t.logger.Debug().Err(err).Str("key", key).Msg("shared store write failed, local tier only")
		}
	}

	t.mu.Lock()
	t.local[key] = memoEntry{data: data, expires: time.Now().Add(ttl)}
	t.mu.Unlock()
}

// Delete removes the key from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) {
	if t.store != nil {
		_ = t.store.Delete(ctx, key)
	}
	t.mu.Lock()
	delete(t.local, key)
	t.mu.Unlock()
}

// Healthy reports whether the shared tier is serving.
func (t *Tiered) Healthy() bool {
	return t.store != nil && t.store.IsHealthy()
}

// Janitor sweeps expired local entries until the context is cancelled.
func (t *Tiered) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			t.mu.Lock()
			for k, e := range t.local {
				if now.After(e.expires) {
					delete(t.local, k)
				}
			}
			t.mu.Unlock()
		}
	}
}

// Fetch returns the cached value for key, or computes it via fn, caching
// the result. Concurrent misses for the same key coalesce into exactly one
// fn call; errors are returned to every waiter and never cached.
func Fetch[T any](ctx context.Context, t *Tiered, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if data, ok := t.Get(ctx, key); ok {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		// Undecodable entry: drop it and fall through to a fresh fetch.
		t.Delete(ctx, key)
	}

	v, err, _ := t.group.Do(key, func() (interface{}, error) {
		// Double-check under the flight: another caller may have
		// populated the key while this one queued.
		if data, ok := t.Get(ctx, key); ok {
			var out T
			if err := json.Unmarshal(data, &out); err == nil {
				return out, nil
			}
		}

		out, err := fn(ctx)
		if err != nil {
			return zero, err
		}

		data, err := json.Marshal(out)
		if err != nil {
			return zero, fmt.Errorf("marshal for cache: %w", err)
		}
		t.Set(ctx, key, data, ttl)
		return out, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
