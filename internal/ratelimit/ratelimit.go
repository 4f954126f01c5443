// Package ratelimit bounds outbound calls to each market data provider.
//
// Every provider gets one token bucket sized at 90% of its documented ceiling.
// Priorities carve the bucket into budgets: background work is denied once its
// share is spent so interactive requests always find tokens.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ai-crypto-dashboard/internal/logging"
)

// ErrRateLimitExceeded signals that the provider budget is exhausted for the
// request's priority. Callers may retry after the suggested wait.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// safetyMargin keeps consumption below the documented provider ceiling.
const safetyMargin = 0.9

// Priority orders competing requests when budget is tight.
type Priority int

const (
	// PriorityCritical may drain the bucket completely and blocks until granted.
	PriorityCritical Priority = iota
	// PriorityHigh is for user-triggered analysis; blocks when tokens run low.
	PriorityHigh
	// PriorityNormal is for on-demand data outside the hot path.
	PriorityNormal
	// PriorityLow is for background refresh cycles; throttled first.
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// reserveFloor returns the fraction of the bucket a priority must leave
// untouched for more urgent work.
func (p Priority) reserveFloor() float64 {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 0.05
	case PriorityNormal:
		return 0.40
	case PriorityLow:
		return 0.60
	default:
		return 0.50
	}
}

// AcquireResult reports the outcome of a non-blocking acquire attempt.
type AcquireResult struct {
	Granted      bool
	RetryAfter   time.Duration
	Remaining    float64 // tokens left after this request
	UsagePercent float64 // 0-100 of bucket capacity consumed
}

// ProviderStatus is the status payload exposed over the API.
type ProviderStatus struct {
	AvailableTokens float64 `json:"available_tokens"`
	Capacity        int     `json:"capacity"`
	UsagePercent    float64 `json:"usage_percent"`
	RefillPerSecond float64 `json:"refill_per_second"`
	TotalRequests   int64   `json:"total_requests"`
	DeniedRequests  int64   `json:"denied_requests"`
}

type bucket struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	capacity  float64
	refillSec float64
	total     int64
	denied    int64
}

// Manager holds one token bucket per provider. Safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	logger  zerolog.Logger
}

func NewManager() *Manager {
	return &Manager{
		buckets: make(map[string]*bucket),
		logger:  logging.Component("ratelimit"),
	}
}

// Register creates a bucket for a provider from its documented per-minute
// ceiling. The effective budget is ceiling * 0.9.
func (m *Manager) Register(provider string, callsPerMinute int) {
	budget := float64(callsPerMinute) * safetyMargin
	refill := budget / 60.0

	m.mu.Lock()
	m.buckets[provider] = &bucket{
		limiter:   rate.NewLimiter(rate.Limit(refill), int(budget)),
		capacity:  budget,
		refillSec: refill,
	}
	m.mu.Unlock()

	m.logger.Info().
		Str("provider", provider).
		Int("ceiling_per_minute", callsPerMinute).
		Float64("budget_per_minute", budget).
		Msg("rate limiter registered")
}

func (m *Manager) get(provider string) *bucket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buckets[provider]
}

// Acquire obtains weight tokens for a provider call. Critical and high
// priority requests block (subject to ctx) when the bucket is empty; normal
// and low priority requests fail fast with ErrRateLimitExceeded so background
// work never starves interactive traffic.
func (m *Manager) Acquire(ctx context.Context, provider string, prio Priority, weight int) error {
	b := m.get(provider)
	if b == nil {
		// Unregistered providers are not limited.
		return nil
	}

	res := m.tryAcquire(b, prio, weight)
	if res.Granted {
		return nil
	}

	if prio == PriorityCritical || prio == PriorityHigh {
		start := time.Now()
		if err := b.limiter.WaitN(ctx, weight); err != nil {
			return fmt.Errorf("%s: %w", provider, err)
		}
		if waited := time.Since(start); waited > 100*time.Millisecond {
			m.logger.Info().
				Str("provider", provider).
				Str("priority", prio.String()).
				Dur("waited", waited).
				Msg("rate limit wait")
		}
		return nil
	}

	b.mu.Lock()
	b.denied++
	b.mu.Unlock()

	return fmt.Errorf("%s (%s priority, retry in %s): %w",
		provider, prio.String(), res.RetryAfter.Round(time.Millisecond), ErrRateLimitExceeded)
}

// TryAcquire attempts to take weight tokens without blocking.
func (m *Manager) TryAcquire(provider string, prio Priority, weight int) AcquireResult {
	b := m.get(provider)
	if b == nil {
		return AcquireResult{Granted: true}
	}
	res := m.tryAcquire(b, prio, weight)
	if !res.Granted {
		b.mu.Lock()
		b.denied++
		b.mu.Unlock()
	}
	return res
}

func (m *Manager) tryAcquire(b *bucket, prio Priority, weight int) AcquireResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++

	floor := prio.reserveFloor() * b.capacity
	avail := b.limiter.Tokens()
	if avail > b.capacity {
		avail = b.capacity
	}

	if avail-float64(weight) < floor {
		deficit := floor + float64(weight) - avail
		wait := time.Duration(deficit / b.refillSec * float64(time.Second))
		if wait < 0 {
			wait = 100 * time.Millisecond
		}
		return AcquireResult{
			Granted:      false,
			RetryAfter:   wait,
			Remaining:    math.Max(avail-floor, 0),
			UsagePercent: (b.capacity - avail) / b.capacity * 100,
		}
	}

	// Tokens are available above the floor; consume them. The take can
	// still lose to a blocking waiter that drained the bucket between our
	// Tokens() read and here, so the AllowN result is authoritative.
	if !b.limiter.AllowN(time.Now(), weight) {
		wait := time.Duration(float64(weight) / b.refillSec * float64(time.Second))
		return AcquireResult{
			Granted:      false,
			RetryAfter:   wait,
			Remaining:    0,
			UsagePercent: 100,
		}
	}

	remaining := avail - float64(weight)
	return AcquireResult{
		Granted:      true,
		Remaining:    remaining,
		UsagePercent: (b.capacity - remaining) / b.capacity * 100,
	}
}

// Status returns the current state of every registered bucket.
func (m *Manager) Status() map[string]ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]ProviderStatus, len(m.buckets))
	for name, b := range m.buckets {
		b.mu.Lock()
		avail := b.limiter.Tokens()
		if avail > b.capacity {
			avail = b.capacity
		}
		status[name] = ProviderStatus{
			AvailableTokens: math.Round(avail*100) / 100,
			Capacity:        int(b.capacity),
			UsagePercent:    math.Round((b.capacity-avail)/b.capacity*10000) / 100,
			RefillPerSecond: math.Round(b.refillSec*100) / 100,
			TotalRequests:   b.total,
			DeniedRequests:  b.denied,
		}
		b.mu.Unlock()
	}
	return status
}
