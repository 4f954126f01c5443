package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type payload struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestSetThenGetWithinTTL(t *testing.T) {
	tc := NewTiered(nil)
	ctx := context.Background()

	tc.Set(ctx, PriceKey("BTC"), []byte(`{"symbol":"BTC","price":60000}`), time.Minute)

	data, ok := tc.Get(ctx, PriceKey("BTC"))
	if !ok {
		t.Fatal("expected hit within TTL")
	}
	if string(data) != `{"symbol":"BTC","price":60000}` {
		t.Errorf("payload mismatch: %s", data)
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	tc := NewTiered(nil)
	ctx := context.Background()

	tc.Set(ctx, PriceKey("ETH"), []byte(`{}`), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, ok := tc.Get(ctx, PriceKey("ETH")); ok {
		t.Error("read after TTL expiry must be a miss")
	}
}

func TestDelete(t *testing.T) {
	tc := NewTiered(nil)
	ctx := context.Background()

	tc.Set(ctx, SignalKey("SOL"), []byte(`{}`), time.Minute)
	tc.Delete(ctx, SignalKey("SOL"))

	if _, ok := tc.Get(ctx, SignalKey("SOL")); ok {
		t.Error("deleted key should miss")
	}
}

func TestFetchCachesResult(t *testing.T) {
	tc := NewTiered(nil)
	ctx := context.Background()

	var calls int32
	fn := func(context.Context) (payload, error) {
		atomic.AddInt32(&calls, 1)
		return payload{Symbol: "BTC", Price: 60000}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Fetch(ctx, tc, PriceKey("BTC"), time.Minute, fn)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if got.Price != 60000 {
			t.Errorf("price = %v, want 60000", got.Price)
		}
	}

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("upstream called %d times, want 1", n)
	}
}

func TestFetchNeverCachesErrors(t *testing.T) {
	tc := NewTiered(nil)
	ctx := context.Background()
	boom := errors.New("upstream down")

	var calls int32
	fn := func(context.Context) (payload, error) {
		atomic.AddInt32(&calls, 1)
		return payload{}, boom
	}

	for i := 0; i < 2; i++ {
		if _, err := Fetch(ctx, tc, PriceKey("XYZ"), time.Minute, fn); !errors.Is(err, boom) {
			t.Fatalf("fetch error = %v, want %v", err, boom)
		}
	}

	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("upstream called %d times, want 2 (errors must not cache)", n)
	}

	if _, ok := tc.Get(ctx, PriceKey("XYZ")); ok {
		t.Error("no cache entry should be written on error")
	}
}

func TestFetchCoalescesConcurrentMisses(t *testing.T) {
	tc := NewTiered(nil)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fn := func(context.Context) (payload, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return payload{Symbol: "BTC", Price: 60000}, nil
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]payload, workers)
	errs := make([]error, workers)

	started := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			results[i], errs[i] = Fetch(ctx, tc, PriceKey("BTC"), time.Minute, fn)
		}(i)
	}

	for i := 0; i < workers; i++ {
		<-started
	}
	// Give the goroutines a moment to pile onto the flight.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("upstream called %d times under %d concurrent misses, want 1", n, workers)
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d error: %v", i, errs[i])
		}
		if results[i].Price != 60000 {
			t.Errorf("worker %d got %+v, want shared result", i, results[i])
		}
	}
}

func TestJanitorSweepsExpired(t *testing.T) {
	tc := NewTiered(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tc.Set(ctx, "k1", []byte(`{}`), 5*time.Millisecond)
	tc.Set(ctx, "k2", []byte(`{}`), time.Minute)

	go tc.Janitor(ctx, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	tc.mu.RLock()
	_, gone := tc.local["k1"]
	_, kept := tc.local["k2"]
	tc.mu.RUnlock()

	if gone {
		t.Error("expired entry should be swept")
	}
	if !kept {
		t.Error("live entry should survive the sweep")
	}
}
