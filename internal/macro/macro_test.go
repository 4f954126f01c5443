package macro

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubFetcher struct {
	ctx Context
	err error
}

func (s *stubFetcher) Fetch(context.Context) (Context, error) {
	return s.ctx, s.err
}

func fptr(f float64) *float64 { return &f }
func iptr(i int) *int         { return &i }

func TestRefreshSuccess(t *testing.T) {
	fetcher := &stubFetcher{ctx: Context{DXY: fptr(103), FearGreed: iptr(40)}}
	p := NewProvider(fetcher, time.Minute)

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	cur := p.Current()
	if cur.Stale {
		t.Error("fresh snapshot should not be stale")
	}
	if cur.DXY == nil || *cur.DXY != 103 {
		t.Errorf("DXY = %v, want 103", cur.DXY)
	}
	if cur.PolicyStance != PolicyNeutral {
		t.Errorf("policy = %q, want default %q", cur.PolicyStance, PolicyNeutral)
	}
	if cur.FetchedAt.IsZero() {
		t.Error("FetchedAt should be set")
	}
}

func TestRefreshFailureKeepsLastSnapshot(t *testing.T) {
	fetcher := &stubFetcher{ctx: Context{VIX: fptr(18), FearGreed: iptr(55)}}
	p := NewProvider(fetcher, time.Minute)
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	fetcher.err = errors.New("upstream down")
	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	cur := p.Current()
	if !cur.Stale {
		t.Error("snapshot should be stale after failed refresh")
	}
	if cur.VIX == nil || *cur.VIX != 18 {
		t.Errorf("VIX = %v, want retained 18", cur.VIX)
	}
	if cur.FearGreed == nil || *cur.FearGreed != 55 {
		t.Errorf("fear greed = %v, want retained 55", cur.FearGreed)
	}
}

func TestOnUpdateFiresAfterSuccessfulRefresh(t *testing.T) {
	fetcher := &stubFetcher{ctx: Context{DXY: fptr(98)}}
	p := NewProvider(fetcher, time.Minute)

	got := make(chan Context, 1)
	p.OnUpdate(func(c Context) { got <- c })

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	select {
	case c := <-got:
		if c.Stale || c.DXY == nil || *c.DXY != 98 {
			t.Errorf("callback context = %+v, want fresh DXY 98", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update callback never fired")
	}

	// A failed refresh keeps the old snapshot and must not fire the hook.
	fetcher.err = errors.New("upstream down")
	_ = p.Refresh(context.Background())
	select {
	case <-got:
		t.Error("callback fired for a failed refresh")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInitialSnapshotIsStale(t *testing.T) {
	p := NewProvider(&stubFetcher{}, time.Minute)
	if !p.Current().Stale {
		t.Error("snapshot before first refresh should be stale")
	}
}

func TestScoreNeutral(t *testing.T) {
	if got := Score(Context{PolicyStance: PolicyNeutral}); got != 50 {
		t.Errorf("empty context score = %d, want 50", got)
	}
}

func TestScoreTable(t *testing.T) {
	cases := []struct {
		name string
		ctx  Context
		want int
	}{
		{"very weak dollar", Context{DXY: fptr(93)}, 70},
		{"weak dollar", Context{DXY: fptr(99)}, 60},
		{"very strong dollar", Context{DXY: fptr(112)}, 30},
		{"strong dollar", Context{DXY: fptr(107)}, 40},
		{"calm vix", Context{VIX: fptr(12)}, 65},
		{"elevated vix", Context{VIX: fptr(27)}, 45},
		{"high vix", Context{VIX: fptr(35)}, 35},
		{"extreme fear contrarian", Context{FearGreed: iptr(10)}, 65},
		{"fear", Context{FearGreed: iptr(30)}, 55},
		{"greed", Context{FearGreed: iptr(65)}, 45},
		{"extreme greed", Context{FearGreed: iptr(90)}, 35},
		{"dovish", Context{PolicyStance: PolicyDovish}, 60},
		{"hawkish", Context{PolicyStance: PolicyHawkish}, 40},
		{
			"risk-off stack",
			Context{DXY: fptr(112), VIX: fptr(40), FearGreed: iptr(90), PolicyStance: PolicyHawkish},
			0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.ctx); got != tc.want {
				t.Errorf("Score(%+v) = %d, want %d", tc.ctx, got, tc.want)
			}
		})
	}
}
