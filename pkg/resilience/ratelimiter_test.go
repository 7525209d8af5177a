package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/careerhunt/kg-engine/pkg/fn"
)

func TestLimiterAllowsBurstThenRejects(t *testing.T) {
	// Sized like the mutation-path limiter: small burst over a steady rate.
	l := NewLimiter(LimiterOpts{Rate: 10, Burst: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("upsert %d should pass within the burst", i)
		}
	}
	if l.Allow() {
		t.Fatal("burst exhausted, expected rejection")
	}
}

func TestLimiterRefillOverTime(t *testing.T) {
	now := time.Now()
	l := NewLimiter(LimiterOpts{Rate: 10, Burst: 5})
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		l.Allow()
	}
	if l.Allow() {
		t.Fatal("tokens should be drained")
	}

	// Half a second at 10/s restores the full burst.
	now = now.Add(500 * time.Millisecond)
	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("call %d should pass after refill", i)
		}
	}
	if l.Allow() {
		t.Fatal("tokens should be drained again")
	}
}

func TestLimiterCallRejectsWithoutToken(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 1})
	ctx := context.Background()

	upserts := 0
	record := func(context.Context) error { upserts++; return nil }

	if err := l.Call(ctx, record); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := l.Call(ctx, record); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if upserts != 1 {
		t.Fatalf("f ran %d times, want 1", upserts)
	}
}

func TestLimiterWaitBlocksUntilRefill(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1000, Burst: 1})
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait should succeed once a token refills: %v", err)
	}
}

func TestLimiterWaitHonorsDeadline(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 1})
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestLimiterStage(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 1})
	ctx := context.Background()

	stage := LimiterStage(l, func(_ context.Context, text string) fn.Result[int] {
		return fn.Ok(len(text))
	})

	r := stage(ctx, "Skills: Go, SQL")
	if r.IsErr() {
		t.Fatal("first document should pass")
	}
	if v, _ := r.Unwrap(); v != len("Skills: Go, SQL") {
		t.Fatalf("stage value = %d", v)
	}

	r = stage(ctx, "Skills: Python")
	if r.IsOk() {
		t.Fatal("second document should be limited")
	}
	_, err := r.Unwrap()
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}
