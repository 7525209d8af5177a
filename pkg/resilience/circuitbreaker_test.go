package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/careerhunt/kg-engine/pkg/fn"
)

// flakyGenerator stands in for the explanation backend: it fails until the
// remaining counter reaches zero.
type flakyGenerator struct {
	remaining int
	calls     int
}

func (g *flakyGenerator) explain(context.Context) error {
	g.calls++
	if g.remaining > 0 {
		g.remaining--
		return errors.New("model offline")
	}
	return nil
}

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreakerTripsAndShortCircuits(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	gen := &flakyGenerator{remaining: 10}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Call(ctx, gen.explain)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after threshold", b.State())
	}

	// An open breaker rejects without reaching the generator.
	err := b.Call(ctx, gen.explain)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if gen.calls != 3 {
		t.Fatalf("generator called %d times, want 3", gen.calls)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	gen := &flakyGenerator{remaining: 2}
	_ = b.Call(ctx, gen.explain)
	_ = b.Call(ctx, gen.explain)
	_ = b.Call(ctx, gen.explain) // succeeds, counter resets
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after success", b.State())
	}

	// Two fresh failures stay under the threshold.
	gen.remaining = 2
	_ = b.Call(ctx, gen.explain)
	_ = b.Call(ctx, gen.explain)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want still closed", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: 5 * time.Second, HalfOpenMax: 1})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	gen := &flakyGenerator{remaining: 2}
	_ = b.Call(ctx, gen.explain)
	_ = b.Call(ctx, gen.explain)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	now = now.Add(6 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", b.State())
	}

	// The generator has recovered; one probe call closes the breaker.
	_ = b.Call(ctx, gen.explain)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after half-open success", b.State())
	}
}

func TestBreakerHalfOpenRelapse(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: 5 * time.Second, HalfOpenMax: 1})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	gen := &flakyGenerator{remaining: 3}
	_ = b.Call(ctx, gen.explain)
	_ = b.Call(ctx, gen.explain)

	now = now.Add(6 * time.Second)

	// Still failing during the probe window, so the breaker re-opens.
	_ = b.Call(ctx, gen.explain)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after half-open failure", b.State())
	}
}

func TestBreakerStage(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	stage := BreakerStage(b, func(_ context.Context, prompt string) fn.Result[string] {
		return fn.Err[string](errors.New("model offline"))
	})

	_ = stage(ctx, "explain job_1 vs candidate_A1")
	_ = stage(ctx, "explain job_1 vs candidate_A2")

	r := stage(ctx, "explain job_2 vs candidate_A1")
	if r.IsOk() {
		t.Fatal("tripped breaker should fail the stage")
	}
	_, err := r.Unwrap()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}
