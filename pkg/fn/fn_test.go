package fn

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestResult(t *testing.T) {
	r := Ok(3)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok result misreported")
	}
	v, err := r.Unwrap()
	if v != 3 || err != nil {
		t.Fatalf("Unwrap = %v, %v", v, err)
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() {
		t.Fatal("Err result misreported")
	}
	if e.UnwrapOr(7) != 7 {
		t.Fatal("UnwrapOr fallback not used")
	}
}

func TestCollect(t *testing.T) {
	ok := Collect([]Result[int]{Ok(1), Ok(2)})
	vals, err := ok.Unwrap()
	if err != nil || len(vals) != 2 {
		t.Fatalf("Collect ok = %v, %v", vals, err)
	}
	bad := Collect([]Result[int]{Ok(1), Errf[int]("nope")})
	if bad.IsOk() {
		t.Fatal("Collect should propagate first error")
	}
}

func TestThenShortCircuits(t *testing.T) {
	fail := Stage[int, int](func(_ context.Context, _ int) Result[int] {
		return Errf[int]("first failed")
	})
	called := false
	second := Stage[int, string](func(_ context.Context, v int) Result[string] {
		called = true
		return Ok(strconv.Itoa(v))
	})
	r := Then(fail, second)(context.Background(), 1)
	if r.IsOk() || called {
		t.Fatal("second stage ran after failure")
	}
}

func TestMapFilterUnique(t *testing.T) {
	got := Map([]int{1, 2, 3}, func(v int) int { return v * 2 })
	if got[0] != 2 || got[2] != 6 {
		t.Fatalf("Map = %v", got)
	}
	odd := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 1 })
	if len(odd) != 2 {
		t.Fatalf("Filter = %v", odd)
	}
	u := Unique([]string{"go", "sql", "go", "python", "sql"})
	if len(u) != 3 || u[0] != "go" || u[2] != "python" {
		t.Fatalf("Unique = %v", u)
	}
}

func TestParMapPreservesOrder(t *testing.T) {
	in := make([]int, 50)
	for i := range in {
		in[i] = i
	}
	out := ParMap(in, 8, func(v int) int { return v * v })
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d", i, v)
		}
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
		func(context.Context) Result[string] {
			attempts++
			if attempts < 3 {
				return Errf[string]("transient")
			}
			return Ok("done")
		})
	v, err := r.Unwrap()
	if err != nil || v != "done" || attempts != 3 {
		t.Fatalf("Retry = %v, %v after %d attempts", v, err, attempts)
	}
}

func TestRetryGivesUp(t *testing.T) {
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
		func(context.Context) Result[int] { return Errf[int]("always") })
	if r.IsOk() {
		t.Fatal("Retry should fail after exhausting attempts")
	}
}
