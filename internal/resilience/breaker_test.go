package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ariahome/aria/internal/resilience"
)

var errBackend = errors.New("backend down")

func failingCalls(b *resilience.Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Do(func() error { return errBackend })
	}
}

func TestBreaker_ClosedForwardsCalls(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{Name: "stt"})
	calls := 0
	if err := b.Do(func() error { calls++; return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d; want 1", calls)
	}
	if s := b.State(); s != resilience.Closed {
		t.Errorf("state = %v; want closed", s)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{TripAfter: 3, Cooldown: time.Hour})
	failingCalls(b, 3)

	if s := b.State(); s != resilience.Open {
		t.Fatalf("state after 3 failures = %v; want open", s)
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("Do while open = %v; want ErrOpen", err)
	}
	if called {
		t.Error("fn called while breaker open")
	}
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{TripAfter: 3, Cooldown: time.Hour})
	failingCalls(b, 2)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	failingCalls(b, 2)

	if s := b.State(); s != resilience.Closed {
		t.Errorf("state = %v; want closed (streak was broken)", s)
	}
}

func TestBreaker_ClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{
		TripAfter:   2,
		Cooldown:    10 * time.Millisecond,
		ProbeBudget: 2,
	})
	failingCalls(b, 2)
	time.Sleep(20 * time.Millisecond)

	if s := b.State(); s != resilience.HalfOpen {
		t.Fatalf("state after cooldown = %v; want half-open", s)
	}

	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if s := b.State(); s != resilience.Closed {
		t.Errorf("state after probes = %v; want closed", s)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{
		TripAfter:   2,
		Cooldown:    10 * time.Millisecond,
		ProbeBudget: 3,
	})
	failingCalls(b, 2)
	time.Sleep(20 * time.Millisecond)

	_ = b.Do(func() error { return errBackend })

	if s := b.State(); s != resilience.Open {
		t.Errorf("state after failed probe = %v; want open", s)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("Do after re-open = %v; want ErrOpen", err)
	}
}

func TestBreaker_ResetForcesClosed(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{TripAfter: 1, Cooldown: time.Hour})
	failingCalls(b, 1)
	if s := b.State(); s != resilience.Open {
		t.Fatalf("state = %v; want open", s)
	}

	b.Reset()
	if s := b.State(); s != resilience.Closed {
		t.Errorf("state after reset = %v; want closed", s)
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("Do after reset: %v", err)
	}
}

func TestBreaker_ErrorsPassThroughWhileClosed(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{})
	if err := b.Do(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Errorf("Do = %v; want the backend error", err)
	}
}
