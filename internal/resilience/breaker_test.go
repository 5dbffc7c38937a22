package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failingCall() error { return errBoom }

func okCall() error { return nil }

func TestBreaker_StartsClosed(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", BreakerConfig{})
	if b.State() != StateClosed {
		t.Errorf("state = %v; want closed", b.State())
	}
	if err := b.Execute(okCall); err != nil {
		t.Errorf("Execute = %v; want nil", err)
	}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", BreakerConfig{MaxFailures: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		if err := b.Execute(failingCall); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v; want errBoom", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v; want open", b.State())
	}

	if err := b.Execute(okCall); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("open breaker err = %v; want ErrBreakerOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", BreakerConfig{MaxFailures: 3, Cooldown: time.Minute})

	b.Execute(failingCall)
	b.Execute(failingCall)
	b.Execute(okCall)
	b.Execute(failingCall)
	b.Execute(failingCall)

	if b.State() != StateClosed {
		t.Errorf("state = %v; want closed, failures never reached the limit in a row", b.State())
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", BreakerConfig{MaxFailures: 1, Cooldown: 10 * time.Millisecond})
	b.Execute(failingCall)
	if b.State() != StateOpen {
		t.Fatalf("state = %v; want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Errorf("state after cooldown = %v; want half-open", b.State())
	}
}

func TestBreaker_ClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", BreakerConfig{
		MaxFailures: 1,
		Cooldown:    5 * time.Millisecond,
		ProbeBudget: 2,
	})
	b.Execute(failingCall)
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := b.Execute(okCall); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v; want closed after successful probes", b.State())
	}
}

func TestBreaker_ReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", BreakerConfig{
		MaxFailures: 1,
		Cooldown:    5 * time.Millisecond,
		ProbeBudget: 3,
	})
	b.Execute(failingCall)
	time.Sleep(10 * time.Millisecond)

	if err := b.Execute(failingCall); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v; want errBoom", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %v; want open after a failed probe", b.State())
	}
}

func TestBreaker_ProbeBudgetExhausted(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", BreakerConfig{
		MaxFailures: 1,
		Cooldown:    5 * time.Millisecond,
		ProbeBudget: 1,
	})
	b.Execute(failingCall)
	time.Sleep(10 * time.Millisecond)

	// The single allowed probe succeeds and immediately closes the breaker.
	if err := b.Execute(okCall); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v; want closed", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", BreakerConfig{MaxFailures: 1, Cooldown: time.Minute})
	b.Execute(failingCall)
	if b.State() != StateOpen {
		t.Fatalf("state = %v; want open", b.State())
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state after reset = %v; want closed", b.State())
	}
	if err := b.Execute(okCall); err != nil {
		t.Errorf("Execute after reset = %v; want nil", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q; want %q", tc.state, got, tc.want)
		}
	}
}
