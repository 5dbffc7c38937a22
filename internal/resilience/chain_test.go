package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestChain_PrimarySucceeds(t *testing.T) {
	t.Parallel()

	c := NewChain("primary", "a", BreakerConfig{})
	c.Add("fallback", "b")

	var tried []string
	err := c.Do(func(v string) error {
		tried = append(tried, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(tried) != 1 || tried[0] != "a" {
		t.Errorf("tried = %v; want only the primary", tried)
	}
}

func TestChain_FallsThroughOnFailure(t *testing.T) {
	t.Parallel()

	c := NewChain("primary", "a", BreakerConfig{})
	c.Add("fallback", "b")

	var tried []string
	err := c.Do(func(v string) error {
		tried = append(tried, v)
		if v == "a" {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(tried) != 2 || tried[1] != "b" {
		t.Errorf("tried = %v; want primary then fallback", tried)
	}
}

func TestChain_AllFail(t *testing.T) {
	t.Parallel()

	c := NewChain("primary", "a", BreakerConfig{})
	c.Add("fallback", "b")

	err := c.Do(func(string) error { return errBoom })
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Errorf("err = %v; want ErrAllProvidersFailed", err)
	}
}

func TestChain_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	c := NewChain("primary", "a", BreakerConfig{MaxFailures: 1, Cooldown: time.Minute})
	c.Add("fallback", "b")

	// Trip the primary's breaker.
	_ = c.Do(func(v string) error {
		if v == "a" {
			return errBoom
		}
		return nil
	})

	var tried []string
	err := c.Do(func(v string) error {
		tried = append(tried, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(tried) != 1 || tried[0] != "b" {
		t.Errorf("tried = %v; want only the fallback while the primary is open", tried)
	}
}

func TestDoResult_ReturnsFirstSuccess(t *testing.T) {
	t.Parallel()

	c := NewChain("primary", 1, BreakerConfig{})
	c.Add("fallback", 2)

	got, err := DoResult(c, func(v int) (string, error) {
		if v == 1 {
			return "", errBoom
		}
		return "two", nil
	})
	if err != nil {
		t.Fatalf("DoResult: %v", err)
	}
	if got != "two" {
		t.Errorf("result = %q; want %q", got, "two")
	}
}

func TestDoResult_AllFailReturnsZero(t *testing.T) {
	t.Parallel()

	c := NewChain("only", 1, BreakerConfig{})

	got, err := DoResult(c, func(int) (string, error) {
		return "partial", errBoom
	})
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Errorf("err = %v; want ErrAllProvidersFailed", err)
	}
	if got != "" {
		t.Errorf("result = %q; want zero value on failure", got)
	}
}
