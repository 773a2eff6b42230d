package triarb

import (
	"errors"
	"testing"
	"time"
)

func limiterAt(start time.Time, overrides map[string]time.Duration) (*ExecutionLimiter, *time.Time) {
	now := start
	l := NewExecutionLimiter(overrides)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterFirstAcquireSucceeds(t *testing.T) {
	l, _ := limiterAt(time.Unix(1000, 0), nil)
	if err := l.Acquire("binance"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
}

func TestLimiterBusyWhileActive(t *testing.T) {
	l, _ := limiterAt(time.Unix(1000, 0), nil)
	if err := l.Acquire("binance"); err != nil {
		t.Fatal(err)
	}
	err := l.Acquire("binance")
	var busy *ErrExchangeBusy
	if !errors.As(err, &busy) {
		t.Fatalf("second acquire = %v, want ErrExchangeBusy", err)
	}
}

func TestLimiterVenuesAreIndependent(t *testing.T) {
	l, _ := limiterAt(time.Unix(1000, 0), nil)
	if err := l.Acquire("binance"); err != nil {
		t.Fatal(err)
	}
	if err := l.Acquire("kraken"); err != nil {
		t.Errorf("kraken should not be blocked by binance: %v", err)
	}
}

func TestLimiterCooldownAfterRelease(t *testing.T) {
	start := time.Unix(1000, 0)
	l, now := limiterAt(start, nil)

	if err := l.Acquire("binance"); err != nil {
		t.Fatal(err)
	}
	l.Release("binance")

	*now = start.Add(5 * time.Second)
	err := l.Acquire("binance")
	var cd *ErrCooldown
	if !errors.As(err, &cd) {
		t.Fatalf("acquire during cooldown = %v, want ErrCooldown", err)
	}
	if cd.Remaining != 10*time.Second {
		t.Errorf("remaining = %s, want 10s", cd.Remaining)
	}

	*now = start.Add(15 * time.Second)
	if err := l.Acquire("binance"); err != nil {
		t.Errorf("acquire after cooldown elapsed failed: %v", err)
	}
}

func TestLimiterOverrideReplacesTable(t *testing.T) {
	start := time.Unix(1000, 0)
	l, now := limiterAt(start, map[string]time.Duration{"binance": 2 * time.Second})

	if err := l.Acquire("binance"); err != nil {
		t.Fatal(err)
	}
	l.Release("binance")

	*now = start.Add(3 * time.Second)
	if err := l.Acquire("binance"); err != nil {
		t.Errorf("override cooldown of 2s should have elapsed: %v", err)
	}
}

func TestLimiterReleaseWithoutAcquire(t *testing.T) {
	l, _ := limiterAt(time.Unix(1000, 0), nil)
	l.Release("binance") // must not start a cooldown window
	if err := l.Acquire("binance"); err != nil {
		t.Errorf("acquire after spurious release failed: %v", err)
	}
}

func TestExecutionCooldownTable(t *testing.T) {
	cases := map[string]time.Duration{
		"valr":    30 * time.Second,
		"luno":    30 * time.Second,
		"chainex": 30 * time.Second,
		"binance": 15 * time.Second,
		"kraken":  20 * time.Second,
		"gemini":  20 * time.Second, // default
	}
	for venue, want := range cases {
		if got := ExecutionCooldown(venue); got != want {
			t.Errorf("ExecutionCooldown(%s) = %s, want %s", venue, got, want)
		}
	}
}
