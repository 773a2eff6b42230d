package triarb

import (
	"fmt"
	"sync"
	"time"
)

// Per-venue cooldowns between live executions. The slower venues settle
// balances asynchronously, so a back-to-back run would trade against stale
// funds.
var executionCooldowns = map[string]time.Duration{
	"valr":     30 * time.Second,
	"luno":     30 * time.Second,
	"chainex":  30 * time.Second,
	"binance":  15 * time.Second,
	"bybit":    15 * time.Second,
	"okx":      15 * time.Second,
	"kucoin":   15 * time.Second,
	"coinbase": 15 * time.Second,
	"kraken":   20 * time.Second,
}

const defaultExecutionCooldown = 20 * time.Second

// ExecutionCooldown returns the live-execution cooldown for a venue
func ExecutionCooldown(exchange string) time.Duration {
	if d, ok := executionCooldowns[exchange]; ok {
		return d
	}
	return defaultExecutionCooldown
}

// ErrExchangeBusy reports a live execution already in flight on the venue
type ErrExchangeBusy struct {
	Exchange string
}

func (e *ErrExchangeBusy) Error() string {
	return fmt.Sprintf("%s has an arbitrage execution in progress", e.Exchange)
}

// ErrCooldown reports that the venue's post-execution cooldown has not
// elapsed yet
type ErrCooldown struct {
	Exchange  string
	Remaining time.Duration
}

func (e *ErrCooldown) Error() string {
	return fmt.Sprintf("%s is cooling down, retry in %s", e.Exchange, e.Remaining.Round(time.Millisecond))
}

type venueState struct {
	lastExecutionAt time.Time
	active          int
}

// ExecutionLimiter serialises live executions per venue and enforces the
// cooldown between them. Overrides replace the table entry for a venue.
// Dry runs never touch the limiter.
type ExecutionLimiter struct {
	mu        sync.Mutex
	venues    map[string]*venueState
	overrides map[string]time.Duration
	now       func() time.Time
}

// NewExecutionLimiter creates a limiter; overrides may be nil
func NewExecutionLimiter(overrides map[string]time.Duration) *ExecutionLimiter {
	return &ExecutionLimiter{
		venues:    make(map[string]*venueState),
		overrides: overrides,
		now:       time.Now,
	}
}

func (l *ExecutionLimiter) cooldown(exchange string) time.Duration {
	if d, ok := l.overrides[exchange]; ok {
		return d
	}
	return ExecutionCooldown(exchange)
}

// Acquire claims the venue for one live execution. It fails fast rather
// than queueing: a busy venue or an unelapsed cooldown is surfaced to the
// caller to retry.
func (l *ExecutionLimiter) Acquire(exchange string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.venues[exchange]
	if !ok {
		state = &venueState{}
		l.venues[exchange] = state
	}
	if state.active > 0 {
		return &ErrExchangeBusy{Exchange: exchange}
	}
	if !state.lastExecutionAt.IsZero() {
		elapsed := l.now().Sub(state.lastExecutionAt)
		if cd := l.cooldown(exchange); elapsed < cd {
			return &ErrCooldown{Exchange: exchange, Remaining: cd - elapsed}
		}
	}
	state.active++
	return nil
}

// Release ends a live execution and starts the venue's cooldown window
func (l *ExecutionLimiter) Release(exchange string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.venues[exchange]
	if !ok || state.active == 0 {
		return
	}
	state.active--
	state.lastExecutionAt = l.now()
}
