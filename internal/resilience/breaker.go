// Package resilience provides a fail-fast circuit breaker for outbound calls.
//
// [Breaker] is a three-state breaker (closed, open, half-open). It never
// retries: while open it rejects calls with [ErrCircuitOpen] without
// contacting the upstream.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. A successful
	// probe closes the breaker, a failed one re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [Breaker].
type Config struct {
	// Name is used in log messages and passed to OnStateChange.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax caps concurrent probe calls in the half-open state. Default: 1.
	HalfOpenMax int

	// IsFailure classifies errors returned by the wrapped call. Nil means
	// every error except context cancellation counts as a failure.
	IsFailure func(error) bool

	// OnStateChange is called (outside the lock) after each transition.
	OnStateChange func(name string, from, to State)
}

// Breaker implements the three-state circuit breaker pattern.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probesInUse int
}

// New creates a [Breaker]. Zero-value config fields get defaults.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Do runs fn if the breaker admits the call and records its outcome.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	callErr := fn(ctx)

	failed := callErr != nil && b.cfg.IsFailure(callErr)
	b.record(probe, failed)
	return callErr
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	var from State
	changed := false
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		from, changed = b.state, true
		b.state = StateHalfOpen
		b.probesInUse = 0
	}

	switch b.state {
	case StateOpen:
		b.mu.Unlock()
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if b.probesInUse >= b.cfg.HalfOpenMax {
			b.mu.Unlock()
			b.notify(changed, from, StateHalfOpen)
			return false, ErrCircuitOpen
		}
		b.probesInUse++
		probe = true
	}
	b.mu.Unlock()

	b.notify(changed, from, StateHalfOpen)
	return probe, nil
}

func (b *Breaker) record(probe, failed bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case probe && failed:
		b.probesInUse--
		b.trip()
	case probe:
		b.probesInUse--
		b.state = StateClosed
		b.failures = 0
	case failed:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			b.trip()
		}
	default:
		if b.state == StateClosed {
			b.failures = 0
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from != to, from, to)
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
}

func (b *Breaker) notify(changed bool, from, to State) {
	if !changed {
		return
	}
	slog.Warn("circuit breaker state change", "name", b.cfg.Name, "from", from, "to", to)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [StateClosed].
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.probesInUse = 0
	b.mu.Unlock()
	b.notify(from != StateClosed, from, StateClosed)
}

// SetLimits changes MaxFailures and ResetTimeout on a live breaker.
// Non-positive values leave the current setting. The current state is kept;
// a closed breaker whose failure count already reaches the new limit opens
// on its next failure.
func (b *Breaker) SetLimits(maxFailures int, resetTimeout time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if maxFailures > 0 {
		b.cfg.MaxFailures = maxFailures
	}
	if resetTimeout > 0 {
		b.cfg.ResetTimeout = resetTimeout
	}
}

// Limits returns the current MaxFailures and ResetTimeout.
func (b *Breaker) Limits() (maxFailures int, resetTimeout time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.MaxFailures, b.cfg.ResetTimeout
}
