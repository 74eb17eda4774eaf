package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New(cfg)
	b.now = clk.Now
	return b, clk
}

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	b := New(Config{Name: "gen"})
	if b.cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", b.cfg.MaxFailures)
	}
	if b.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", b.cfg.ResetTimeout)
	}
	if b.cfg.HalfOpenMax != 1 {
		t.Errorf("HalfOpenMax = %d, want 1", b.cfg.HalfOpenMax)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(Config{Name: "gen", MaxFailures: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	for range 3 {
		if err := b.Do(ctx, fail); !errors.Is(err, errUpstream) {
			t.Fatalf("err = %v, want upstream error", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn called while open")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(Config{MaxFailures: 3})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, succeed)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_CancellationIsNotFailure(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(Config{MaxFailures: 1})
	err := b.Do(context.Background(), func(context.Context) error { return context.Canceled })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		probe func(context.Context) error
		want  State
	}{
		{"success closes", succeed, StateClosed},
		{"failure reopens", fail, StateOpen},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, clk := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Minute})
			ctx := context.Background()

			_ = b.Do(ctx, fail)
			clk.Advance(time.Minute)
			if b.State() != StateHalfOpen {
				t.Fatalf("state = %v, want half-open", b.State())
			}
			_ = b.Do(ctx, tc.probe)
			if b.State() != tc.want {
				t.Fatalf("state = %v, want %v", b.State(), tc.want)
			}
		})
	}
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()

	b, clk := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMax: 1})
	ctx := context.Background()
	_ = b.Do(ctx, fail)
	clk.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		transitions []string
	)
	b, clk := newTestBreaker(Config{
		Name:         "gen",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clk.Advance(time.Second)
	_ = b.Do(ctx, succeed)

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = b.Do(context.Background(), fail)
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestBreaker_SetLimits(t *testing.T) {
	t.Parallel()

	b, clk := newTestBreaker(Config{MaxFailures: 5, ResetTimeout: time.Minute})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	b.SetLimits(2, 10*time.Second)
	if n, d := b.Limits(); n != 2 || d != 10*time.Second {
		t.Fatalf("Limits() = %d, %v", n, d)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after SetLimits = %v, want closed", b.State())
	}

	_ = b.Do(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after second failure", b.State())
	}
	clk.Advance(10 * time.Second)
	if b.State() != StateHalfOpen {
		t.Errorf("state = %v, want half-open after new reset timeout", b.State())
	}

	b.SetLimits(0, -1)
	if n, d := b.Limits(); n != 2 || d != 10*time.Second {
		t.Errorf("non-positive limits changed settings: %d, %v", n, d)
	}
}
