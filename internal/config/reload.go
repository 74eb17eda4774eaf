package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultReloadInterval is how often a [Reloader] checks its file.
const DefaultReloadInterval = 5 * time.Second

// ApplyFunc receives every accepted reload together with its diff against
// the previous config.
type ApplyFunc func(d ConfigDiff, cfg *Config)

// Reloader keeps the running service in step with its config file. Each
// check that finds new, valid content diffs it against the active config and
// hands the result to the registered [ApplyFunc]s.
type Reloader struct {
	path     string
	interval time.Duration
	overlay  func(*Config)
	apply    []ApplyFunc

	mu      sync.Mutex
	current *Config
	sum     [sha256.Size]byte
	badSum  [sha256.Size]byte
}

// ReloaderOption configures a [Reloader].
type ReloaderOption func(*Reloader)

// WithInterval sets the check interval.
func WithInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithOverlay applies fn to every reloaded config before it is diffed, so
// values merged from the environment do not show up as changes.
func WithOverlay(fn func(*Config)) ReloaderOption {
	return func(r *Reloader) { r.overlay = fn }
}

// OnReload registers fn. Functions run in registration order.
func OnReload(fn ApplyFunc) ReloaderOption {
	return func(r *Reloader) { r.apply = append(r.apply, fn) }
}

// NewReloader returns a Reloader for the file at path whose active config is
// current, the config the service was started with.
func NewReloader(path string, current *Config, opts ...ReloaderOption) (*Reloader, error) {
	r := &Reloader{path: path, interval: DefaultReloadInterval, current: current}
	for _, o := range opts {
		o(r)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reloader: %w", err)
	}
	r.sum = sha256.Sum256(data)
	return r, nil
}

// Current returns the active config.
func (r *Reloader) Current() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Run checks the file every interval until ctx is done.
func (r *Reloader) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Check(); err != nil {
				slog.Warn("config reload skipped", "path", r.path, "err", err)
			}
		}
	}
}

// Check reloads the file once. It reports whether a new config was applied.
// Content that fails to load or validate leaves the active config in place;
// the error is returned the first time that content is seen.
func (r *Reloader) Check() (bool, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(data)

	r.mu.Lock()
	seen := sum == r.sum || sum == r.badSum
	r.mu.Unlock()
	if seen {
		return false, nil
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		r.mu.Lock()
		r.badSum = sum
		r.mu.Unlock()
		return false, err
	}
	if r.overlay != nil {
		r.overlay(cfg)
	}

	r.mu.Lock()
	old := r.current
	r.current = cfg
	r.sum = sum
	r.mu.Unlock()

	d := Diff(old, cfg)
	slog.Info("config reloaded", "path", r.path, "live", d.Live(), "restart_required", d.RestartRequired)
	for _, fn := range r.apply {
		fn(d, cfg)
	}
	return true, nil
}
