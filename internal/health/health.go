// Package health serves the liveness and readiness probes.
//
//   - GET /healthz answers 200 while the process can serve HTTP.
//   - GET /readyz runs every [Checker] concurrently and answers 200 only
//     when all of them pass, 503 otherwise.
//
// The readiness body lists each check with its outcome and latency:
//
//	{"status":"ok","checks":{"store":{"status":"ok","duration_ms":2}}}
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check.
type Checker struct {
	Name string

	// Check returns nil when the dependency is usable. It must honour ctx.
	Check func(ctx context.Context) error
}

// Pinger is implemented by dependencies with a cheap connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a Checker that calls p.Ping.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// ErrNotConfigured is reported by [Configured] when the dependency is absent.
var ErrNotConfigured = errors.New("not configured")

// Configured returns a Checker that passes when ok is true.
func Configured(name string, ok bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !ok {
			return ErrNotConfigured
		}
		return nil
	}}
}

type checkResult struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type report struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New returns a Handler evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.run(r.Context())
	status := http.StatusOK
	if rep.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

func (h *Handler) run(ctx context.Context) report {
	results := make([]checkResult, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			err := c.Check(cctx)
			res := checkResult{Status: "ok", DurationMs: time.Since(start).Milliseconds()}
			if err != nil {
				res.Status = "fail"
				res.Error = err.Error()
			}
			results[i] = res
		}()
	}
	wg.Wait()

	rep := report{Status: "ok", Checks: make(map[string]checkResult, len(results))}
	for i, c := range h.checkers {
		rep.Checks[c.Name] = results[i]
		if results[i].Status != "ok" {
			rep.Status = "fail"
		}
	}
	return rep
}

// Register adds /healthz and /readyz to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
