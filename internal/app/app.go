// Package app wires the mockprep subsystems into a running HTTP service.
//
// New builds every subsystem from the config and the providers created by
// main. Run serves HTTP and evicts idle answer attempts until the context
// ends. Reload applies live config changes and Shutdown releases what New
// acquired.
//
// Tests inject doubles through options (WithStore, WithMetrics) and drive the
// service through [App.Handler].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mockprep/internal/answer"
	"github.com/MrWong99/mockprep/internal/api"
	"github.com/MrWong99/mockprep/internal/auth"
	"github.com/MrWong99/mockprep/internal/config"
	"github.com/MrWong99/mockprep/internal/docstore"
	"github.com/MrWong99/mockprep/internal/generate"
	"github.com/MrWong99/mockprep/internal/health"
	"github.com/MrWong99/mockprep/internal/interview"
	"github.com/MrWong99/mockprep/internal/mcpserver"
	"github.com/MrWong99/mockprep/internal/observe"
	"github.com/MrWong99/mockprep/internal/resilience"
	"github.com/MrWong99/mockprep/internal/user"
	"github.com/MrWong99/mockprep/pkg/provider/llm"
	"github.com/MrWong99/mockprep/pkg/provider/stt"
)

// shutdownTimeout bounds draining in-flight requests once Run's context ends.
const shutdownTimeout = 15 * time.Second

// sttSampleRate is the PCM rate clients stream answers at.
const sttSampleRate = 16000

// Providers holds the provider instances built by main from the registry.
type Providers struct {
	// LLM is required. It serves every generation call.
	LLM llm.Provider

	// LLMName labels LLM in metrics, spans and breaker transitions.
	LLMName string

	// STT is optional. Without it the answer stream endpoint answers 501.
	STT stt.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	store          docstore.Store
	metrics        *observe.Metrics
	metricsHandler http.Handler

	verifier  *auth.Verifier
	breaker   *resilience.Breaker
	generator generate.Generator
	attempts  *answer.Manager
	handler   http.Handler
	server    *http.Server

	// idleTimeout is the attempt eviction age in nanoseconds; Reload may
	// change it while Run sweeps.
	idleTimeout atomic.Int64

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore uses s instead of creating a store from config.
func WithStore(s docstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// New creates an App. The store is opened (and migrated for PostgreSQL)
// synchronously.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	a := &App{cfg: cfg, providers: providers, version: "dev"}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.idleTimeout.Store(int64(cfg.Attempts.IdleTimeout))

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	users := user.NewSync(a.store)
	verifier, err := auth.NewVerifier(auth.Config{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		OnIdentity: users.Hook,
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: auth.jwt_secret: %w", err)
	}
	a.verifier = verifier
	a.initGenerator()
	a.initHTTP(users)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		switch a.cfg.Store.Backend {
		case config.StorePostgres:
			pg, err := docstore.Open(ctx, a.cfg.Store.PostgresDSN)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
			a.store = pg
			slog.Info("document store ready", "backend", "postgres")
		default:
			a.store = docstore.NewMemStore()
			slog.Warn("using in-memory document store; data is lost on restart")
		}
	}
	a.store = docstore.Instrument(a.store, a.metrics)
	return nil
}

// initGenerator puts the configured provider behind a fail-fast breaker.
func (a *App) initGenerator() {
	name := a.providers.LLMName
	if name == "" {
		name = a.providers.LLM.Model()
	}
	a.breaker = resilience.New(resilience.Config{
		Name:         name,
		MaxFailures:  a.cfg.Generation.Breaker.MaxFailures,
		ResetTimeout: a.cfg.Generation.Breaker.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("generation breaker state changed", "provider", name, "from", from, "to", to)
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})
	a.generator = generate.New(a.providers.LLM,
		generate.WithName(name),
		generate.WithMetrics(a.metrics),
		generate.WithBreaker(a.breaker),
	)
}

func (a *App) initHTTP(users *user.Sync) {
	interviews := interview.NewService(a.generator, a.store, interview.WithMetrics(a.metrics))
	grader := answer.NewGrader(a.generator, a.metrics)
	repo := answer.NewRepository(a.store, a.metrics)

	mgrOpts := []answer.ManagerOption{answer.WithManagerMetrics(a.metrics)}
	if a.providers.STT != nil {
		mgrOpts = append(mgrOpts, answer.WithRecognizer(a.providers.STT, stt.StreamConfig{
			SampleRate: sttSampleRate,
			Channels:   1,
		}))
	}
	a.attempts = answer.NewManager(interviews, grader, repo, mgrOpts...)

	mux := http.NewServeMux()
	api.New(api.Config{
		Interviews:     interviews,
		Attempts:       a.attempts,
		Answers:        repo,
		Users:          users,
		Metrics:        a.metrics,
		Auth:           a.verifier,
		OriginPatterns: a.cfg.Server.AllowedOrigins,
	}).Register(mux)

	health.New(
		health.Ping("store", a.store),
		health.Configured("generator", a.generator != nil),
	).Register(mux)

	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	if a.cfg.MCP.Enabled {
		mux.Handle(a.cfg.MCP.Path, a.verifier.Middleware(mcpserver.New(interviews, grader, a.version).Handler()))
		slog.Info("mcp endpoint enabled", "path", a.cfg.MCP.Path)
	}

	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Reload applies the live parts of a config change: the generation breaker
// limits and the attempt idle timeout. The log level is owned by main.
func (a *App) Reload(d config.ConfigDiff) {
	if d.BreakerChanged {
		a.breaker.SetLimits(d.Breaker.MaxFailures, d.Breaker.ResetTimeout)
		n, reset := a.breaker.Limits()
		slog.Info("generation breaker limits updated", "max_failures", n, "reset_timeout", reset)
	}
	if d.AttemptsChanged {
		a.idleTimeout.Store(int64(d.Attempts.IdleTimeout))
		slog.Info("attempt idle timeout updated", "idle_timeout", d.Attempts.IdleTimeout)
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests for
// up to 15 seconds. Alongside it evicts idle answer attempts. It returns nil
// after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.sweepAttempts(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// sweepAttempts evicts idle attempts every sweep interval until ctx is done.
func (a *App) sweepAttempts(ctx context.Context) {
	interval := a.cfg.Attempts.SweepInterval
	if interval <= 0 {
		interval = config.DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.attempts.Sweep(ctx, time.Duration(a.idleTimeout.Load()))
		}
	}
}

// closeAll runs the closers registered so far. It is used when New fails
// after acquiring resources.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
}

// Shutdown releases subsystems in order. Remaining closers are skipped once
// ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers), "open_attempts", a.attempts.Len())
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
