// Package generate defines the text generation port used by every
// AI-mediated flow, and the adapter that serves it from an [llm.Provider].
//
// A call to [Generator.Generate] makes exactly one outbound request. There is
// no retry, caching or streaming: callers get either non-empty text or an error.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mockprep/internal/observe"
	"github.com/MrWong99/mockprep/internal/resilience"
	"github.com/MrWong99/mockprep/pkg/provider/llm"
)

// ErrEmptyResponse is returned when the model replies with no text.
var ErrEmptyResponse = errors.New("generate: empty response")

// Generator turns a prompt into raw model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to [Generator].
type Func func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Option configures a [ProviderGenerator].
type Option func(*ProviderGenerator)

// WithMetrics records request counts and latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *ProviderGenerator) { g.metrics = m }
}

// WithBreaker guards outbound calls with b. An open breaker fails the call
// with [resilience.ErrCircuitOpen] without contacting the provider.
func WithBreaker(b *resilience.Breaker) Option {
	return func(g *ProviderGenerator) { g.breaker = b }
}

// WithName sets the provider label used in metrics and spans.
func WithName(name string) Option {
	return func(g *ProviderGenerator) { g.name = name }
}

// ProviderGenerator serves [Generator] from an [llm.Provider] by sending the
// prompt as a single user message.
type ProviderGenerator struct {
	provider llm.Provider
	name     string
	metrics  *observe.Metrics
	breaker  *resilience.Breaker
}

var _ Generator = (*ProviderGenerator)(nil)

// New wraps p. The provider's model name is used as the label unless
// [WithName] overrides it.
func New(p llm.Provider, opts ...Option) *ProviderGenerator {
	g := &ProviderGenerator{provider: p, name: p.Model()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Name returns the provider label.
func (g *ProviderGenerator) Name() string { return g.name }

// Generate implements [Generator].
func (g *ProviderGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "generate",
		trace.WithAttributes(
			attribute.String("generate.provider", g.name),
			attribute.Int("generate.prompt_chars", len(prompt)),
		),
	)
	defer span.End()

	start := time.Now()
	var text string
	call := func(ctx context.Context) error {
		resp, err := g.provider.Complete(ctx, llm.UserPrompt(prompt))
		if err != nil {
			return err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return ErrEmptyResponse
		}
		text = resp.Content
		return nil
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}

	g.record(ctx, err, time.Since(start))
	if err != nil {
		observe.RecordError(span, err)
		if errors.Is(err, ErrEmptyResponse) || errors.Is(err, resilience.ErrCircuitOpen) {
			return "", err
		}
		return "", fmt.Errorf("generate: %w", err)
	}
	span.SetAttributes(attribute.Int("generate.response_chars", len(text)))
	return text, nil
}

func (g *ProviderGenerator) record(ctx context.Context, err error, d time.Duration) {
	if g.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = "rejected"
	case errors.Is(err, ErrEmptyResponse):
		status = "empty"
	case err != nil:
		status = "error"
	}
	g.metrics.RecordGeneration(ctx, g.name, status, d.Seconds())
}
