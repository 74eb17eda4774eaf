package docstore

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mockprep/internal/observe"
)

// Instrumented wraps a [Store] with spans and latency metrics.
type Instrumented struct {
	next    Store
	metrics *observe.Metrics
}

var _ Store = (*Instrumented)(nil)

// Instrument returns s decorated with tracing and, when m is non-nil, the
// mockprep.store.duration histogram.
func Instrument(s Store, m *observe.Metrics) *Instrumented {
	return &Instrumented{next: s, metrics: m}
}

func (i *Instrumented) begin(ctx context.Context, op, collection string) (context.Context, func(error)) {
	ctx, span := observe.StartSpan(ctx, "docstore."+op,
		trace.WithAttributes(attribute.String("docstore.collection", collection)),
	)
	start := time.Now()
	return ctx, func(err error) {
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExists) {
			observe.RecordError(span, err)
		}
		if i.metrics != nil {
			i.metrics.RecordStoreOp(ctx, op, collection, time.Since(start).Seconds())
		}
		span.End()
	}
}

func (i *Instrumented) Create(ctx context.Context, collection string, fields Fields) (id string, err error) {
	ctx, done := i.begin(ctx, "create", collection)
	defer func() { done(err) }()
	return i.next.Create(ctx, collection, fields)
}

func (i *Instrumented) Set(ctx context.Context, collection, id string, fields Fields) (err error) {
	ctx, done := i.begin(ctx, "set", collection)
	defer func() { done(err) }()
	return i.next.Set(ctx, collection, id, fields)
}

func (i *Instrumented) Update(ctx context.Context, collection, id string, fields Fields) (err error) {
	ctx, done := i.begin(ctx, "update", collection)
	defer func() { done(err) }()
	return i.next.Update(ctx, collection, id, fields)
}

func (i *Instrumented) Delete(ctx context.Context, collection, id string) (err error) {
	ctx, done := i.begin(ctx, "delete", collection)
	defer func() { done(err) }()
	return i.next.Delete(ctx, collection, id)
}

func (i *Instrumented) Get(ctx context.Context, collection, id string) (doc Document, err error) {
	ctx, done := i.begin(ctx, "get", collection)
	defer func() { done(err) }()
	return i.next.Get(ctx, collection, id)
}

func (i *Instrumented) Query(ctx context.Context, collection string, filters ...Filter) (docs []Document, err error) {
	ctx, done := i.begin(ctx, "query", collection)
	defer func() { done(err) }()
	return i.next.Query(ctx, collection, filters...)
}

func (i *Instrumented) CreateUnique(ctx context.Context, collection string, fields Fields, keys ...string) (id string, err error) {
	ctx, done := i.begin(ctx, "create_unique", collection)
	defer func() { done(err) }()
	return i.next.CreateUnique(ctx, collection, fields, keys...)
}

func (i *Instrumented) Ping(ctx context.Context) error {
	return i.next.Ping(ctx)
}
