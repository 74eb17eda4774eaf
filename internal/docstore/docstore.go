// Package docstore is a small collection/document store: schemaless JSON
// documents addressed by (collection, id), with equality queries and a
// conditional create used to enforce uniqueness on a set of fields.
//
// Two implementations are provided: [MemStore] for tests and single-process
// deployments, and [PostgresStore], which keeps documents in a JSONB column.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrExists is returned by CreateUnique when a matching document exists.
	ErrExists = errors.New("docstore: matching document already exists")
)

// Fields is the content of a document. Values must be JSON-encodable.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is a field value placeholder. Stores replace it with their
// own clock at write time (the database clock for PostgreSQL).
var ServerTimestamp any = serverTimestamp{}

func isServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Where is shorthand for a [Filter].
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Document is a stored document.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
	CreateTime time.Time
	UpdateTime time.Time
}

// Decode unmarshals the document data into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("docstore: decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Store is implemented by every document store backend. All methods are safe
// for concurrent use.
type Store interface {
	// Create adds a document with a generated id and returns the id.
	Create(ctx context.Context, collection string, fields Fields) (string, error)

	// Set writes the document with the given id, replacing any existing content.
	Set(ctx context.Context, collection, id string, fields Fields) error

	// Update merges fields into an existing document. Returns ErrNotFound
	// when the document does not exist.
	Update(ctx context.Context, collection, id string, fields Fields) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Get returns a document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns all documents matching every filter, oldest first.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)

	// CreateUnique adds a document unless one already matches fields on all
	// of keys, in which case it returns ErrExists. Check and insert are atomic.
	CreateUnique(ctx context.Context, collection string, fields Fields, keys ...string) (string, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// splitFields separates server-timestamp placeholders from regular values.
func splitFields(fields Fields) (data map[string]any, tsKeys []string) {
	data = make(map[string]any, len(fields))
	for k, v := range fields {
		if isServerTimestamp(v) {
			tsKeys = append(tsKeys, k)
			continue
		}
		data[k] = v
	}
	return data, tsKeys
}

// keyFilters builds the equality filters for CreateUnique from fields.
func keyFilters(fields Fields, keys []string) ([]Filter, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("docstore: create unique: no key fields")
	}
	filters := make([]Filter, 0, len(keys))
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || isServerTimestamp(v) {
			return nil, fmt.Errorf("docstore: create unique: key field %q missing", k)
		}
		filters = append(filters, Where(k, v))
	}
	return filters, nil
}

func validateFilters(filters []Filter) error {
	for _, f := range filters {
		if f.Field == "" {
			return fmt.Errorf("docstore: filter with empty field")
		}
		if isServerTimestamp(f.Value) {
			return fmt.Errorf("docstore: cannot filter on server timestamp %q", f.Field)
		}
	}
	return nil
}
