package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*MemStore)(nil)

type memDoc struct {
	data    map[string]any
	created time.Time
	updated time.Time
	seq     uint64
}

// MemStore is a thread-safe, in-memory [Store].
type MemStore struct {
	now func() time.Time

	mu   sync.RWMutex
	cols map[string]map[string]*memDoc
	seq  uint64
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		now:  time.Now,
		cols: make(map[string]map[string]*memDoc),
	}
}

// normalize converts fields to their JSON representation so stored values
// and filter values compare the same way the database would compare them.
func (s *MemStore) normalize(fields Fields, at time.Time) (map[string]any, error) {
	data, tsKeys := splitFields(fields)
	for _, k := range tsKeys {
		data[k] = at.UTC()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode fields: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: encode fields: %w", err)
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(raw, &out)
	return out, err
}

func (s *MemStore) collection(name string) map[string]*memDoc {
	c, ok := s.cols[name]
	if !ok {
		c = make(map[string]*memDoc)
		s.cols[name] = c
	}
	return c
}

// insert stores data under a new id. Must be called with s.mu held.
func (s *MemStore) insert(collection string, data map[string]any, at time.Time) string {
	id := uuid.NewString()
	s.seq++
	s.collection(collection)[id] = &memDoc{data: data, created: at, updated: at, seq: s.seq}
	return id
}

// Create implements [Store.Create].
func (s *MemStore) Create(_ context.Context, collection string, fields Fields) (string, error) {
	at := s.now()
	data, err := s.normalize(fields, at)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(collection, data, at), nil
}

// Set implements [Store.Set].
func (s *MemStore) Set(_ context.Context, collection, id string, fields Fields) error {
	at := s.now()
	data, err := s.normalize(fields, at)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if existing, ok := c[id]; ok {
		existing.data = data
		existing.updated = at
		return nil
	}
	s.seq++
	c[id] = &memDoc{data: data, created: at, updated: at, seq: s.seq}
	return nil
}

// Update implements [Store.Update].
func (s *MemStore) Update(_ context.Context, collection, id string, fields Fields) error {
	at := s.now()
	data, err := s.normalize(fields, at)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.cols[collection][id]
	if !ok {
		return ErrNotFound
	}
	merged := make(map[string]any, len(doc.data)+len(data))
	for k, v := range doc.data {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	doc.data = merged
	doc.updated = at
	return nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cols[collection], id)
	return nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.cols[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return toDocument(collection, id, doc)
}

// Query implements [Store.Query].
func (s *MemStore) Query(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	want, err := normalizeFilters(filters)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		id  string
		doc *memDoc
	}
	var hits []hit
	for id, doc := range s.cols[collection] {
		if matches(doc.data, want) {
			hits = append(hits, hit{id, doc})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if c := a.doc.created.Compare(b.doc.created); c != 0 {
			return c
		}
		return int(a.doc.seq) - int(b.doc.seq)
	})

	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		d, err := toDocument(collection, h.id, h.doc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// CreateUnique implements [Store.CreateUnique]. The existence check and the
// insert happen under one write lock.
func (s *MemStore) CreateUnique(_ context.Context, collection string, fields Fields, keys ...string) (string, error) {
	filters, err := keyFilters(fields, keys)
	if err != nil {
		return "", err
	}
	want, err := normalizeFilters(filters)
	if err != nil {
		return "", err
	}
	at := s.now()
	data, err := s.normalize(fields, at)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.cols[collection] {
		if matches(doc.data, want) {
			return "", ErrExists
		}
	}
	return s.insert(collection, data, at), nil
}

// Ping implements [Store.Ping].
func (s *MemStore) Ping(context.Context) error { return nil }

func normalizeFilters(filters []Filter) (map[string]any, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	want := make(map[string]any, len(filters))
	for _, f := range filters {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("docstore: encode filter %q: %w", f.Field, err)
		}
		want[f.Field] = v
	}
	return want, nil
}

func matches(data, want map[string]any) bool {
	for k, v := range want {
		got, ok := data[k]
		if !ok || !reflect.DeepEqual(got, v) {
			return false
		}
	}
	return true
}

func toDocument(collection, id string, doc *memDoc) (Document, error) {
	raw, err := json.Marshal(doc.data)
	if err != nil {
		return Document{}, fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	return Document{
		Collection: collection,
		ID:         id,
		Data:       raw,
		CreateTime: doc.created,
		UpdateTime: doc.updated,
	}, nil
}
