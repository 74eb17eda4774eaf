package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type answerDoc struct {
	MockIDRef string    `json:"mockIdRef"`
	Question  string    `json:"question"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"createdAt"`
}

func newClockedStore(start time.Time) *MemStore {
	s := NewMemStore()
	now := start
	var mu sync.Mutex
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	return s
}

func TestMemStore_CreateGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newClockedStore(start)

	id, err := s.Create(ctx, "userAnswers", Fields{
		"mockIdRef": "m1",
		"question":  "What is a goroutine?",
		"userId":    "u1",
		"rating":    7,
		"createdAt": ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty id")
	}

	doc, err := s.Get(ctx, "userAnswers", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var got answerDoc
	if err := doc.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.MockIDRef != "m1" || got.Rating != 7 || got.UserID != "u1" {
		t.Errorf("decoded = %+v", got)
	}
	if !got.CreatedAt.Equal(start.Add(time.Second)) {
		t.Errorf("createdAt = %v, want %v", got.CreatedAt, start.Add(time.Second))
	}
	if !doc.CreateTime.Equal(doc.UpdateTime) {
		t.Errorf("CreateTime %v != UpdateTime %v", doc.CreateTime, doc.UpdateTime)
	}
}

func TestMemStore_GetMissing(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	_, err := s.Get(context.Background(), "interviews", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_UpdateMerges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newClockedStore(time.Unix(0, 0))

	id, err := s.Create(ctx, "interviews", Fields{"position": "Go dev", "experience": 3})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Update(ctx, "interviews", id, Fields{"experience": 5, "updatedAt": ServerTimestamp}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, _ := s.Get(ctx, "interviews", id)
	var got struct {
		Position   string     `json:"position"`
		Experience int        `json:"experience"`
		UpdatedAt  *time.Time `json:"updatedAt"`
	}
	if err := doc.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Position != "Go dev" || got.Experience != 5 || got.UpdatedAt == nil {
		t.Errorf("merged = %+v", got)
	}
	if !doc.UpdateTime.After(doc.CreateTime) {
		t.Errorf("UpdateTime %v not after CreateTime %v", doc.UpdateTime, doc.CreateTime)
	}

	if err := s.Update(ctx, "interviews", "missing", Fields{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing: err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_SetReplaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Set(ctx, "users", "u1", Fields{"name": "Ada", "email": "ada@example.com"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "users", "u1", Fields{"name": "Ada L."}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	doc, err := s.Get(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(doc.Data) != `{"name":"Ada L."}` {
		t.Errorf("data = %s", doc.Data)
	}
}

func TestMemStore_DeleteIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	id, _ := s.Create(ctx, "interviews", Fields{"position": "x"})
	if err := s.Delete(ctx, "interviews", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "interviews", id); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Get(ctx, "interviews", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v", err)
	}
}

func TestMemStore_Query(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newClockedStore(time.Unix(0, 0))

	for _, f := range []Fields{
		{"userId": "u1", "mockIdRef": "m1", "rating": 4},
		{"userId": "u2", "mockIdRef": "m1", "rating": 9},
		{"userId": "u1", "mockIdRef": "m2", "rating": 6},
		{"userId": "u1", "mockIdRef": "m1", "rating": 8},
	} {
		if _, err := s.Create(ctx, "userAnswers", f); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	tests := []struct {
		name    string
		filters []Filter
		want    []int
	}{
		{name: "no filters", want: []int{4, 9, 6, 8}},
		{name: "one field", filters: []Filter{Where("userId", "u1")}, want: []int{4, 6, 8}},
		{name: "two fields", filters: []Filter{Where("userId", "u1"), Where("mockIdRef", "m1")}, want: []int{4, 8}},
		{name: "numeric value", filters: []Filter{Where("rating", 9)}, want: []int{9}},
		{name: "no match", filters: []Filter{Where("userId", "u3")}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Query(ctx, "userAnswers", tt.filters...)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			var got []int
			for _, d := range docs {
				var a answerDoc
				if err := d.Decode(&a); err != nil {
					t.Fatalf("Decode: %v", err)
				}
				got = append(got, a.Rating)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ratings = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("ratings = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestMemStore_QueryRejectsBadFilter(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	if _, err := s.Query(context.Background(), "c", Where("", 1)); err == nil {
		t.Error("expected error for empty field")
	}
	if _, err := s.Query(context.Background(), "c", Where("createdAt", ServerTimestamp)); err == nil {
		t.Error("expected error for server timestamp filter")
	}
}

func TestMemStore_CreateUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	fields := Fields{"mockIdRef": "m1", "question": "q1", "userId": "u1", "user_ans": "a"}
	if _, err := s.CreateUnique(ctx, "userAnswers", fields, "mockIdRef", "question", "userId"); err != nil {
		t.Fatalf("first CreateUnique: %v", err)
	}

	fields["user_ans"] = "different"
	_, err := s.CreateUnique(ctx, "userAnswers", fields, "mockIdRef", "question", "userId")
	if !errors.Is(err, ErrExists) {
		t.Fatalf("second CreateUnique: err = %v, want ErrExists", err)
	}

	other := Fields{"mockIdRef": "m1", "question": "q1", "userId": "u2"}
	if _, err := s.CreateUnique(ctx, "userAnswers", other, "mockIdRef", "question", "userId"); err != nil {
		t.Fatalf("other user CreateUnique: %v", err)
	}

	if _, err := s.CreateUnique(ctx, "userAnswers", other); err == nil {
		t.Error("expected error with no keys")
	}
	if _, err := s.CreateUnique(ctx, "userAnswers", other, "missing"); err == nil {
		t.Error("expected error for missing key field")
	}
}

func TestMemStore_CreateUniqueConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateUnique(ctx, "userAnswers",
				Fields{"mockIdRef": "m1", "question": "q", "userId": "u1"},
				"mockIdRef", "question", "userId")
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, ErrExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	docs, _ := s.Query(ctx, "userAnswers")
	if len(docs) != 1 {
		t.Fatalf("stored = %d, want 1", len(docs))
	}
}
