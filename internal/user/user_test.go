package user

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/mockprep/internal/auth"
	"github.com/MrWong99/mockprep/internal/docstore"
)

// countingStore counts Get calls on top of a MemStore.
type countingStore struct {
	*docstore.MemStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	c.gets++
	return c.MemStore.Get(ctx, collection, id)
}

func TestSync_EnsureDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		id        auth.Identity
		wantName  string
		wantEmail string
	}{
		{
			name:      "full identity",
			id:        auth.Identity{ID: "u1", Name: "Ada Lovelace", Email: "ada@example.com", ImageURL: "https://img/ada.png"},
			wantName:  "Ada Lovelace",
			wantEmail: "ada@example.com",
		},
		{
			name:      "fallbacks",
			id:        auth.Identity{ID: "u2"},
			wantName:  "Anonymous",
			wantEmail: "No Email",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := NewSync(docstore.NewMemStore())
			if err := s.Ensure(ctx, tt.id); err != nil {
				t.Fatalf("Ensure: %v", err)
			}
			p, err := s.Get(ctx, tt.id.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if p.ID != tt.id.ID || p.Name != tt.wantName || p.Email != tt.wantEmail || p.ImageURL != tt.id.ImageURL {
				t.Errorf("profile = %+v", p)
			}
			if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
				t.Errorf("timestamps missing: %+v", p)
			}
		})
	}
}

func TestSync_EnsureKeepsExisting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &countingStore{MemStore: docstore.NewMemStore()}
	s := NewSync(store)

	if err := s.Ensure(ctx, auth.Identity{ID: "u1", Name: "First"}); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	// A new Sync has no cache and must not overwrite the stored profile.
	if err := NewSync(store).Ensure(ctx, auth.Identity{ID: "u1", Name: "Second"}); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	p, _ := s.Get(ctx, "u1")
	if p.Name != "First" {
		t.Errorf("name = %q, want First", p.Name)
	}

	before := store.gets
	if err := s.Ensure(ctx, auth.Identity{ID: "u1"}); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if store.gets != before {
		t.Errorf("cached Ensure hit the store")
	}
}

func TestSync_GetMissing(t *testing.T) {
	t.Parallel()
	_, err := NewSync(docstore.NewMemStore()).Get(context.Background(), "ghost")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
