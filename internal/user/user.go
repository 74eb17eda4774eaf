// Package user keeps a profile document for every authenticated user.
package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/mockprep/internal/auth"
	"github.com/MrWong99/mockprep/internal/docstore"
	"github.com/MrWong99/mockprep/internal/observe"
)

// Collection holds one document per user, keyed by user id.
const Collection = "users"

// Profile is a stored user profile.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sync creates profiles on first sight and remembers which users it has
// already ensured.
type Sync struct {
	store docstore.Store

	mu    sync.Mutex
	known map[string]bool
}

// NewSync returns a Sync backed by store.
func NewSync(store docstore.Store) *Sync {
	return &Sync{store: store, known: make(map[string]bool)}
}

// Ensure creates the profile for id unless it exists. An existing profile is
// never overwritten.
func (s *Sync) Ensure(ctx context.Context, id auth.Identity) error {
	s.mu.Lock()
	seen := s.known[id.ID]
	s.mu.Unlock()
	if seen {
		return nil
	}

	_, err := s.store.Get(ctx, Collection, id.ID)
	switch {
	case err == nil:
	case errors.Is(err, docstore.ErrNotFound):
		name := id.Name
		if name == "" {
			name = "Anonymous"
		}
		email := id.Email
		if email == "" {
			email = "No Email"
		}
		err = s.store.Set(ctx, Collection, id.ID, docstore.Fields{
			"id":        id.ID,
			"name":      name,
			"email":     email,
			"imageUrl":  id.ImageURL,
			"createdAt": docstore.ServerTimestamp,
			"updatedAt": docstore.ServerTimestamp,
		})
		if err != nil {
			return fmt.Errorf("user: create %s: %w", id.ID, err)
		}
		observe.Logger(ctx).Info("user profile created", "user", id.ID)
	default:
		return fmt.Errorf("user: get %s: %w", id.ID, err)
	}

	s.mu.Lock()
	s.known[id.ID] = true
	s.mu.Unlock()
	return nil
}

// Hook adapts Ensure to [auth.Config.OnIdentity]. Failures are logged and do
// not block the request.
func (s *Sync) Hook(ctx context.Context, id auth.Identity) {
	if err := s.Ensure(ctx, id); err != nil {
		observe.Logger(ctx).Warn("failed to store user profile", "user", id.ID, "err", err)
	}
}

// Get returns the stored profile.
func (s *Sync) Get(ctx context.Context, id string) (*Profile, error) {
	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return nil, fmt.Errorf("user: get %s: %w", id, err)
	}
	var p Profile
	if err := doc.Decode(&p); err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return &p, nil
}
