package interview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/mockprep/internal/docstore"
	"github.com/MrWong99/mockprep/internal/generate"
	"github.com/MrWong99/mockprep/internal/observe"
	"github.com/MrWong99/mockprep/internal/sanitize"
)

// Collection is the document collection holding interviews.
const Collection = "interviews"

// ErrNotFound is returned when an interview does not exist or belongs to a
// different user.
var ErrNotFound = errors.New("interview: not found")

// QAPair is one generated question with its reference answer.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Interview is a persisted interview.
type Interview struct {
	ID string `json:"id"`
	Spec
	UserID    string    `json:"userId"`
	Questions []QAPair  `json:"questions"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Question returns the question at index.
func (iv *Interview) Question(index int) (QAPair, bool) {
	if index < 0 || index >= len(iv.Questions) {
		return QAPair{}, false
	}
	return iv.Questions[index], true
}

// Option configures a [Service].
type Option func(*Service)

// WithMetrics records persisted generations on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service creates, regenerates, reads and deletes interviews.
type Service struct {
	gen     generate.Generator
	store   docstore.Store
	metrics *observe.Metrics
}

// NewService returns a Service generating questions with gen and persisting
// interviews in store.
func NewService(gen generate.Generator, store docstore.Store, opts ...Option) *Service {
	s := &Service{gen: gen, store: store}
	for _, o := range opts {
		o(s)
	}
	return s
}

// questions runs the generator and parses its reply into QA pairs.
func (s *Service) questions(ctx context.Context, spec Spec) ([]QAPair, error) {
	raw, err := s.gen.Generate(ctx, BuildPrompt(spec))
	if err != nil {
		return nil, fmt.Errorf("interview: generate: %w", err)
	}
	qs, err := sanitize.Parse[[]QAPair](raw, sanitize.Array)
	if err != nil {
		return nil, fmt.Errorf("interview: parse: %w", err)
	}
	if qs == nil {
		qs = []QAPair{}
	}
	return qs, nil
}

// Preview validates spec and generates questions without storing anything.
func (s *Service) Preview(ctx context.Context, spec Spec) ([]QAPair, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return s.questions(ctx, spec)
}

func specFields(spec Spec, qs []QAPair) docstore.Fields {
	return docstore.Fields{
		"position":    spec.Position,
		"description": spec.Description,
		"experience":  spec.Experience,
		"techStack":   spec.TechStack,
		"questions":   qs,
		"updatedAt":   docstore.ServerTimestamp,
	}
}

// Create validates spec, generates questions and stores a new interview owned
// by userID. Nothing is written unless generation and parsing succeed.
func (s *Service) Create(ctx context.Context, userID string, spec Spec) (*Interview, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	qs, err := s.questions(ctx, spec)
	if err != nil {
		return nil, err
	}

	fields := specFields(spec, qs)
	fields["userId"] = userID
	fields["createdAt"] = docstore.ServerTimestamp

	id, err := s.store.Create(ctx, Collection, fields)
	if err != nil {
		return nil, fmt.Errorf("interview: create: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordInterview(ctx, "create")
	}
	observe.Logger(ctx).Info("interview created", "id", id, "user", userID, "questions", len(qs))
	return s.Get(ctx, userID, id)
}

// Update validates spec, regenerates the questions and overwrites the spec
// fields and questions of an existing interview.
func (s *Service) Update(ctx context.Context, userID, id string, spec Spec) (*Interview, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	qs, err := s.questions(ctx, spec)
	if err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, Collection, id, specFields(spec, qs)); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("interview: update %s: %w", id, err)
	}
	if s.metrics != nil {
		s.metrics.RecordInterview(ctx, "update")
	}
	observe.Logger(ctx).Info("interview updated", "id", id, "user", userID, "questions", len(qs))
	return s.Get(ctx, userID, id)
}

// Delete removes an interview. Saved answers referencing it are kept.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, Collection, id); err != nil {
		return fmt.Errorf("interview: delete %s: %w", id, err)
	}
	observe.Logger(ctx).Info("interview deleted", "id", id, "user", userID)
	return nil
}

// Get returns the interview with id if it is owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*Interview, error) {
	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("interview: get %s: %w", id, err)
	}
	iv, err := decode(doc)
	if err != nil {
		return nil, err
	}
	if iv.UserID != userID {
		return nil, ErrNotFound
	}
	return iv, nil
}

// List returns the interviews owned by userID, oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]*Interview, error) {
	docs, err := s.store.Query(ctx, Collection, docstore.Where("userId", userID))
	if err != nil {
		return nil, fmt.Errorf("interview: list: %w", err)
	}
	out := make([]*Interview, 0, len(docs))
	for _, d := range docs {
		iv, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

func decode(doc docstore.Document) (*Interview, error) {
	var iv Interview
	if err := doc.Decode(&iv); err != nil {
		return nil, fmt.Errorf("interview: %w", err)
	}
	iv.ID = doc.ID
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = doc.CreateTime
	}
	if iv.UpdatedAt.IsZero() {
		iv.UpdatedAt = doc.UpdateTime
	}
	return &iv, nil
}
