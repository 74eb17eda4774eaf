package interview

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/mockprep/internal/docstore"
	"github.com/MrWong99/mockprep/internal/generate/mock"
	"github.com/MrWong99/mockprep/internal/sanitize"
)

const fencedQuestions = "```json\n[\n" +
	`{"question":"What is a goroutine?","answer":"A lightweight thread managed by the Go runtime."},` +
	`{"question":"Explain channels.","answer":"Typed conduits for communication between goroutines."}` +
	"\n]\n```"

func newService(t *testing.T, gen *mock.Generator) (*Service, *docstore.MemStore) {
	t.Helper()
	store := docstore.NewMemStore()
	return NewService(gen, store), store
}

func TestService_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen := mock.New(fencedQuestions)
	svc, _ := newService(t, gen)

	iv, err := svc.Create(ctx, "user-1", validSpec())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if iv.ID == "" || iv.UserID != "user-1" {
		t.Errorf("interview = %+v", iv)
	}
	if iv.Position != "Backend Engineer" || iv.TechStack != "Go, PostgreSQL" || iv.Experience != 3 {
		t.Errorf("spec fields = %+v", iv.Spec)
	}
	if len(iv.Questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(iv.Questions))
	}
	if iv.Questions[0].Question != "What is a goroutine?" || iv.Questions[1].Question != "Explain channels." {
		t.Errorf("question order = %+v", iv.Questions)
	}
	if iv.CreatedAt.IsZero() || iv.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set: %+v", iv)
	}
	if gen.Calls() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.Calls())
	}
	if !strings.Contains(gen.LastPrompt(), "- Job Position: Backend Engineer") {
		t.Errorf("prompt = %q", gen.LastPrompt())
	}
}

func TestService_CreateFailuresWriteNothing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		spec      Spec
		gen       *mock.Generator
		wantErr   error
		wantCalls int
	}{
		{
			name:      "validation",
			spec:      Spec{},
			gen:       mock.New(fencedQuestions),
			wantErr:   ErrValidation,
			wantCalls: 0,
		},
		{
			name:      "generator error",
			spec:      validSpec(),
			gen:       mock.Failing(errors.New("quota exceeded")),
			wantCalls: 1,
		},
		{
			name:      "no array",
			spec:      validSpec(),
			gen:       mock.New("Sorry, I cannot help with that."),
			wantErr:   sanitize.ErrNoPayload,
			wantCalls: 1,
		},
		{
			name:      "malformed array",
			spec:      validSpec(),
			gen:       mock.New(`[{"question": "q1", "answer": }]`),
			wantErr:   sanitize.ErrInvalidFormat,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			svc, store := newService(t, tt.gen)

			_, err := svc.Create(ctx, "user-1", tt.spec)
			if err == nil {
				t.Fatal("Create succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.gen.Calls() != tt.wantCalls {
				t.Errorf("generator calls = %d, want %d", tt.gen.Calls(), tt.wantCalls)
			}
			docs, _ := store.Query(ctx, Collection)
			if len(docs) != 0 {
				t.Errorf("stored %d interviews, want 0", len(docs))
			}
		})
	}
}

func TestService_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen := &mock.Generator{Replies: []mock.Reply{
		{Text: fencedQuestions},
		{Text: `[{"question":"Describe pgx pools.","answer":"Connection pooling for PostgreSQL."}]`},
	}}
	svc, _ := newService(t, gen)

	created, err := svc.Create(ctx, "user-1", validSpec())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	spec := validSpec()
	spec.Position = "Staff Engineer"
	spec.Experience = 8
	updated, err := svc.Update(ctx, "user-1", created.ID, spec)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ID != created.ID || updated.Position != "Staff Engineer" || updated.Experience != 8 {
		t.Errorf("updated = %+v", updated)
	}
	if len(updated.Questions) != 1 || updated.Questions[0].Question != "Describe pgx pools." {
		t.Errorf("questions = %+v", updated.Questions)
	}
	if updated.UserID != "user-1" || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("owner/createdAt changed: %+v", updated)
	}
}

func TestService_UpdateKeepsDocumentOnParseFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen := &mock.Generator{Replies: []mock.Reply{{Text: fencedQuestions}, {Text: "no json here"}}}
	svc, _ := newService(t, gen)

	created, _ := svc.Create(ctx, "user-1", validSpec())
	spec := validSpec()
	spec.Position = "Changed"
	if _, err := svc.Update(ctx, "user-1", created.ID, spec); !errors.Is(err, sanitize.ErrNoPayload) {
		t.Fatalf("Update err = %v, want ErrNoPayload", err)
	}
	got, err := svc.Get(ctx, "user-1", created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Position != "Backend Engineer" || len(got.Questions) != 2 {
		t.Errorf("interview changed: %+v", got)
	}
}

func TestService_Ownership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen := mock.New(fencedQuestions)
	svc, _ := newService(t, gen)

	iv, _ := svc.Create(ctx, "owner", validSpec())

	if _, err := svc.Get(ctx, "intruder", iv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Update(ctx, "intruder", iv.ID, validSpec()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update: err = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, "intruder", iv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete: err = %v, want ErrNotFound", err)
	}
	if gen.Calls() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.Calls())
	}
	if _, err := svc.Get(ctx, "owner", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: err = %v", err)
	}
}

func TestService_DeleteDoesNotCascade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store := newService(t, mock.New(fencedQuestions))

	iv, _ := svc.Create(ctx, "user-1", validSpec())
	if _, err := store.Create(ctx, "userAnswers", docstore.Fields{"mockIdRef": iv.ID, "userId": "user-1"}); err != nil {
		t.Fatalf("seed answer: %v", err)
	}

	if err := svc.Delete(ctx, "user-1", iv.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, "user-1", iv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
	answers, _ := store.Query(ctx, "userAnswers", docstore.Where("mockIdRef", iv.ID))
	if len(answers) != 1 {
		t.Errorf("answers after delete = %d, want 1", len(answers))
	}
}

func TestService_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, mock.New(fencedQuestions))

	first := validSpec()
	first.Position = "First"
	second := validSpec()
	second.Position = "Second"
	for _, s := range []Spec{first, second} {
		if _, err := svc.Create(ctx, "user-1", s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := svc.Create(ctx, "user-2", validSpec()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Position != "First" || list[1].Position != "Second" {
		t.Errorf("list = %+v", list)
	}
}

func TestInterview_Question(t *testing.T) {
	t.Parallel()
	iv := &Interview{Questions: []QAPair{{Question: "a"}, {Question: "b"}}}
	if q, ok := iv.Question(1); !ok || q.Question != "b" {
		t.Errorf("Question(1) = %v, %v", q, ok)
	}
	for _, i := range []int{-1, 2} {
		if _, ok := iv.Question(i); ok {
			t.Errorf("Question(%d) ok, want false", i)
		}
	}
}

func TestService_PreviewStoresNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen := mock.New(fencedQuestions)
	svc, store := newService(t, gen)

	qs, err := svc.Preview(ctx, validSpec())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(qs) != 2 || qs[0].Question != "What is a goroutine?" {
		t.Errorf("questions = %+v", qs)
	}
	docs, err := store.Query(ctx, Collection)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("stored %d documents, want 0", len(docs))
	}

	if _, err := svc.Preview(ctx, Spec{}); !errors.Is(err, ErrValidation) {
		t.Errorf("Preview(empty) err = %v, want ErrValidation", err)
	}
}
