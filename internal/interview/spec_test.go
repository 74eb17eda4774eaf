package interview

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func validSpec() Spec {
	return Spec{
		Position:    "Backend Engineer",
		Description: "Build and operate Go services",
		Experience:  3,
		TechStack:   "Go, PostgreSQL",
	}
}

func TestSpec_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Spec)
		want   []string
	}{
		{name: "valid", mutate: func(*Spec) {}},
		{name: "zero experience", mutate: func(s *Spec) { s.Experience = 0 }},
		{name: "position at limit", mutate: func(s *Spec) { s.Position = strings.Repeat("p", 100) }},
		{name: "empty position", mutate: func(s *Spec) { s.Position = "" }, want: []string{"Position is required"}},
		{
			name:   "long position",
			mutate: func(s *Spec) { s.Position = strings.Repeat("p", 101) },
			want:   []string{"Position must be 100 characters or less"},
		},
		{
			name:   "multibyte position counts characters",
			mutate: func(s *Spec) { s.Position = strings.Repeat("é", 100) },
		},
		{name: "short description", mutate: func(s *Spec) { s.Description = "too short" }, want: []string{"Description is required"}},
		{
			name:   "negative experience",
			mutate: func(s *Spec) { s.Experience = -1 },
			want:   []string{"Experience cannot be empty or negative"},
		},
		{
			name:   "NaN experience",
			mutate: func(s *Spec) { s.Experience = math.NaN() },
			want:   []string{"Experience cannot be empty or negative"},
		},
		{name: "empty stack", mutate: func(s *Spec) { s.TechStack = "" }, want: []string{"Tech stack must be at least a character"}},
		{
			name:   "everything wrong",
			mutate: func(s *Spec) { *s = Spec{Experience: -2} },
			want: []string{
				"Position is required",
				"Description is required",
				"Experience cannot be empty or negative",
				"Tech stack must be at least a character",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSpec()
			tt.mutate(&s)
			err := s.Validate()
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() = %v, want ErrValidation", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T is not *ValidationError", err)
			}
			if strings.Join(ve.Messages, "|") != strings.Join(tt.want, "|") {
				t.Errorf("messages = %q, want %q", ve.Messages, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	s := validSpec()
	s.Experience = 2.5
	p := BuildPrompt(s)

	for _, want := range []string{
		"generate a JSON array containing 5 technical interview questions",
		`Each object in the array should have the fields "question" and "answer".`,
		"- Job Position: Backend Engineer\n",
		"- Job Description: Build and operate Go services\n",
		"- Years of Experience Required: 2.5\n",
		"- Tech Stacks: Go, PostgreSQL\n",
		"The questions should assess skills in Go, PostgreSQL, problem-solving,",
		"Return only the JSON array, no extra text or code blocks.",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q\n%s", want, p)
		}
	}
}

func TestFormatExperience(t *testing.T) {
	t.Parallel()
	for in, want := range map[float64]string{0: "0", 3: "3", 2.5: "2.5", 10: "10"} {
		if got := FormatExperience(in); got != want {
			t.Errorf("FormatExperience(%v) = %q, want %q", in, got, want)
		}
	}
}
