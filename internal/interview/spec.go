// Package interview implements the interview generation flow: validating a
// job description, asking the text generator for question/answer pairs and
// persisting the resulting interview.
package interview

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxPositionLength is the maximum position length in characters.
const MaxPositionLength = 100

// MinDescriptionLength is the minimum description length in characters.
const MinDescriptionLength = 10

// ErrValidation is matched by every [ValidationError].
var ErrValidation = errors.New("interview: invalid spec")

// ValidationError lists every problem found in a [Spec].
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string { return strings.Join(e.Messages, "\n") }

// Is reports whether target is [ErrValidation].
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Spec is the user-authored job information an interview is generated from.
type Spec struct {
	Position    string  `json:"position"`
	Description string  `json:"description"`
	Experience  float64 `json:"experience"`
	TechStack   string  `json:"techStack"`
}

// Validate checks every field and returns a [*ValidationError] holding all
// violations, or nil.
func (s Spec) Validate() error {
	var msgs []string
	switch n := utf8.RuneCountInString(s.Position); {
	case n == 0:
		msgs = append(msgs, "Position is required")
	case n > MaxPositionLength:
		msgs = append(msgs, "Position must be 100 characters or less")
	}
	if utf8.RuneCountInString(s.Description) < MinDescriptionLength {
		msgs = append(msgs, "Description is required")
	}
	if math.IsNaN(s.Experience) || s.Experience < 0 {
		msgs = append(msgs, "Experience cannot be empty or negative")
	}
	if s.TechStack == "" {
		msgs = append(msgs, "Tech stack must be at least a character")
	}
	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Messages: msgs}
}

// FormatExperience renders years of experience without a trailing ".0".
func FormatExperience(years float64) string {
	return strconv.FormatFloat(years, 'f', -1, 64)
}

// BuildPrompt returns the question generation instruction for s.
func BuildPrompt(s Spec) string {
	var b strings.Builder
	b.WriteString("As an experienced prompt engineer, generate a JSON array containing 5 technical interview questions\n")
	b.WriteString("along with detailed answers based on the following job information.\n")
	b.WriteString("Each object in the array should have the fields \"question\" and \"answer\".\n\n")
	b.WriteString("Job Information:\n")
	b.WriteString("- Job Position: " + s.Position + "\n")
	b.WriteString("- Job Description: " + s.Description + "\n")
	b.WriteString("- Years of Experience Required: " + FormatExperience(s.Experience) + "\n")
	b.WriteString("- Tech Stacks: " + s.TechStack + "\n\n")
	b.WriteString("The questions should assess skills in " + s.TechStack + ", problem-solving,\n")
	b.WriteString("and handling complex requirements.\n")
	b.WriteString("Return only the JSON array, no extra text or code blocks.\n")
	return b.String()
}
