package answer

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/mockprep/internal/generate"
	"github.com/MrWong99/mockprep/internal/observe"
	"github.com/MrWong99/mockprep/internal/sanitize"
)

// Result is a grading outcome. Rating is expected between 1 and 10 but is
// kept as returned by the model.
type Result struct {
	Rating   float64 `json:"rating"`
	Feedback string  `json:"feedback"`
}

// Fallback is returned whenever grading fails.
var Fallback = Result{Rating: 0, Feedback: "Unable to generate feedback"}

var errNoGrade = errors.New("answer: reply has neither rating nor feedback")

// BuildPrompt returns the grading instruction comparing userAnswer against
// the reference answer.
func BuildPrompt(question, correct, userAnswer string) string {
	var b strings.Builder
	b.WriteString(`Question: "` + question + "\"\n")
	b.WriteString(`User Answer: "` + userAnswer + "\"\n")
	b.WriteString(`Correct Answer: "` + correct + "\"\n")
	b.WriteString("Please compare the user's answer to the correct answer, and provide a rating (from 1 to 10) based on answer quality, and offer feedback for improvement.\n")
	b.WriteString(`Return the result in JSON format with the fields "ratings" (number) and "feedback" (string).` + "\n")
	return b.String()
}

// gradingReply accepts the requested "ratings" field and the singular
// "rating" some models answer with.
type gradingReply struct {
	Ratings  *float64 `json:"ratings"`
	Rating   *float64 `json:"rating"`
	Feedback string   `json:"feedback"`
}

// Grader asks the text generator to rate answers.
type Grader struct {
	gen     generate.Generator
	metrics *observe.Metrics
}

// NewGrader returns a Grader using gen. m may be nil.
func NewGrader(gen generate.Generator, m *observe.Metrics) *Grader {
	return &Grader{gen: gen, metrics: m}
}

// Grade rates userAnswer. It never fails: generation and parse errors are
// logged and reported as [Fallback].
func (g *Grader) Grade(ctx context.Context, question, correct, userAnswer string) Result {
	res, err := g.grade(ctx, question, correct, userAnswer)
	if err != nil {
		observe.Logger(ctx).Warn("grading failed, using fallback", "err", err)
		g.record(ctx, "fallback")
		return Fallback
	}
	g.record(ctx, "graded")
	return res
}

func (g *Grader) grade(ctx context.Context, question, correct, userAnswer string) (Result, error) {
	raw, err := g.gen.Generate(ctx, BuildPrompt(question, correct, userAnswer))
	if err != nil {
		return Result{}, err
	}
	reply, err := sanitize.Parse[gradingReply](raw, sanitize.Object)
	if err != nil {
		return Result{}, err
	}
	res := Result{Feedback: reply.Feedback}
	switch {
	case reply.Ratings != nil:
		res.Rating = *reply.Ratings
	case reply.Rating != nil:
		res.Rating = *reply.Rating
	case reply.Feedback == "":
		return Result{}, errNoGrade
	}
	return res, nil
}

func (g *Grader) record(ctx context.Context, outcome string) {
	if g.metrics != nil {
		g.metrics.RecordGrading(ctx, outcome)
	}
}
