package answer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/mockprep/internal/docstore"
	"github.com/MrWong99/mockprep/internal/observe"
)

// Collection is the document collection holding saved answers.
const Collection = "userAnswers"

// ErrAlreadyAnswered is returned when the user already saved an answer to
// the same question.
var ErrAlreadyAnswered = errors.New("You have already answered this question") //nolint:staticcheck // user-facing message

// AnsweredQuestion is a saved, graded answer.
type AnsweredQuestion struct {
	ID            string    `json:"id"`
	InterviewID   string    `json:"mockIdRef"`
	Question      string    `json:"question"`
	CorrectAnswer string    `json:"correct_ans"`
	UserAnswer    string    `json:"user_ans"`
	Feedback      string    `json:"feedback"`
	Rating        float64   `json:"rating"`
	UserID        string    `json:"userId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Summary aggregates the saved answers of one interview.
type Summary struct {
	Answers       []AnsweredQuestion `json:"answers"`
	Count         int                `json:"count"`
	AverageRating float64            `json:"averageRating"`
}

// Summarize computes the average rating of answers.
func Summarize(answers []AnsweredQuestion) Summary {
	s := Summary{Answers: answers, Count: len(answers)}
	if s.Answers == nil {
		s.Answers = []AnsweredQuestion{}
	}
	if len(answers) == 0 {
		return s
	}
	var total float64
	for _, a := range answers {
		total += a.Rating
	}
	s.AverageRating = total / float64(len(answers))
	return s
}

// Repository persists graded answers.
type Repository struct {
	store   docstore.Store
	metrics *observe.Metrics
}

// NewRepository returns a Repository on store. m may be nil.
func NewRepository(store docstore.Store, m *observe.Metrics) *Repository {
	return &Repository{store: store, metrics: m}
}

// SaveOnce stores a unless an answer by the same user to the same question
// exists, in which case it returns [ErrAlreadyAnswered].
func (r *Repository) SaveOnce(ctx context.Context, a AnsweredQuestion) (string, error) {
	fields := docstore.Fields{
		"mockIdRef":   a.InterviewID,
		"question":    a.Question,
		"correct_ans": a.CorrectAnswer,
		"user_ans":    a.UserAnswer,
		"feedback":    a.Feedback,
		"rating":      a.Rating,
		"userId":      a.UserID,
		"createdAt":   docstore.ServerTimestamp,
	}
	id, err := r.store.CreateUnique(ctx, Collection, fields, "userId", "question")
	switch {
	case errors.Is(err, docstore.ErrExists):
		r.record(ctx, "duplicate")
		return "", ErrAlreadyAnswered
	case err != nil:
		r.record(ctx, "error")
		return "", fmt.Errorf("answer: save: %w", err)
	}
	r.record(ctx, "saved")
	return id, nil
}

// ListForInterview returns userID's saved answers for interviewID, oldest first.
func (r *Repository) ListForInterview(ctx context.Context, userID, interviewID string) ([]AnsweredQuestion, error) {
	docs, err := r.store.Query(ctx, Collection,
		docstore.Where("userId", userID),
		docstore.Where("mockIdRef", interviewID),
	)
	if err != nil {
		return nil, fmt.Errorf("answer: list: %w", err)
	}
	out := make([]AnsweredQuestion, 0, len(docs))
	for _, d := range docs {
		var a AnsweredQuestion
		if err := d.Decode(&a); err != nil {
			return nil, fmt.Errorf("answer: %w", err)
		}
		a.ID = d.ID
		out = append(out, a)
	}
	return out, nil
}

func (r *Repository) record(ctx context.Context, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordAnswerSave(ctx, outcome)
	}
}
