package answer

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/mockprep/pkg/provider/stt"
)

// MinAnswerLength is the minimum derived answer length, in characters,
// required before grading.
const MinAnswerLength = 30

// ErrAnswerTooShort is returned by Stop when the answer is under
// [MinAnswerLength] characters. No grading request is made.
var ErrAnswerTooShort = errors.New("Your answer should be more than 30 characters") //nolint:staticcheck // user-facing message

// Target identifies the question an attempt answers.
type Target struct {
	InterviewID   string `json:"interviewId"`
	Index         int    `json:"index"`
	Question      string `json:"question"`
	CorrectAnswer string `json:"-"`
	TechStack     string `json:"-"`
}

// Snapshot is a point-in-time view of an [Attempt].
type Snapshot struct {
	ID        string  `json:"id"`
	Target    Target  `json:"target"`
	State     State   `json:"state"`
	Final     string  `json:"final"`
	Interim   string  `json:"interim"`
	Answer    string  `json:"answer"`
	Result    *Result `json:"result,omitempty"`
	SavedID   string  `json:"savedId,omitempty"`
	Capturing bool    `json:"capturing"`
}

// Attempt is one user's answer to one question. All methods are safe for
// concurrent use.
type Attempt struct {
	id     string
	userID string
	target Target
	grader *Grader
	repo   *Repository

	mu         sync.Mutex
	state      State
	transcript Transcript
	answer     string
	result     *Result
	savedID    string
	capturing  bool
	lastActive time.Time
}

// NewAttempt returns an idle attempt.
func NewAttempt(id, userID string, target Target, grader *Grader, repo *Repository) *Attempt {
	return &Attempt{id: id, userID: userID, target: target, grader: grader, repo: repo, lastActive: time.Now()}
}

// ID returns the attempt id.
func (a *Attempt) ID() string { return a.id }

// UserID returns the owning user.
func (a *Attempt) UserID() string { return a.userID }

// Target returns the question being answered.
func (a *Attempt) Target() Target { return a.target }

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start begins recording. From Stopped or Graded it resumes, keeping the
// transcript so far and discarding any grading result.
func (a *Attempt) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case Idle, Stopped, Graded:
	default:
		return transitionError("start", a.state)
	}
	a.result = nil
	a.answer = ""
	a.state = Recording
	a.lastActive = time.Now()
	return nil
}

// Observe feeds one recognised segment into the transcript. Finals are
// appended; partials replace the interim text.
func (a *Attempt) Observe(t stt.Transcript) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Recording {
		return transitionError("observe", a.state)
	}
	if t.IsFinal {
		a.transcript.AddFinal(t.Text)
	} else {
		a.transcript.SetInterim(t.Text)
	}
	a.lastActive = time.Now()
	return nil
}

// Stop ends recording and grades the derived answer. Answers shorter than
// [MinAnswerLength] fail with [ErrAnswerTooShort] and leave the attempt
// Stopped. Grading failures are not errors; they yield [Fallback].
func (a *Attempt) Stop(ctx context.Context) (Result, error) {
	a.mu.Lock()
	if a.state != Recording {
		err := transitionError("stop", a.state)
		a.mu.Unlock()
		return Result{}, err
	}
	a.state = Stopped
	answer := a.transcript.Answer()
	if utf8.RuneCountInString(answer) < MinAnswerLength {
		a.mu.Unlock()
		return Result{}, ErrAnswerTooShort
	}
	a.answer = answer
	a.state = Grading
	a.mu.Unlock()

	res := a.grader.Grade(ctx, a.target.Question, a.target.CorrectAnswer, answer)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.result = &res
	a.state = Graded
	a.lastActive = time.Now()
	return res, nil
}

// RecordAgain discards the transcript and any result and starts recording
// afresh.
func (a *Attempt) RecordAgain() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case Recording, Stopped, Graded, Saved:
	default:
		return transitionError("record again", a.state)
	}
	a.transcript.Reset()
	a.answer = ""
	a.result = nil
	a.savedID = ""
	a.state = Recording
	a.lastActive = time.Now()
	return nil
}

// Save persists the graded answer. The attempt is Saving while the write is
// in flight. It returns [ErrAlreadyAnswered] and goes back to Graded when the
// user already answered this question.
func (a *Attempt) Save(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.state != Graded || a.result == nil {
		err := transitionError("save", a.state)
		a.mu.Unlock()
		return "", err
	}
	doc := AnsweredQuestion{
		InterviewID:   a.target.InterviewID,
		Question:      a.target.Question,
		CorrectAnswer: a.target.CorrectAnswer,
		UserAnswer:    a.answer,
		Feedback:      a.result.Feedback,
		Rating:        a.result.Rating,
		UserID:        a.userID,
	}
	a.state = Saving
	a.mu.Unlock()

	id, err := a.repo.SaveOnce(ctx, doc)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastActive = time.Now()
	if err != nil {
		a.state = Graded
		return "", err
	}
	a.savedID = id
	a.transcript.Reset()
	a.state = Saved
	return id, nil
}

// idleSince reports when the attempt was last active. Attempts that are
// being captured, graded or saved report ok=false.
func (a *Attempt) idleSince() (since time.Time, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capturing || a.state == Grading || a.state == Saving {
		return time.Time{}, false
	}
	return a.lastActive, true
}

// Snapshot returns a copy of the attempt's observable state.
func (a *Attempt) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Snapshot{
		ID:        a.id,
		Target:    a.target,
		State:     a.state,
		Final:     a.transcript.Final(),
		Interim:   a.transcript.Interim(),
		Answer:    a.transcript.Answer(),
		SavedID:   a.savedID,
		Capturing: a.capturing,
	}
	if a.answer != "" {
		s.Answer = a.answer
	}
	if a.result != nil {
		r := *a.result
		s.Result = &r
	}
	return s
}

// claimCapture marks the attempt as fed by a live stream. It reports false
// when another stream already feeds it.
func (a *Attempt) claimCapture() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capturing {
		return false
	}
	a.capturing = true
	return true
}

func (a *Attempt) releaseCapture() {
	a.mu.Lock()
	a.capturing = false
	a.lastActive = time.Now()
	a.mu.Unlock()
}
