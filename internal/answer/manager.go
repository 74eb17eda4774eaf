package answer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/mockprep/internal/interview"
	"github.com/MrWong99/mockprep/internal/observe"
	"github.com/MrWong99/mockprep/pkg/provider/stt"
)

var (
	// ErrAttemptNotFound is returned for unknown attempts and attempts owned
	// by another user.
	ErrAttemptNotFound = errors.New("answer: attempt not found")

	// ErrQuestionNotFound is returned when the question index is out of range.
	ErrQuestionNotFound = errors.New("answer: question not found")

	// ErrCaptureActive is returned when a live stream already feeds the attempt.
	ErrCaptureActive = errors.New("answer: capture already active")

	// ErrNoRecognizer is returned by OpenStream when no STT provider is configured.
	ErrNoRecognizer = errors.New("answer: speech recognition not configured")
)

// keywordBoost is applied to every tech stack term passed to the recognizer.
const keywordBoost = 2

// InterviewSource loads interviews on behalf of a user.
type InterviewSource interface {
	Get(ctx context.Context, userID, id string) (*interview.Interview, error)
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithRecognizer enables server-side speech recognition through p.
func WithRecognizer(p stt.Provider, cfg stt.StreamConfig) ManagerOption {
	return func(m *Manager) {
		m.recognizer = p
		m.streamCfg = cfg
	}
}

// WithManagerMetrics records attempt and capture gauges on m.
func WithManagerMetrics(met *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = met }
}

// Manager is the in-memory registry of open attempts.
type Manager struct {
	interviews InterviewSource
	grader     *Grader
	repo       *Repository
	recognizer stt.Provider
	streamCfg  stt.StreamConfig
	metrics    *observe.Metrics
	now        func() time.Time

	mu       sync.Mutex
	attempts map[string]*Attempt
}

// NewManager returns a Manager.
func NewManager(interviews InterviewSource, grader *Grader, repo *Repository, opts ...ManagerOption) *Manager {
	m := &Manager{
		interviews: interviews,
		grader:     grader,
		repo:       repo,
		now:        time.Now,
		attempts:   make(map[string]*Attempt),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open starts a new idle attempt at question index of the interview.
func (m *Manager) Open(ctx context.Context, userID, interviewID string, index int) (*Attempt, error) {
	iv, err := m.interviews.Get(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	q, ok := iv.Question(index)
	if !ok {
		return nil, fmt.Errorf("%w: index %d of %d", ErrQuestionNotFound, index, len(iv.Questions))
	}

	a := NewAttempt(uuid.NewString(), userID, Target{
		InterviewID:   iv.ID,
		Index:         index,
		Question:      q.Question,
		CorrectAnswer: q.Answer,
		TechStack:     iv.TechStack,
	}, m.grader, m.repo)

	m.mu.Lock()
	m.attempts[a.ID()] = a
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveAttempts.Add(ctx, 1)
	}
	observe.Logger(ctx).Debug("attempt opened", "attempt", a.ID(), "interview", interviewID, "index", index)
	return a, nil
}

// Get returns the attempt if it belongs to userID.
func (m *Manager) Get(userID, id string) (*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.UserID() != userID {
		return nil, ErrAttemptNotFound
	}
	return a, nil
}

// Close discards the attempt.
func (m *Manager) Close(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	a, ok := m.attempts[id]
	if !ok || a.UserID() != userID {
		m.mu.Unlock()
		return ErrAttemptNotFound
	}
	delete(m.attempts, id)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveAttempts.Add(ctx, -1)
	}
	return nil
}

// Sweep discards attempts with no activity for longer than maxIdle and
// returns how many it removed. Attempts being captured, graded or saved are
// kept. A non-positive maxIdle removes nothing.
func (m *Manager) Sweep(ctx context.Context, maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	var idle []string
	for id, a := range m.attempts {
		if since, ok := a.idleSince(); ok && since.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	for _, id := range idle {
		delete(m.attempts, id)
	}
	m.mu.Unlock()

	if len(idle) > 0 {
		if m.metrics != nil {
			m.metrics.ActiveAttempts.Add(ctx, -int64(len(idle)))
		}
		observe.Logger(ctx).Info("idle attempts evicted", "count", len(idle), "max_idle", maxIdle)
	}
	return len(idle)
}

// Len returns the number of open attempts.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// OpenStream starts a recognition session tuned to the attempt's tech stack.
func (m *Manager) OpenStream(ctx context.Context, a *Attempt) (stt.SessionHandle, error) {
	if m.recognizer == nil {
		return nil, ErrNoRecognizer
	}
	cfg := m.streamCfg
	cfg.Keywords = append(append([]stt.KeywordBoost(nil), cfg.Keywords...),
		stt.KeywordsFromStack(a.Target().TechStack, keywordBoost)...)
	sess, err := m.recognizer.StartStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("answer: start stream: %w", err)
	}
	return sess, nil
}

// Capture drains sess into the attempt until both transcript streams close
// or ctx is done. Segments arriving while the attempt is not recording are
// dropped. onSegment, when non-nil, is called after each accepted segment.
func (m *Manager) Capture(ctx context.Context, a *Attempt, sess stt.SessionHandle, onSegment func(stt.Transcript)) error {
	if !a.claimCapture() {
		return ErrCaptureActive
	}
	defer a.releaseCapture()

	if m.metrics != nil {
		m.metrics.ActiveCaptures.Add(ctx, 1)
		defer m.metrics.ActiveCaptures.Add(context.WithoutCancel(ctx), -1)
	}

	var order segmentOrder
	partials, finals := sess.Partials(), sess.Finals()
	for partials != nil || finals != nil {
		var (
			t  stt.Transcript
			ok bool
		)
		// Pending finals are consumed before partials.
		select {
		case t, ok = <-finals:
			if !ok {
				finals = nil
				continue
			}
		default:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case t, ok = <-partials:
				if !ok {
					partials = nil
					continue
				}
			case t, ok = <-finals:
				if !ok {
					finals = nil
					continue
				}
			}
		}
		if !order.accept(t) {
			continue
		}
		if err := a.Observe(t); err != nil {
			continue
		}
		if m.metrics != nil {
			m.metrics.RecordSegment(ctx, t.IsFinal)
		}
		if onSegment != nil {
			onSegment(t)
		}
	}
	return nil
}

// segmentOrder drops partials that a final has already superseded. Finals are
// drained ahead of partials, so a partial queued just before its own final
// can be read after it.
type segmentOrder struct {
	lastFinalSeq uint64
	lastFinalEnd time.Duration
}

func (o *segmentOrder) accept(t stt.Transcript) bool {
	if t.IsFinal {
		o.lastFinalSeq = max(o.lastFinalSeq, t.Seq)
		o.lastFinalEnd = max(o.lastFinalEnd, t.Start+t.Duration)
		return true
	}
	if t.Seq != 0 {
		return t.Seq > o.lastFinalSeq
	}
	// Without sequence numbers fall back to timing: a partial that ends
	// within the committed audio belongs to an utterance already finalised.
	return o.lastFinalEnd == 0 || t.Start+t.Duration > o.lastFinalEnd
}
