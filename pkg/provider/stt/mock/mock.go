// Package mock provides test doubles for the stt package.
//
// A Session is scripted from the test side: Emit pushes transcripts onto the
// partial or final stream, End closes both streams as a provider would when
// the session finishes.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mockprep/pkg/provider/stt"
)

// Provider is a mock stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. When nil a fresh NewSession(16) is
	// created per call.
	Session *Session

	// StartStreamErr, if non-nil, is returned from StartStream.
	StartStreamErr error

	// Configs records the StreamConfig of every StartStream call.
	Configs []stt.StreamConfig
}

var _ stt.Provider = (*Provider)(nil)

// StartStream records cfg and returns Session or StartStreamErr.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(16), nil
}

// Calls returns the number of StartStream invocations.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Configs)
}

// LastConfig returns the config of the most recent StartStream call.
func (p *Provider) LastConfig() stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Configs) == 0 {
		return stt.StreamConfig{}
	}
	return p.Configs[len(p.Configs)-1]
}

// Session is a mock stt.SessionHandle.
type Session struct {
	partials chan stt.Transcript
	finals   chan stt.Transcript
	endOnce  sync.Once

	mu         sync.Mutex
	closed     bool
	audio      [][]byte
	closeCalls int
	seq        uint64

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session whose streams buffer up to buf transcripts.
func NewSession(buf int) *Session {
	return &Session{
		partials: make(chan stt.Transcript, buf),
		finals:   make(chan stt.Transcript, buf),
	}
}

// Emit delivers t on the final or partial stream according to t.IsFinal.
// A zero t.Seq is replaced by the next sequence number of the session.
func (s *Session) Emit(t stt.Transcript) {
	s.mu.Lock()
	if t.Seq == 0 {
		s.seq++
		t.Seq = s.seq
	} else if t.Seq > s.seq {
		s.seq = t.Seq
	}
	s.mu.Unlock()
	if t.IsFinal {
		s.finals <- t
		return
	}
	s.partials <- t
}

// End closes both streams. Safe to call more than once.
func (s *Session) End() {
	s.endOnce.Do(func() {
		close(s.partials)
		close(s.finals)
	})
}

// SendAudio records a copy of chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	s.audio = append(s.audio, append([]byte(nil), chunk...))
	return nil
}

func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// Close marks the session closed and ends both streams.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.closeCalls++
	s.mu.Unlock()
	s.End()
	return nil
}

// Audio returns the chunks received so far.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// CloseCalls returns how often Close was called.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}
