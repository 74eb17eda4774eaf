// Package stt defines the streaming speech-to-text port used to transcribe
// spoken interview answers.
//
// A session accepts raw PCM audio and emits two streams of [Transcript]
// values: interim partials that are replaced as recognition progresses, and
// finals that are appended to the answer once the provider commits to them.
package stt

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a session.
type StreamConfig struct {
	// SampleRate is the PCM sample rate in Hz. Zero selects the provider default.
	SampleRate int

	// Channels is the number of interleaved channels. Zero means mono.
	Channels int

	// Language is a BCP-47 tag such as "en-US". Empty selects the provider default.
	Language string

	// Keywords bias recognition towards domain vocabulary, typically the
	// interview's tech stack.
	Keywords []KeywordBoost
}

// SessionHandle is an open streaming session. All methods are safe for
// concurrent use. Callers must call Close when done.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// Close flushes pending audio and ends the session. Idempotent.
	Close() error
}

// Provider opens streaming sessions.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
