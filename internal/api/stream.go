package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/mockprep/internal/answer"
	"github.com/MrWong99/mockprep/internal/observe"
	"github.com/MrWong99/mockprep/pkg/provider/stt"
)

// streamEvent is pushed to the client for every recognised segment, and once
// more with the final snapshot when capture ends.
type streamEvent struct {
	Type    string           `json:"type"`
	Text    string           `json:"text,omitempty"`
	Final   bool             `json:"final,omitempty"`
	Answer  string           `json:"answer,omitempty"`
	Attempt *answer.Snapshot `json:"attempt,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// summaryTimeout bounds the final "done" write, which may follow a cancelled capture.
const summaryTimeout = 5 * time.Second

type clientMessage struct {
	Type string `json:"type"`
}

// streamAttempt upgrades to a websocket and feeds binary PCM frames to the
// speech recogniser. A text message {"type":"stop"} ends the capture; the
// client then calls the stop endpoint to grade.
func (s *Server) streamAttempt(w http.ResponseWriter, r *http.Request) {
	a, ok := s.attempt(w, r)
	if !ok {
		return
	}
	if a.State() != answer.Recording {
		if err := a.Start(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	sess, err := s.cfg.Attempts.OpenStream(ctx, a)
	if errors.Is(err, answer.ErrNoRecognizer) {
		writeError(w, http.StatusNotImplemented, "speech recognition is not configured")
		return
	}
	if err != nil {
		internalError(w, r, msgGeneric, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		_ = sess.Close()
		observe.Logger(ctx).Warn("stream: accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	log := observe.Logger(ctx).With("attempt", a.ID())

	// The capture goroutine is the only writer until it returns.
	var (
		wg         sync.WaitGroup
		captureErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		captureErr = s.cfg.Attempts.Capture(ctx, a, sess, func(t stt.Transcript) {
			snap := a.Snapshot()
			ev := streamEvent{Type: "transcript", Text: t.Text, Final: t.IsFinal, Answer: snap.Answer}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				log.Debug("stream: write failed", "err", err)
			}
		})
		if errors.Is(captureErr, answer.ErrCaptureActive) {
			cancel()
		}
	}()

	readAudio(ctx, conn, sess, log)

	if err := sess.Close(); err != nil {
		log.Debug("stream: close recogniser", "err", err)
	}
	wg.Wait()

	final := streamEvent{Type: "done"}
	if captureErr != nil && !errors.Is(captureErr, context.Canceled) {
		final.Error = captureErr.Error()
	}
	snap := a.Snapshot()
	final.Attempt = &snap
	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
	defer wcancel()
	if err := wsjson.Write(wctx, conn, final); err != nil {
		log.Debug("stream: write summary", "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "capture finished")
}

// readAudio forwards binary frames to sess until the client sends a stop
// message, disconnects, or ctx is cancelled.
func readAudio(ctx context.Context, conn *websocket.Conn, sess stt.SessionHandle, log *slog.Logger) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug("stream: read failed", "err", err)
			}
			return
		}
		switch typ {
		case websocket.MessageBinary:
			if err := sess.SendAudio(data); err != nil {
				log.Debug("stream: send audio", "err", err)
				return
			}
		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err == nil && msg.Type == "stop" {
				return
			}
		}
	}
}
