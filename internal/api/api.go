// Package api serves the mockprep JSON API under /api.
//
// Every route requires an identity (see package auth). Success responses
// carry a "message" and "description" pair where the web client shows a
// notification; errors use the envelope {"error": ..., "details": [...]}.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/mockprep/internal/answer"
	"github.com/MrWong99/mockprep/internal/auth"
	"github.com/MrWong99/mockprep/internal/interview"
	"github.com/MrWong99/mockprep/internal/observe"
	"github.com/MrWong99/mockprep/internal/user"
)

// Messages shown to the user.
const (
	msgGeneric      = "Something went wrong. Please try again."
	msgDeleteFailed = "Failed to delete interview. Please try again."
	msgSaveFailed   = "An error occurred while saving your answer."
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Config holds the API dependencies.
type Config struct {
	Interviews *interview.Service
	Attempts   *answer.Manager
	Answers    *answer.Repository
	Users      *user.Sync
	Metrics    *observe.Metrics

	// Auth verifies the session token on every route. Required.
	Auth *auth.Verifier

	// OriginPatterns lists extra hosts allowed to open the answer stream
	// from a browser (see websocket.AcceptOptions).
	OriginPatterns []string
}

// Server implements the API handlers.
type Server struct {
	cfg Config
}

// New returns a Server.
func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Register adds all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	routes := map[string]http.HandlerFunc{
		"GET /api/me": s.me,

		"GET /api/interviews":              s.listInterviews,
		"POST /api/interviews":             s.createInterview,
		"GET /api/interviews/{id}":         s.getInterview,
		"PUT /api/interviews/{id}":         s.updateInterview,
		"DELETE /api/interviews/{id}":      s.deleteInterview,
		"GET /api/interviews/{id}/answers": s.listAnswers,

		"POST /api/interviews/{id}/questions/{index}/attempts": s.openAttempt,

		"GET /api/attempts/{attempt}":               s.getAttempt,
		"POST /api/attempts/{attempt}/start":        s.startAttempt,
		"POST /api/attempts/{attempt}/segments":     s.addSegment,
		"POST /api/attempts/{attempt}/stop":         s.stopAttempt,
		"POST /api/attempts/{attempt}/record-again": s.recordAgain,
		"POST /api/attempts/{attempt}/save":         s.saveAttempt,
		"DELETE /api/attempts/{attempt}":            s.closeAttempt,
		"GET /api/attempts/{attempt}/stream":        s.streamAttempt,
	}
	for pattern, h := range routes {
		mux.Handle(pattern, s.cfg.Auth.Middleware(h))
	}
}

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

type notice struct {
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

// internalError logs err and answers with msg.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// identity returns the caller. Routes are only reachable through the auth
// middleware, so the identity is always present.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := s.cfg.Users.Ensure(r.Context(), id); err != nil {
		internalError(w, r, msgGeneric, err)
		return
	}
	p, err := s.cfg.Users.Get(r.Context(), id.ID)
	if err != nil {
		internalError(w, r, msgGeneric, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func isValidation(err error) ([]string, bool) {
	var ve *interview.ValidationError
	if errors.As(err, &ve) {
		return ve.Messages, true
	}
	return nil, false
}
