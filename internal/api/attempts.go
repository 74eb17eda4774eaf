package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MrWong99/mockprep/internal/answer"
	"github.com/MrWong99/mockprep/internal/interview"
	"github.com/MrWong99/mockprep/pkg/provider/stt"
)

type segmentRequest struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type stopResponse struct {
	Result  answer.Result   `json:"result"`
	Attempt answer.Snapshot `json:"attempt"`
}

type saveResponse struct {
	notice
	ID      string           `json:"id,omitempty"`
	Attempt *answer.Snapshot `json:"attempt,omitempty"`
}

// attempt resolves the {attempt} path value for the caller, writing 404 when
// it does not exist.
func (s *Server) attempt(w http.ResponseWriter, r *http.Request) (*answer.Attempt, bool) {
	a, err := s.cfg.Attempts.Get(identity(r).ID, r.PathValue("attempt"))
	if err != nil {
		writeError(w, http.StatusNotFound, "attempt not found")
		return nil, false
	}
	return a, true
}

func (s *Server) openAttempt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "question index must be a number")
		return
	}
	a, err := s.cfg.Attempts.Open(r.Context(), identity(r).ID, r.PathValue("id"), index)
	switch {
	case errors.Is(err, interview.ErrNotFound):
		writeError(w, http.StatusNotFound, "interview not found")
	case errors.Is(err, answer.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, "question not found")
	case err != nil:
		internalError(w, r, msgGeneric, err)
	default:
		writeJSON(w, http.StatusCreated, a.Snapshot())
	}
}

func (s *Server) getAttempt(w http.ResponseWriter, r *http.Request) {
	if a, ok := s.attempt(w, r); ok {
		writeJSON(w, http.StatusOK, a.Snapshot())
	}
}

// transition runs op on the attempt and answers with its snapshot.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(*answer.Attempt) error) {
	a, ok := s.attempt(w, r)
	if !ok {
		return
	}
	if err := op(a); err != nil {
		if errors.Is(err, answer.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		internalError(w, r, msgGeneric, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Snapshot())
}

func (s *Server) startAttempt(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, (*answer.Attempt).Start)
}

func (s *Server) recordAgain(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, (*answer.Attempt).RecordAgain)
}

func (s *Server) addSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.transition(w, r, func(a *answer.Attempt) error {
		err := a.Observe(stt.Transcript{Text: req.Text, IsFinal: req.Final})
		if err == nil && s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordSegment(r.Context(), req.Final)
		}
		return err
	})
}

func (s *Server) stopAttempt(w http.ResponseWriter, r *http.Request) {
	a, ok := s.attempt(w, r)
	if !ok {
		return
	}
	res, err := a.Stop(r.Context())
	switch {
	case errors.Is(err, answer.ErrAnswerTooShort):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, answer.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		internalError(w, r, msgGeneric, err)
	default:
		writeJSON(w, http.StatusOK, stopResponse{Result: res, Attempt: a.Snapshot()})
	}
}

func (s *Server) saveAttempt(w http.ResponseWriter, r *http.Request) {
	a, ok := s.attempt(w, r)
	if !ok {
		return
	}
	id, err := a.Save(r.Context())
	switch {
	case errors.Is(err, answer.ErrAlreadyAnswered):
		snap := a.Snapshot()
		writeJSON(w, http.StatusOK, saveResponse{
			notice:  notice{"Already Answered", err.Error()},
			Attempt: &snap,
		})
	case errors.Is(err, answer.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		internalError(w, r, msgSaveFailed, err)
	default:
		writeJSON(w, http.StatusCreated, saveResponse{
			notice: notice{"Saved", "Your answer has been saved."},
			ID:     id,
		})
	}
}

func (s *Server) closeAttempt(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Attempts.Close(r.Context(), identity(r).ID, r.PathValue("attempt")); err != nil {
		writeError(w, http.StatusNotFound, "attempt not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
