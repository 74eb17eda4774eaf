package api

import (
	"errors"
	"net/http"

	"github.com/MrWong99/mockprep/internal/answer"
	"github.com/MrWong99/mockprep/internal/interview"
)

type interviewResponse struct {
	notice
	Interview *interview.Interview `json:"interview"`
}

func (s *Server) listInterviews(w http.ResponseWriter, r *http.Request) {
	list, err := s.cfg.Interviews.List(r.Context(), identity(r).ID)
	if err != nil {
		internalError(w, r, msgGeneric, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interviews": list})
}

func (s *Server) createInterview(w http.ResponseWriter, r *http.Request) {
	var spec interview.Spec
	if !decodeBody(w, r, &spec) {
		return
	}
	iv, err := s.cfg.Interviews.Create(r.Context(), identity(r).ID, spec)
	if err != nil {
		s.interviewError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, interviewResponse{
		notice:    notice{"Interview created", "Your interview has been created successfully."},
		Interview: iv,
	})
}

func (s *Server) getInterview(w http.ResponseWriter, r *http.Request) {
	iv, err := s.cfg.Interviews.Get(r.Context(), identity(r).ID, r.PathValue("id"))
	if err != nil {
		s.interviewError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (s *Server) updateInterview(w http.ResponseWriter, r *http.Request) {
	var spec interview.Spec
	if !decodeBody(w, r, &spec) {
		return
	}
	iv, err := s.cfg.Interviews.Update(r.Context(), identity(r).ID, r.PathValue("id"), spec)
	if err != nil {
		s.interviewError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, interviewResponse{
		notice:    notice{"Interview updated", "Your interview has been updated successfully."},
		Interview: iv,
	})
}

func (s *Server) deleteInterview(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.Interviews.Delete(r.Context(), identity(r).ID, r.PathValue("id"))
	switch {
	case errors.Is(err, interview.ErrNotFound):
		writeError(w, http.StatusNotFound, "interview not found")
	case err != nil:
		internalError(w, r, msgDeleteFailed, err)
	default:
		writeJSON(w, http.StatusOK, notice{"Interview deleted", "The interview has been deleted successfully."})
	}
}

func (s *Server) listAnswers(w http.ResponseWriter, r *http.Request) {
	answers, err := s.cfg.Answers.ListForInterview(r.Context(), identity(r).ID, r.PathValue("id"))
	if err != nil {
		internalError(w, r, msgGeneric, err)
		return
	}
	writeJSON(w, http.StatusOK, answer.Summarize(answers))
}

func (s *Server) interviewError(w http.ResponseWriter, r *http.Request, err error) {
	if msgs, ok := isValidation(err); ok {
		writeError(w, http.StatusBadRequest, "validation failed", msgs...)
		return
	}
	if errors.Is(err, interview.ErrNotFound) {
		writeError(w, http.StatusNotFound, "interview not found")
		return
	}
	internalError(w, r, msgGeneric, err)
}
