package api

import (
	"net/http"

	"github.com/okian/panelscore/internal/domain/model"
)

func (s *Server) handleCreateExpert(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	e, err := s.deps.CreateExpert(r.Context(), model.Expert{ID: req.ID, Name: req.Name, Email: req.Email, Skills: req.Skills})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetExpert(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.GetExpert(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpert(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.DeleteExpert(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExpertSkills(w http.ResponseWriter, r *http.Request) {
	var req skillsRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.deps.UpdateExpertSkills(r.Context(), r.PathValue("id"), req.Skills)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}

func (s *Server) handleCreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.deps.CreateCandidate(r.Context(), model.Candidate{ID: req.ID, Name: req.Name, Email: req.Email, Skills: req.Skills})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCandidate(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.GetCandidate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCandidateSkills(w http.ResponseWriter, r *http.Request) {
	var req skillsRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.deps.UpdateCandidateSkills(r.Context(), r.PathValue("id"), req.Skills)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}

func (s *Server) handleDeleteCandidate(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.DeleteCandidate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}

func (s *Server) handleDeleteAllCandidates(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.DeleteAllCandidates(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}
