package api

import (
	"net/http"
	"strconv"
)

func (s *Server) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.deps.CreateSubject(r.Context(), req.subject())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.GetSubject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubject(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.DeleteSubject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}

func (s *Server) handleSubjectSkills(w http.ResponseWriter, r *http.Request) {
	var req skillsRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.deps.UpdateSubjectSkills(r.Context(), r.PathValue("id"), req.Skills)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}

// handlePanel ranks the subject's experts. limit defaults to, and is capped at, the
// configured maximum.
func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	limit := s.maxPanelLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, r, ErrBadLimit)
			return
		}
		limit = min(n, s.maxPanelLimit)
	}
	panel, err := s.deps.Panel(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, panel)
}

func (s *Server) handleAddExpert(w http.ResponseWriter, r *http.Request) {
	var req addExpertRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.deps.AddExpert(r.Context(), r.PathValue("id"), req.ExpertID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}

func (s *Server) handleRemoveExpert(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.RemoveExpert(r.Context(), r.PathValue("id"), r.PathValue("expertId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.deps.Apply(r.Context(), r.PathValue("id"), req.CandidateID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.Withdraw(r.Context(), r.PathValue("id"), r.PathValue("candidateId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}
