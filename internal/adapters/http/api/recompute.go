package api

import (
	"net/http"

	"github.com/okian/panelscore/internal/domain/model"
)

// handleRecompute enqueues any job kind directly. Targets are validated by the service.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	j := model.NewJob(kind)
	j.SubjectID = req.SubjectID
	j.ExpertID = req.ExpertID
	j.CandidateID = req.CandidateID
	j.SubjectIDs = req.SubjectIDs
	j.ExpertIDs = req.ExpertIDs
	j.CandidateIDs = req.CandidateIDs

	sub, err := s.deps.Trigger(r.Context(), j)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	submitted(w, sub)
}
