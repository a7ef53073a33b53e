package service

import (
	"context"

	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/pkg/logger"
)

// PanelEntry is one ranked expert on a subject's panel.
type PanelEntry struct {
	Rank           int     `json:"rank"`
	ExpertID       string  `json:"expertId"`
	Name           string  `json:"name,omitempty"`
	ProfileScore   float64 `json:"profileScore"`
	RelevancyScore float64 `json:"relevancyScore"`
}

// CreateSubject stores a new subject. Nothing is scored until experts or candidates join.
func (s *Service) CreateSubject(ctx context.Context, sub model.Subject) (model.Subject, error) {
	if err := s.running(); err != nil {
		return model.Subject{}, err
	}
	return s.store.CreateSubject(ctx, sub)
}

// CreateExpert stores a new expert.
func (s *Service) CreateExpert(ctx context.Context, e model.Expert) (model.Expert, error) {
	if err := s.running(); err != nil {
		return model.Expert{}, err
	}
	return s.store.CreateExpert(ctx, e)
}

// CreateCandidate stores a new candidate.
func (s *Service) CreateCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error) {
	if err := s.running(); err != nil {
		return model.Candidate{}, err
	}
	return s.store.CreateCandidate(ctx, c)
}

// GetSubject returns a subject.
func (s *Service) GetSubject(ctx context.Context, id string) (model.Subject, error) {
	if err := s.running(); err != nil {
		return model.Subject{}, err
	}
	return s.store.GetSubject(ctx, id)
}

// GetExpert returns an expert.
func (s *Service) GetExpert(ctx context.Context, id string) (model.Expert, error) {
	if err := s.running(); err != nil {
		return model.Expert{}, err
	}
	return s.store.GetExpert(ctx, id)
}

// GetCandidate returns a candidate.
func (s *Service) GetCandidate(ctx context.Context, id string) (model.Candidate, error) {
	if err := s.running(); err != nil {
		return model.Candidate{}, err
	}
	return s.store.GetCandidate(ctx, id)
}

// Panel ranks a subject's experts by profile score, then relevancy score.
// A positive limit truncates the result.
func (s *Service) Panel(ctx context.Context, subjectID string, limit int) ([]PanelEntry, error) {
	sub, err := s.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	ranked := sub.RankedExperts()
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	entries := make([]PanelEntry, 0, len(ranked))
	for i, es := range ranked {
		entry := PanelEntry{Rank: i + 1, ExpertID: es.ExpertID, ProfileScore: es.ProfileScore, RelevancyScore: es.RelevancyScore}
		if e, err := s.store.GetExpert(ctx, es.ExpertID); err == nil {
			entry.Name = e.Name
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Apply records a candidate's application to a subject.
func (s *Service) Apply(ctx context.Context, subjectID, candidateID string) (Submission, error) {
	if err := s.running(); err != nil {
		return Submission{}, err
	}
	if err := s.store.AddCandidateToSubject(ctx, subjectID, candidateID); err != nil {
		return Submission{}, err
	}
	j := model.NewJob(model.KindApplicationCreated)
	j.SubjectID, j.CandidateID = subjectID, candidateID
	return s.enqueue(ctx, j)
}

// Withdraw removes a candidate's application.
func (s *Service) Withdraw(ctx context.Context, subjectID, candidateID string) (Submission, error) {
	if err := s.running(); err != nil {
		return Submission{}, err
	}
	if err := s.store.RemoveCandidateFromSubject(ctx, subjectID, candidateID); err != nil {
		return Submission{}, err
	}
	j := model.NewJob(model.KindApplicationRemoved)
	j.SubjectID, j.CandidateID = subjectID, candidateID
	return s.enqueue(ctx, j)
}

// AddExpert puts an expert on a subject's panel.
func (s *Service) AddExpert(ctx context.Context, subjectID, expertID string) (Submission, error) {
	if err := s.running(); err != nil {
		return Submission{}, err
	}
	if err := s.store.AddExpertToSubject(ctx, subjectID, expertID); err != nil {
		return Submission{}, err
	}
	j := model.NewJob(model.KindExpertAdded)
	j.SubjectID, j.ExpertID = subjectID, expertID
	return s.enqueue(ctx, j)
}

// RemoveExpert takes an expert off a subject's panel.
func (s *Service) RemoveExpert(ctx context.Context, subjectID, expertID string) (Submission, error) {
	if err := s.running(); err != nil {
		return Submission{}, err
	}
	if err := s.store.RemoveExpertFromSubject(ctx, subjectID, expertID); err != nil {
		return Submission{}, err
	}
	j := model.NewJob(model.KindExpertRemoved)
	j.SubjectID, j.ExpertID = subjectID, expertID
	return s.enqueue(ctx, j)
}

// UpdateSubjectSkills replaces a subject's recommended skills.
func (s *Service) UpdateSubjectSkills(ctx context.Context, id string, skills []model.Skill) (Submission, error) {
	if err := s.running(); err != nil {
		return Submission{}, err
	}
	if err := s.store.UpdateSubjectSkills(ctx, id, skills); err != nil {
		return Submission{}, err
	}
	j := model.NewJob(model.KindSubjectSkillsChanged)
	j.SubjectID = id
	return s.enqueue(ctx, j)
}

// UpdateExpertSkills replaces an expert's skills.
func (s *Service) UpdateExpertSkills(ctx context.Context, id string, skills []model.Skill) (Submission, error) {
	if err := s.running(); err != nil {
		return Submission{}, err
	}
	if err := s.store.UpdateExpertSkills(ctx, id, skills); err != nil {
		return Submission{}, err
	}
	j := model.NewJob(model.KindExpertSkillsChanged)
	j.ExpertID = id
	return s.enqueue(ctx, j)
}

// UpdateCandidateSkills replaces a candidate's skills.
func (s *Service) UpdateCandidateSkills(ctx context.Context, id string, skills []model.Skill) (Submission, error) {
	if err := s.running(); err != nil {
		return Submission{}, err
	}
	if err := s.store.UpdateCandidateSkills(ctx, id, skills); err != nil {
		return Submission{}, err
	}
	j := model.NewJob(model.KindCandidateSkillsChanged)
	j.CandidateID = id
	return s.enqueue(ctx, j)
}

// DeleteCandidate removes a candidate. The panels of the subjects it had
// applied to are rescored, since their applicant pool changed.
func (s *Service) DeleteCandidate(ctx context.Context, id string) (Submission, error) {
	if err := s.running(); err != nil {
		return Submission{}, err
	}
	affected, err := s.store.DeleteCandidate(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	return s.candidatesDeleted(ctx, affected)
}

// DeleteAllCandidates removes every candidate.
func (s *Service) DeleteAllCandidates(ctx context.Context) (Submission, error) {
	if err := s.running(); err != nil {
		return Submission{}, err
	}
	affected, err := s.store.DeleteAllCandidates(ctx)
	if err != nil {
		return Submission{}, err
	}
	return s.candidatesDeleted(ctx, affected)
}

func (s *Service) candidatesDeleted(ctx context.Context, affected []string) (Submission, error) {
	if len(affected) == 0 {
		s.logger.Debug(ctx, "deleted candidates had no applications, nothing to recompute")
		return Submission{Kind: model.KindCandidatesDeleted}, nil
	}
	j := model.NewJob(model.KindCandidatesDeleted)
	j.SubjectIDs = affected
	return s.enqueue(ctx, j)
}

// DeleteExpert removes an expert from every panel. Other panel members score
// independently of each other, so no recompute is queued.
func (s *Service) DeleteExpert(ctx context.Context, id string) error {
	if err := s.running(); err != nil {
		return err
	}
	affected, err := s.store.DeleteExpert(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Debug(ctx, "expert deleted",
		logger.String("expert_id", id), logger.Strings("subject_ids", affected))
	return nil
}

// DeleteSubject removes a subject. Its former panel members and applicants
// get their averages recomputed without it.
func (s *Service) DeleteSubject(ctx context.Context, id string) (Submission, error) {
	if err := s.running(); err != nil {
		return Submission{}, err
	}
	deleted, err := s.store.DeleteSubject(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	j := model.NewJob(model.KindSubjectDeleted)
	j.ExpertIDs, j.CandidateIDs = deleted.ExpertIDs(), deleted.CandidateIDs()
	if len(j.ExpertIDs) == 0 && len(j.CandidateIDs) == 0 {
		return Submission{Kind: j.Kind}, nil
	}
	return s.enqueue(ctx, j)
}
