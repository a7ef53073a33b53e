package recompute

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/panelscore/internal/adapters/repository"
	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/internal/domain/scoring"
	"github.com/okian/panelscore/pkg/logger"
)

// ExpertSubject rescores one expert on one subject. The scorer sees all of the
// subject's applicants as context. Missing entities and a missing panel entry
// are no-ops; a scorer failure leaves the entry untouched.
func (e *Engine) ExpertSubject(ctx context.Context, subjectID, expertID string) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.ExpertSubject",
		attribute.String("subject.id", subjectID), attribute.String("expert.id", expertID))
	defer func() { endSpan(span, err) }()

	sub, ok, err := e.loadSubject(ctx, subjectID)
	if err != nil || !ok {
		return err
	}
	expert, ok, err := e.expertOrSkip(ctx, expertID)
	if err != nil || !ok {
		return err
	}
	if sub.ExpertIndex(expertID) < 0 {
		e.log.Debug(ctx, "expert not on subject panel",
			logger.String("subject_id", subjectID), logger.String("expert_id", expertID))
		return nil
	}

	res, ok := e.scoreExpert(ctx, sub, expert, e.candidateProfiles(ctx, sub))
	if !ok {
		return nil
	}
	return e.applySubject(ctx, sub, expertPatch(map[string]scoring.Result{expertID: res}))
}

// CandidateSubject rescores one applicant on one subject. Only the relevancy
// score is updated.
func (e *Engine) CandidateSubject(ctx context.Context, subjectID, candidateID string) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.CandidateSubject",
		attribute.String("subject.id", subjectID), attribute.String("candidate.id", candidateID))
	defer func() { endSpan(span, err) }()

	sub, ok, err := e.loadSubject(ctx, subjectID)
	if err != nil || !ok {
		return err
	}
	cand, ok, err := e.candidateOrSkip(ctx, candidateID)
	if err != nil || !ok {
		return err
	}
	if sub.CandidateIndex(candidateID) < 0 {
		e.log.Debug(ctx, "candidate has not applied to subject",
			logger.String("subject_id", subjectID), logger.String("candidate_id", candidateID))
		return nil
	}

	res, ok := e.scoreCandidate(ctx, sub, cand)
	if !ok {
		return nil
	}
	return e.applySubject(ctx, sub, candidatePatch(map[string]scoring.Result{candidateID: res}))
}

func (e *Engine) scoreExpert(ctx context.Context, sub model.Subject, expert model.Expert, applicants []scoring.Profile) (scoring.Result, bool) {
	profile := scoring.ExpertProfile(expert)
	return e.score(ctx, "expert", scoring.Request{
		CandidateData: applicants,
		ExpertData:    &profile,
		SubjectData:   scoring.SubjectProfileOf(sub),
	}, logger.String("subject_id", sub.ID), logger.String("expert_id", expert.ID))
}

func (e *Engine) scoreCandidate(ctx context.Context, sub model.Subject, cand model.Candidate) (scoring.Result, bool) {
	return e.score(ctx, "candidate", scoring.Request{
		CandidateData: []scoring.Profile{scoring.CandidateProfile(cand)},
		SubjectData:   scoring.SubjectProfileOf(sub),
	}, logger.String("subject_id", sub.ID), logger.String("candidate_id", cand.ID))
}

// expertOrSkip returns ok=false when the expert no longer exists.
func (e *Engine) expertOrSkip(ctx context.Context, id string) (model.Expert, bool, error) {
	expert, err := e.store.GetExpert(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		e.log.Debug(ctx, "expert gone, skipping", logger.String("expert_id", id))
		return model.Expert{}, false, nil
	}
	if err != nil {
		return model.Expert{}, false, fmt.Errorf("load expert %s: %w", id, err)
	}
	return expert, true, nil
}

// candidateOrSkip returns ok=false when the candidate no longer exists.
func (e *Engine) candidateOrSkip(ctx context.Context, id string) (model.Candidate, bool, error) {
	cand, err := e.store.GetCandidate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		e.log.Debug(ctx, "candidate gone, skipping", logger.String("candidate_id", id))
		return model.Candidate{}, false, nil
	}
	if err != nil {
		return model.Candidate{}, false, fmt.Errorf("load candidate %s: %w", id, err)
	}
	return cand, true, nil
}
