package recompute

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"

	"github.com/okian/panelscore/internal/domain/model"
)

// Run executes the recompute plan for job. Steps run in order, scores before
// averages; a failing step does not stop the later ones. All step errors are
// returned combined.
func (e *Engine) Run(ctx context.Context, job model.Job) (err error) {
	if err := job.Validate(); err != nil {
		return err
	}
	ctx, span := e.startSpan(ctx, "recompute.Run",
		attribute.String("job.id", job.ID), attribute.String("job.kind", string(job.Kind)))
	defer func() { endSpan(span, err) }()

	for _, step := range e.plan(job) {
		err = multierr.Append(err, step(ctx))
	}
	return err
}

type step func(context.Context) error

// plan maps a job to its ordered recompute steps.
func (e *Engine) plan(j model.Job) []step { //nolint:gocyclo // one case per kind
	switch j.Kind {
	case model.KindApplicationCreated:
		return []step{
			func(ctx context.Context) error { return e.CandidateSubject(ctx, j.SubjectID, j.CandidateID) },
			func(ctx context.Context) error { return e.AllExpertsForSubject(ctx, j.SubjectID) },
			func(ctx context.Context) error { return e.CandidateAverages(ctx, j.CandidateID) },
			func(ctx context.Context) error { return e.panelAverages(ctx, j.SubjectID) },
		}
	case model.KindApplicationRemoved:
		return []step{
			func(ctx context.Context) error { return e.AllExpertsForSubject(ctx, j.SubjectID) },
			func(ctx context.Context) error { return e.panelAverages(ctx, j.SubjectID) },
			func(ctx context.Context) error { return e.CandidateAverages(ctx, j.CandidateID) },
		}
	case model.KindSubjectSkillsChanged:
		return []step{
			func(ctx context.Context) error { return e.AllCandidatesForSubject(ctx, j.SubjectID) },
			func(ctx context.Context) error { return e.AllExpertsForSubject(ctx, j.SubjectID) },
			func(ctx context.Context) error { return e.panelAverages(ctx, j.SubjectID) },
			func(ctx context.Context) error { return e.applicantAverages(ctx, j.SubjectID) },
		}
	case model.KindCandidateSkillsChanged:
		return []step{
			func(ctx context.Context) error { return e.SingleCandidateAcrossSubjects(ctx, j.CandidateID) },
			func(ctx context.Context) error { return e.candidatePanels(ctx, j.CandidateID) },
			func(ctx context.Context) error { return e.CandidateAverages(ctx, j.CandidateID) },
		}
	case model.KindCandidatesDeleted:
		return []step{
			func(ctx context.Context) error { return e.AllExpertsAcrossSubjects(ctx, j.SubjectIDs) },
			func(ctx context.Context) error { return e.panelAveragesOf(ctx, j.SubjectIDs) },
		}
	case model.KindExpertSkillsChanged:
		return []step{
			func(ctx context.Context) error { return e.SingleExpertAcrossSubjects(ctx, j.ExpertID) },
			func(ctx context.Context) error { return e.ExpertAverages(ctx, j.ExpertID) },
		}
	case model.KindExpertAdded:
		return []step{
			func(ctx context.Context) error { return e.ExpertSubject(ctx, j.SubjectID, j.ExpertID) },
			func(ctx context.Context) error { return e.ExpertAverages(ctx, j.ExpertID) },
		}
	case model.KindExpertRemoved:
		return []step{
			func(ctx context.Context) error { return e.ExpertAverages(ctx, j.ExpertID) },
		}
	case model.KindSubjectDeleted:
		steps := make([]step, 0, len(j.ExpertIDs)+len(j.CandidateIDs))
		for _, id := range j.ExpertIDs {
			steps = append(steps, func(ctx context.Context) error { return e.ExpertAverages(ctx, id) })
		}
		for _, id := range j.CandidateIDs {
			steps = append(steps, func(ctx context.Context) error { return e.CandidateAverages(ctx, id) })
		}
		return steps

	case model.KindRecomputeExpertSubject:
		return []step{func(ctx context.Context) error { return e.ExpertSubject(ctx, j.SubjectID, j.ExpertID) }}
	case model.KindRecomputeCandidateSubject:
		return []step{func(ctx context.Context) error { return e.CandidateSubject(ctx, j.SubjectID, j.CandidateID) }}
	case model.KindRecomputeSubjectExperts:
		return []step{func(ctx context.Context) error { return e.AllExpertsForSubject(ctx, j.SubjectID) }}
	case model.KindRecomputeSubjectCandidates:
		return []step{func(ctx context.Context) error { return e.AllCandidatesForSubject(ctx, j.SubjectID) }}
	case model.KindRecomputeExpertsAcross:
		return []step{func(ctx context.Context) error { return e.AllExpertsAcrossSubjects(ctx, j.SubjectIDs) }}
	case model.KindRecomputeCandidatesAcross:
		return []step{func(ctx context.Context) error { return e.AllCandidatesAcrossSubjects(ctx, j.SubjectIDs) }}
	case model.KindRecomputeExpert:
		return []step{func(ctx context.Context) error { return e.SingleExpertAcrossSubjects(ctx, j.ExpertID) }}
	case model.KindRecomputeCandidate:
		return []step{func(ctx context.Context) error { return e.SingleCandidateAcrossSubjects(ctx, j.CandidateID) }}
	case model.KindRecomputeExpertAverages:
		if j.ExpertID == "" {
			return []step{e.AllExpertAverages}
		}
		return []step{func(ctx context.Context) error { return e.ExpertAverages(ctx, j.ExpertID) }}
	case model.KindRecomputeCandidateAverages:
		if j.CandidateID == "" {
			return []step{e.AllCandidateAverages}
		}
		return []step{func(ctx context.Context) error { return e.CandidateAverages(ctx, j.CandidateID) }}
	}
	return []step{func(context.Context) error { return fmt.Errorf("%w: %q", model.ErrUnknownKind, j.Kind) }}
}

// panelAverages recomputes averages for every expert on one subject.
func (e *Engine) panelAverages(ctx context.Context, subjectID string) error {
	sub, ok, err := e.loadSubject(ctx, subjectID)
	if err != nil || !ok {
		return err
	}
	return e.expertAveragesFor(ctx, sub.ExpertIDs())
}

// panelAveragesOf recomputes averages for the experts of the listed subjects,
// or of every expert when ids is empty.
func (e *Engine) panelAveragesOf(ctx context.Context, subjectIDs []string) error {
	if len(subjectIDs) == 0 {
		return e.AllExpertAverages(ctx)
	}
	subs, err := e.store.ListSubjects(ctx, subjectIDs)
	if err != nil {
		return fmt.Errorf("list subjects: %w", err)
	}
	var ids []string
	for _, s := range subs {
		ids = append(ids, s.ExpertIDs()...)
	}
	return e.expertAveragesFor(ctx, uniqueIDs(ids))
}

// applicantAverages recomputes averages for every applicant of one subject.
func (e *Engine) applicantAverages(ctx context.Context, subjectID string) error {
	sub, ok, err := e.loadSubject(ctx, subjectID)
	if err != nil || !ok {
		return err
	}
	var errs error
	for _, id := range sub.CandidateIDs() {
		errs = multierr.Append(errs, e.CandidateAverages(ctx, id))
	}
	return errs
}

// candidatePanels rescores the panels of every subject the candidate applied
// to, since the applicant pool is part of the experts' scoring context, then
// refreshes those experts' averages.
func (e *Engine) candidatePanels(ctx context.Context, candidateID string) error {
	cand, ok, err := e.candidateOrSkip(ctx, candidateID)
	if err != nil || !ok {
		return err
	}
	if len(cand.Subjects) == 0 {
		return nil
	}
	return multierr.Append(
		e.AllExpertsAcrossSubjects(ctx, cand.Subjects),
		e.panelAveragesOf(ctx, cand.Subjects),
	)
}

func (e *Engine) expertAveragesFor(ctx context.Context, expertIDs []string) error {
	var errs error
	for _, id := range expertIDs {
		errs = multierr.Append(errs, e.ExpertAverages(ctx, id))
	}
	return errs
}
