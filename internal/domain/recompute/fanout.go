package recompute

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/internal/domain/scoring"
	"github.com/okian/panelscore/pkg/logger"
)

// collector gathers results and errors from fan-out goroutines.
type collector struct {
	mu      sync.Mutex
	results map[string]scoring.Result
	errs    error
}

func newCollector() *collector {
	return &collector{results: make(map[string]scoring.Result)}
}

func (c *collector) put(id string, r scoring.Result) {
	c.mu.Lock()
	c.results[id] = r
	c.mu.Unlock()
}

func (c *collector) fail(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.errs = multierr.Append(c.errs, err)
	c.mu.Unlock()
}

// AllExpertsForSubject rescores every panel expert of one subject concurrently
// and persists all results with a single subject write.
func (e *Engine) AllExpertsForSubject(ctx context.Context, subjectID string) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.AllExpertsForSubject", attribute.String("subject.id", subjectID))
	defer func() { endSpan(span, err) }()

	sub, ok, err := e.loadSubject(ctx, subjectID)
	if err != nil || !ok {
		return err
	}
	return e.expertsForSubject(ctx, sub)
}

func (e *Engine) expertsForSubject(ctx context.Context, sub model.Subject) error {
	if len(sub.Experts) == 0 {
		e.log.Debug(ctx, "subject has no panel, nothing to score", logger.String("subject_id", sub.ID))
		return nil
	}
	applicants := e.candidateProfiles(ctx, sub)

	col := newCollector()
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, es := range sub.Experts {
		id := es.ExpertID
		g.Go(func() error {
			expert, ok, err := e.expertOrSkip(ctx, id)
			if err != nil || !ok {
				col.fail(err)
				return nil
			}
			if res, ok := e.scoreExpert(ctx, sub, expert, applicants); ok {
				col.put(id, res)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(col.results) > 0 {
		col.fail(e.applySubject(ctx, sub, expertPatch(col.results)))
	}
	return col.errs
}

// AllExpertsAcrossSubjects runs AllExpertsForSubject for each listed subject,
// or for every subject when ids is empty. Subjects are written independently;
// failures are collected and returned together.
func (e *Engine) AllExpertsAcrossSubjects(ctx context.Context, subjectIDs []string) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.AllExpertsAcrossSubjects",
		attribute.String("subject.ids", strings.Join(subjectIDs, ",")))
	defer func() { endSpan(span, err) }()

	return e.eachSubject(ctx, subjectIDs, e.expertsForSubject)
}

// AllCandidatesForSubject rescores every applicant of one subject concurrently
// and persists all results with a single subject write.
func (e *Engine) AllCandidatesForSubject(ctx context.Context, subjectID string) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.AllCandidatesForSubject", attribute.String("subject.id", subjectID))
	defer func() { endSpan(span, err) }()

	sub, ok, err := e.loadSubject(ctx, subjectID)
	if err != nil || !ok {
		return err
	}
	return e.candidatesForSubject(ctx, sub)
}

func (e *Engine) candidatesForSubject(ctx context.Context, sub model.Subject) error {
	if len(sub.Candidates) == 0 {
		e.log.Debug(ctx, "subject has no applicants, nothing to score", logger.String("subject_id", sub.ID))
		return nil
	}

	col := newCollector()
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, cs := range sub.Candidates {
		id := cs.CandidateID
		g.Go(func() error {
			cand, ok, err := e.candidateOrSkip(ctx, id)
			if err != nil || !ok {
				col.fail(err)
				return nil
			}
			if res, ok := e.scoreCandidate(ctx, sub, cand); ok {
				col.put(id, res)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(col.results) > 0 {
		col.fail(e.applySubject(ctx, sub, candidatePatch(col.results)))
	}
	return col.errs
}

// AllCandidatesAcrossSubjects runs AllCandidatesForSubject for each listed
// subject, or for every subject when ids is empty.
func (e *Engine) AllCandidatesAcrossSubjects(ctx context.Context, subjectIDs []string) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.AllCandidatesAcrossSubjects",
		attribute.String("subject.ids", strings.Join(subjectIDs, ",")))
	defer func() { endSpan(span, err) }()

	return e.eachSubject(ctx, subjectIDs, e.candidatesForSubject)
}

// SingleExpertAcrossSubjects rescores one expert on every subject it sits on.
// Each subject is written independently.
func (e *Engine) SingleExpertAcrossSubjects(ctx context.Context, expertID string) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.SingleExpertAcrossSubjects", attribute.String("expert.id", expertID))
	defer func() { endSpan(span, err) }()

	expert, ok, err := e.expertOrSkip(ctx, expertID)
	if err != nil || !ok {
		return err
	}
	if len(expert.Subjects) == 0 {
		e.log.Debug(ctx, "expert sits on no subject", logger.String("expert_id", expertID))
		return nil
	}
	return e.eachSubject(ctx, expert.Subjects, func(ctx context.Context, sub model.Subject) error {
		if sub.ExpertIndex(expertID) < 0 {
			e.log.Warn(ctx, "expert references subject without a panel entry",
				logger.String("subject_id", sub.ID), logger.String("expert_id", expertID))
			return nil
		}
		res, ok := e.scoreExpert(ctx, sub, expert, e.candidateProfiles(ctx, sub))
		if !ok {
			return nil
		}
		return e.applySubject(ctx, sub, expertPatch(map[string]scoring.Result{expertID: res}))
	})
}

// SingleCandidateAcrossSubjects rescores one candidate on every subject it applied to.
func (e *Engine) SingleCandidateAcrossSubjects(ctx context.Context, candidateID string) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.SingleCandidateAcrossSubjects", attribute.String("candidate.id", candidateID))
	defer func() { endSpan(span, err) }()

	cand, ok, err := e.candidateOrSkip(ctx, candidateID)
	if err != nil || !ok {
		return err
	}
	if len(cand.Subjects) == 0 {
		e.log.Debug(ctx, "candidate has no applications", logger.String("candidate_id", candidateID))
		return nil
	}
	return e.eachSubject(ctx, cand.Subjects, func(ctx context.Context, sub model.Subject) error {
		if sub.CandidateIndex(candidateID) < 0 {
			e.log.Warn(ctx, "candidate references subject without an application entry",
				logger.String("subject_id", sub.ID), logger.String("candidate_id", candidateID))
			return nil
		}
		res, ok := e.scoreCandidate(ctx, sub, cand)
		if !ok {
			return nil
		}
		return e.applySubject(ctx, sub, candidatePatch(map[string]scoring.Result{candidateID: res}))
	})
}

// eachSubject loads the subjects (all when ids is empty) and runs fn on each
// concurrently. Errors are logged where they happen and returned combined.
func (e *Engine) eachSubject(ctx context.Context, ids []string, fn func(context.Context, model.Subject) error) error {
	subs, err := e.store.ListSubjects(ctx, ids)
	if err != nil {
		return err
	}

	col := newCollector()
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			if err := fn(ctx, sub); err != nil {
				e.log.Error(ctx, "subject recompute failed", logger.String("subject_id", sub.ID), logger.Error(err))
				col.fail(err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return col.errs
}
