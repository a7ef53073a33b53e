package recompute

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/okian/panelscore/internal/adapters/repository"
	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/pkg/logger"
	"github.com/okian/panelscore/pkg/metrics"
)

// mean accumulates per-subject scores for one entity.
type mean struct {
	profile   float64
	relevancy float64
	n         int
}

// ExpertAverages recomputes an expert's average profile and relevancy scores
// over the subjects it sits on. With no subjects, or no matching panel entry
// in any of them, the prior averages are kept.
func (e *Engine) ExpertAverages(ctx context.Context, expertID string) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.ExpertAverages", attribute.String("expert.id", expertID))
	defer func() { endSpan(span, err) }()

	expert, ok, err := e.expertOrSkip(ctx, expertID)
	if err != nil || !ok {
		return err
	}
	if len(expert.Subjects) == 0 {
		e.log.Debug(ctx, "expert sits on no subject, keeping averages", logger.String("expert_id", expertID))
		return nil
	}
	subs, err := e.store.ListSubjects(ctx, expert.Subjects)
	if err != nil {
		return fmt.Errorf("load subjects of expert %s: %w", expertID, err)
	}
	return e.writeExpertAverages(ctx, expert, indexSubjects(subs))
}

// AllExpertAverages recomputes averages for every expert.
func (e *Engine) AllExpertAverages(ctx context.Context) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.AllExpertAverages")
	defer func() { endSpan(span, err) }()

	experts, err := e.store.ListExperts(ctx)
	if err != nil {
		return fmt.Errorf("list experts: %w", err)
	}
	subs, err := e.store.ListSubjects(ctx, nil)
	if err != nil {
		return fmt.Errorf("list subjects: %w", err)
	}
	byID := indexSubjects(subs)

	col := newCollector()
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, expert := range experts {
		g.Go(func() error {
			col.fail(e.writeExpertAverages(ctx, expert, byID))
			return nil
		})
	}
	_ = g.Wait()
	return col.errs
}

func (e *Engine) writeExpertAverages(ctx context.Context, expert model.Expert, byID map[string]model.Subject) error {
	m := e.expertMean(ctx, expert, byID)
	if m.n == 0 {
		return nil
	}
	profile, relevancy := m.profile/float64(m.n), m.relevancy/float64(m.n)
	err := e.store.SetExpertAverages(ctx, expert.ID, profile, relevancy)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		metrics.RecordPersistenceFailure("expert")
		e.log.Error(ctx, "writing expert averages failed", logger.String("expert_id", expert.ID), logger.Error(err))
		return fmt.Errorf("set averages of expert %s: %w", expert.ID, err)
	}
	metrics.RecordAggregateWrite("expert")
	return nil
}

func (e *Engine) expertMean(ctx context.Context, expert model.Expert, byID map[string]model.Subject) mean {
	var m mean
	for _, sid := range uniqueIDs(expert.Subjects) {
		sub, ok := byID[sid]
		if !ok {
			e.log.Warn(ctx, "expert references missing subject",
				logger.String("expert_id", expert.ID), logger.String("subject_id", sid))
			continue
		}
		i := sub.ExpertIndex(expert.ID)
		if i < 0 {
			e.log.Warn(ctx, "expert references subject without a panel entry",
				logger.String("expert_id", expert.ID), logger.String("subject_id", sid))
			continue
		}
		m.profile += sub.Experts[i].ProfileScore
		m.relevancy += sub.Experts[i].RelevancyScore
		m.n++
	}
	if m.n == 0 {
		e.log.Debug(ctx, "no panel entries found, keeping averages", logger.String("expert_id", expert.ID))
	}
	return m
}

// CandidateAverages recomputes a candidate's average relevancy over the
// subjects it applied to. Prior values are kept when nothing matches.
func (e *Engine) CandidateAverages(ctx context.Context, candidateID string) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.CandidateAverages", attribute.String("candidate.id", candidateID))
	defer func() { endSpan(span, err) }()

	cand, ok, err := e.candidateOrSkip(ctx, candidateID)
	if err != nil || !ok {
		return err
	}
	if len(cand.Subjects) == 0 {
		e.log.Debug(ctx, "candidate has no applications, keeping average", logger.String("candidate_id", candidateID))
		return nil
	}
	subs, err := e.store.ListSubjects(ctx, cand.Subjects)
	if err != nil {
		return fmt.Errorf("load subjects of candidate %s: %w", candidateID, err)
	}
	return e.writeCandidateAverage(ctx, cand, indexSubjects(subs))
}

// AllCandidateAverages recomputes the average for every candidate.
func (e *Engine) AllCandidateAverages(ctx context.Context) (err error) {
	ctx, span := e.startSpan(ctx, "recompute.AllCandidateAverages")
	defer func() { endSpan(span, err) }()

	cands, err := e.store.ListCandidates(ctx)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}
	subs, err := e.store.ListSubjects(ctx, nil)
	if err != nil {
		return fmt.Errorf("list subjects: %w", err)
	}
	byID := indexSubjects(subs)

	col := newCollector()
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, cand := range cands {
		g.Go(func() error {
			col.fail(e.writeCandidateAverage(ctx, cand, byID))
			return nil
		})
	}
	_ = g.Wait()
	return col.errs
}

func (e *Engine) writeCandidateAverage(ctx context.Context, cand model.Candidate, byID map[string]model.Subject) error {
	var m mean
	for _, sid := range uniqueIDs(cand.Subjects) {
		sub, ok := byID[sid]
		if !ok {
			e.log.Warn(ctx, "candidate references missing subject",
				logger.String("candidate_id", cand.ID), logger.String("subject_id", sid))
			continue
		}
		i := sub.CandidateIndex(cand.ID)
		if i < 0 {
			e.log.Warn(ctx, "candidate references subject without an application entry",
				logger.String("candidate_id", cand.ID), logger.String("subject_id", sid))
			continue
		}
		m.relevancy += sub.Candidates[i].RelevancyScore
		m.n++
	}
	if m.n == 0 {
		e.log.Debug(ctx, "no application entries found, keeping average", logger.String("candidate_id", cand.ID))
		return nil
	}
	err := e.store.SetCandidateAverage(ctx, cand.ID, m.relevancy/float64(m.n))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		metrics.RecordPersistenceFailure("candidate")
		e.log.Error(ctx, "writing candidate average failed", logger.String("candidate_id", cand.ID), logger.Error(err))
		return fmt.Errorf("set average of candidate %s: %w", cand.ID, err)
	}
	metrics.RecordAggregateWrite("candidate")
	return nil
}

func indexSubjects(subs []model.Subject) map[string]model.Subject {
	out := make(map[string]model.Subject, len(subs))
	for _, s := range subs {
		out[s.ID] = s
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
