// Package recompute keeps the embedded per-association scores and the
// derived averages consistent after subjects, experts or candidates change.
//
// Scores are computed from a snapshot and applied to the stored subject as a
// patch through a versioned write. A write that loses the race re-reads the
// subject and re-applies the same patch without asking the scorer again.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/panelscore/internal/adapters/repository"
	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/internal/domain/scoring"
	"github.com/okian/panelscore/pkg/logger"
	"github.com/okian/panelscore/pkg/metrics"
)

const (
	defaultConflictRetries = 3
	tracerName             = "github.com/okian/panelscore/internal/domain/recompute"
)

// Store is the slice of the entity store the engine reads and writes.
type Store interface {
	GetSubject(ctx context.Context, id string) (model.Subject, error)
	GetExpert(ctx context.Context, id string) (model.Expert, error)
	GetCandidate(ctx context.Context, id string) (model.Candidate, error)
	ListSubjects(ctx context.Context, ids []string) ([]model.Subject, error)
	ListExperts(ctx context.Context) ([]model.Expert, error)
	ListCandidates(ctx context.Context) ([]model.Candidate, error)
	SaveSubject(ctx context.Context, s model.Subject) (model.Subject, error)
	SetExpertAverages(ctx context.Context, id string, profile, relevancy float64) error
	SetCandidateAverage(ctx context.Context, id string, relevancy float64) error
}

// Engine runs the recompute entry points. It is safe for concurrent use.
type Engine struct {
	store           Store
	scorer          scoring.Scorer
	log             logger.Logger
	tracer          trace.Tracer
	concurrency     int
	conflictRetries int
}

// New creates an engine over store and scorer.
func New(store Store, scorer scoring.Scorer, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		scorer:          scorer,
		concurrency:     runtime.NumCPU(),
		conflictRetries: defaultConflictRetries,
		tracer:          otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("recompute")
	}
	return e
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// loadSubject returns ok=false when the subject no longer exists.
func (e *Engine) loadSubject(ctx context.Context, id string) (model.Subject, bool, error) {
	s, err := e.store.GetSubject(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		e.log.Debug(ctx, "subject gone, skipping", logger.String("subject_id", id))
		return model.Subject{}, false, nil
	}
	if err != nil {
		return model.Subject{}, false, fmt.Errorf("load subject %s: %w", id, err)
	}
	return s, true, nil
}

// candidateProfiles projects the subject's applicants, read fresh on every
// call. Applicants that can no longer be read are left out of the context.
func (e *Engine) candidateProfiles(ctx context.Context, s model.Subject) []scoring.Profile {
	out := make([]scoring.Profile, 0, len(s.Candidates))
	for _, cs := range s.Candidates {
		c, err := e.store.GetCandidate(ctx, cs.CandidateID)
		if err != nil {
			e.log.Warn(ctx, "applicant unavailable for scoring context",
				logger.String("subject_id", s.ID),
				logger.String("candidate_id", cs.CandidateID),
				logger.Error(err))
			continue
		}
		out = append(out, scoring.CandidateProfile(c))
	}
	return out
}

// score calls the scorer and reports ok=false on any failure after logging it.
func (e *Engine) score(ctx context.Context, side string, req scoring.Request, fields ...logger.Field) (scoring.Result, bool) {
	start := time.Now()
	res, err := e.scorer.Score(ctx, req)
	metrics.RecordScorerLatency(float64(time.Since(start).Milliseconds()))
	if err == nil {
		switch {
		case res.Empty():
			err = fmt.Errorf("%w: empty response", scoring.ErrScoreUnavailable)
		case res.RelevancyScore == nil:
			err = fmt.Errorf("%w: response without relevancy score", scoring.ErrScoreUnavailable)
		case !res.Valid():
			err = fmt.Errorf("%w: score out of range", scoring.ErrScoreUnavailable)
		}
	}
	if err != nil {
		if !errors.Is(err, scoring.ErrScoreUnavailable) {
			err = fmt.Errorf("%w: %w", scoring.ErrScoreUnavailable, err)
		}
		metrics.RecordScorerFailure(side)
		e.log.Warn(ctx, "score unavailable, keeping prior scores", append(fields, logger.Error(err))...)
		return scoring.Result{}, false
	}
	return res, true
}

// applySubject writes mutate's changes onto the subject. The first attempt
// uses snapshot; after a version conflict the subject is re-read and mutate
// applied again. A mutate that changes nothing skips the write.
func (e *Engine) applySubject(ctx context.Context, snapshot model.Subject, mutate func(*model.Subject) bool) error {
	cur := snapshot.Clone()
	for attempt := 0; ; attempt++ {
		if !mutate(&cur) {
			return nil
		}
		_, err := e.store.SaveSubject(ctx, cur)
		switch {
		case err == nil:
			metrics.RecordSubjectWrite()
			return nil
		case errors.Is(err, repository.ErrNotFound):
			e.log.Debug(ctx, "subject deleted before write", logger.String("subject_id", snapshot.ID))
			return nil
		case errors.Is(err, repository.ErrVersionConflict):
			metrics.RecordVersionConflict()
			if attempt >= e.conflictRetries {
				metrics.RecordPersistenceFailure("subject")
				return fmt.Errorf("save subject %s after %d attempts: %w", snapshot.ID, attempt+1, err)
			}
			e.log.Debug(ctx, "subject moved, re-applying scores",
				logger.String("subject_id", snapshot.ID), logger.Int("attempt", attempt+1))
			fresh, ok, lerr := e.loadSubject(ctx, snapshot.ID)
			if lerr != nil {
				metrics.RecordPersistenceFailure("subject")
				return lerr
			}
			if !ok {
				return nil
			}
			cur = fresh
		default:
			metrics.RecordPersistenceFailure("subject")
			return fmt.Errorf("save subject %s: %w", snapshot.ID, err)
		}
	}
}

// expertPatch applies scorer results keyed by expert id.
func expertPatch(results map[string]scoring.Result) func(*model.Subject) bool {
	return func(s *model.Subject) bool {
		changed := false
		for id, r := range results {
			if i := s.ExpertIndex(id); i >= 0 && scoring.ApplyExpert(&s.Experts[i], r) {
				changed = true
			}
		}
		return changed
	}
}

// candidatePatch applies scorer results keyed by candidate id.
func candidatePatch(results map[string]scoring.Result) func(*model.Subject) bool {
	return func(s *model.Subject) bool {
		changed := false
		for id, r := range results {
			if i := s.CandidateIndex(id); i >= 0 && scoring.ApplyCandidate(&s.Candidates[i], r) {
				changed = true
			}
		}
		return changed
	}
}
