// Package service wires the store, scorer, recompute engine and worker pool,
// and implements the operations the HTTP API and CLI call.
//
// Every mutation commits synchronously, then enqueues the recompute job it
// triggers and returns. Jobs run on the pool under the service's own context,
// never the caller's.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/panelscore/internal/adapters/mq/queue"
	"github.com/okian/panelscore/internal/adapters/mq/worker"
	"github.com/okian/panelscore/internal/adapters/repository"
	scorerfactory "github.com/okian/panelscore/internal/adapters/scorer"
	"github.com/okian/panelscore/internal/config"
	"github.com/okian/panelscore/internal/domain/dedupe"
	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/internal/domain/recompute"
	"github.com/okian/panelscore/internal/domain/scoring"
	"github.com/okian/panelscore/pkg/logger"
	"github.com/okian/panelscore/pkg/metrics"
)

// Sentinel errors.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("recompute queue full")
)

// Submission reports what happened to the recompute job a call triggered.
type Submission struct {
	JobID     string     `json:"jobId,omitempty"`
	Kind      model.Kind `json:"kind"`
	Queued    bool       `json:"queued"`
	Coalesced bool       `json:"coalesced"`
}

// Service implements the API and CLI dependencies.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	store   repository.Store
	scorer  scoring.Scorer
	engine  *recompute.Engine
	deduper dedupe.Deduper
	queue   *queue.InMemoryQueue
	pool    *worker.Pool

	ownsStore bool
	started   bool
	cancel    context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects a store instead of opening the configured one.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithScorer injects a scorer instead of building the configured one.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. A nil cfg means defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenStore opens the store selected by cfg.
func OpenStore(ctx context.Context, cfg config.Store) (repository.Store, error) {
	switch cfg.Driver {
	case config.StoreMemory, "":
		return repository.NewMemoryStore(), nil
	case config.StoreMongo:
		return repository.NewMongoStore(ctx, cfg.URI, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Start opens the store and scorer when none were injected, then starts the
// worker pool. Jobs run under a context derived from ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting panelscore service...")

	if s.store == nil {
		st, err := OpenStore(ctx, s.cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = st
		s.ownsStore = true
	}
	if s.scorer == nil {
		sc, err := scorerfactory.New(ctx, s.cfg.Scorer)
		if err != nil {
			return fmt.Errorf("build scorer: %w", err)
		}
		s.scorer = sc
	}

	s.engine = recompute.New(s.store, s.scorer,
		recompute.WithConcurrency(s.cfg.FanoutConcurrency),
		recompute.WithConflictRetries(s.cfg.ConflictRetries),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	s.pool = worker.NewPool(s.cfg.WorkerCount, s.queue, s.engine,
		worker.WithJobTimeout(time.Duration(s.cfg.JobTimeoutMS)*time.Millisecond),
		worker.WithReleaser(s.deduper),
	)

	root, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(root)

	s.started = true
	s.logger.Info(ctx, "panelscore service started",
		logger.String("store", s.cfg.Store.Driver),
		logger.String("scorer", s.cfg.Scorer.Mode),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queue.Capacity()),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
	)
	return nil
}

// Stop closes the queue, lets the workers drain it until ctx expires, then
// closes the store if the service opened it.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping panelscore service...")

	err := s.pool.Shutdown(ctx)
	s.cancel()
	if s.ownsStore {
		if cerr := s.store.Close(ctx); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close store: %w", cerr))
		}
	}

	s.started = false
	s.logger.Info(ctx, "panelscore service stopped")
	return err
}

// Trigger validates and enqueues a job.
func (s *Service) Trigger(ctx context.Context, j model.Job) (Submission, error) {
	if err := j.Validate(); err != nil {
		return Submission{}, err
	}
	if j.ID == "" {
		fresh := model.NewJob(j.Kind)
		j.ID, j.EnqueuedAt = fresh.ID, fresh.EnqueuedAt
	}
	return s.enqueue(ctx, j)
}

// RunNow executes a job synchronously on the caller's context, bypassing the queue.
func (s *Service) RunNow(ctx context.Context, j model.Job) error {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()
	if engine == nil {
		return ErrNotStarted
	}
	return engine.Run(ctx, j)
}

// enqueue drops the job when an identical one is already pending.
func (s *Service) enqueue(ctx context.Context, j model.Job) (Submission, error) { //nolint:gocritic // hugeParam: jobs travel by value
	if err := s.running(); err != nil {
		return Submission{}, err
	}

	sub := Submission{JobID: j.ID, Kind: j.Kind}
	key := j.Key()
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordJobCoalesced(string(j.Kind))
		s.logger.Debug(ctx, "identical job already pending, coalesced",
			logger.String("kind", string(j.Kind)), logger.String("key", key))
		sub.JobID, sub.Coalesced = "", true
		return sub, nil
	}

	if err := s.queue.Enqueue(context.WithoutCancel(ctx), j); err != nil {
		s.deduper.Unrecord(ctx, key)
		s.logger.Warn(ctx, "recompute job not queued",
			logger.String("job_id", j.ID), logger.String("kind", string(j.Kind)), logger.Error(err))
		if errors.Is(err, queue.ErrFull) {
			return sub, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return sub, err
	}
	sub.Queued = true
	return sub, nil
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}
