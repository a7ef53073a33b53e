package service

import (
	"context"

	"github.com/okian/panelscore/internal/adapters/repository"
	"github.com/okian/panelscore/pkg/metrics"
)

// Stats is a point-in-time view of the service for monitoring.
type Stats struct {
	Started       bool              `json:"started"`
	Store         string            `json:"store"`
	Scorer        string            `json:"scorer"`
	Workers       int               `json:"workers"`
	QueueLength   int               `json:"queueLength"`
	QueueCapacity int               `json:"queueCapacity"`
	PendingKeys   int64             `json:"pendingKeys"`
	JobsProcessed int64             `json:"jobsProcessed"`
	JobsFailed    int64             `json:"jobsFailed"`
	Entities      repository.Counts `json:"entities"`
}

// GetStats returns service statistics and refreshes the queue gauges.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started: s.started,
		Store:   s.cfg.Store.Driver,
		Scorer:  s.cfg.Scorer.Mode,
	}
	if !s.started {
		return st, nil
	}

	counts, err := s.store.Counts(ctx)
	if err != nil {
		return st, err
	}
	st.Entities = counts
	st.Workers = s.pool.Size()
	st.QueueLength = s.queue.Len(ctx)
	st.QueueCapacity = s.queue.Capacity()
	st.PendingKeys = s.deduper.Size()
	st.JobsProcessed = s.pool.Counters().Processed()
	st.JobsFailed = s.pool.Counters().Failed()

	metrics.UpdateWorkerCount(st.Workers)
	return st, nil
}
