package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/panelscore/internal/adapters/mq/queue"
	"github.com/okian/panelscore/internal/adapters/mq/worker"
	"github.com/okian/panelscore/internal/domain/model"
	logging "github.com/okian/panelscore/pkg/logger"
)

// mockRunner records jobs and fails those whose subject is in errs.
type mockRunner struct {
	mu    sync.Mutex
	ran   []model.Job
	errs  map[string]error
	block chan struct{}
	seen  chan model.Job
}

func newMockRunner() *mockRunner {
	return &mockRunner{errs: make(map[string]error), seen: make(chan model.Job, 100)}
}

func (m *mockRunner) Run(ctx context.Context, j model.Job) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			m.seen <- j
			return ctx.Err()
		}
	}
	m.mu.Lock()
	m.ran = append(m.ran, j)
	err := m.errs[j.SubjectID]
	m.mu.Unlock()
	m.seen <- j
	if j.SubjectID == "panic" {
		panic("boom")
	}
	return err
}

func (m *mockRunner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ran)
}

type mockReleaser struct {
	mu   sync.Mutex
	keys []string
}

func (m *mockReleaser) Unrecord(_ context.Context, key string) {
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()
}

func subjectJob(id string) model.Job {
	j := model.NewJob(model.KindRecomputeSubjectExperts)
	j.SubjectID = id
	return j
}

func wait(ch <-chan model.Job) (model.Job, bool) {
	select {
	case j := <-ch:
		return j, true
	case <-time.After(2 * time.Second):
		return model.Job{}, false
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		runner := newMockRunner()
		rel := &mockReleaser{}
		w := worker.NewInMemoryWorker(q, runner, worker.WithName("test-worker"), worker.WithReleaser(rel))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job is queued", func() {
			j := subjectJob("s1")
			convey.So(q.Enqueue(ctx, j), convey.ShouldBeNil)
			got, ok := wait(runner.seen)

			convey.Convey("Then it is run and its key released", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(got.ID, convey.ShouldEqual, j.ID)
				rel.mu.Lock()
				defer rel.mu.Unlock()
				convey.So(rel.keys, convey.ShouldResemble, []string{j.Key()})
			})
		})

		convey.Convey("When a job fails or panics", func() {
			runner.errs["bad"] = errors.New("store down")
			for _, id := range []string{"bad", "panic", "good"} {
				convey.So(q.Enqueue(ctx, subjectJob(id)), convey.ShouldBeNil)
			}
			for i := 0; i < 3; i++ {
				_, ok := wait(runner.seen)
				convey.So(ok, convey.ShouldBeTrue)
			}

			convey.Convey("Then the worker keeps going", func() {
				convey.So(runner.count(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a worker with a short job timeout", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		runner := newMockRunner()
		runner.block = make(chan struct{})
		w := worker.NewInMemoryWorker(q, runner, worker.WithJobTimeout(20*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.So(q.Enqueue(ctx, subjectJob("slow")), convey.ShouldBeNil)
		_, ok := wait(runner.seen)

		convey.Convey("Then the job is cut off at the deadline", func() {
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(runner.count(), convey.ShouldEqual, 0)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		runner := newMockRunner()
		runner.errs["bad"] = errors.New("store down")
		pool := worker.NewPool(3, q, runner)

		convey.So(pool.Size(), convey.ShouldEqual, 3)

		convey.Convey("When jobs are queued before start and the pool is shut down", func() {
			for _, id := range []string{"a", "b", "c", "bad"} {
				convey.So(q.Enqueue(context.Background(), subjectJob(id)), convey.ShouldBeNil)
			}
			pool.Start(context.Background())

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err := pool.Shutdown(ctx)

			convey.Convey("Then every pending job is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(runner.count(), convey.ShouldEqual, 4)
				convey.So(pool.Counters().Processed(), convey.ShouldEqual, 4)
				convey.So(pool.Counters().Failed(), convey.ShouldEqual, 1)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the pool is stopped", func() {
			pool.Start(context.Background())
			pool.Stop()

			convey.Convey("Then the queue stays open", func() {
				convey.So(q.IsClosed(), convey.ShouldBeFalse)
			})
		})
	})
}
