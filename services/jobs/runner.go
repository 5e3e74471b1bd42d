package jobs

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Runner executes jobs in the background, each on its own goroutine, with at
// most a fixed number running at once. Jobs get a context that outlives the
// request that submitted them and is only cancelled by Shutdown.
type Runner struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]bool
}

// NewRunner creates a runner allowing maxConcurrent simultaneous jobs
func NewRunner(maxConcurrent int, logger *zap.Logger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		running: make(map[uuid.UUID]bool),
	}
}

// Submit schedules fn for the job. It returns false when the job is already
// submitted or running.
func (r *Runner) Submit(id uuid.UUID, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if r.running[id] {
		r.mu.Unlock()
		return false
	}
	r.running[id] = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.finish(id)

		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			r.logger.Warn("job dropped before start", zap.String("job_id", id.String()), zap.Error(err))
			return
		}
		defer r.sem.Release(1)

		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("job panicked", zap.String("job_id", id.String()), zap.Any("panic", p))
			}
		}()

		fn(r.ctx)
	}()
	return true
}

func (r *Runner) finish(id uuid.UUID) {
	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()
}

// IsRunning reports whether the job is queued or running
func (r *Runner) IsRunning(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[id]
}

// Wait blocks until every submitted job has returned
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels running jobs and waits for them, or until ctx is done
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
