package ping

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/metrics"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
	"github.com/wesleyorama2/dbping/internal/ping/rate"
	"github.com/wesleyorama2/dbping/internal/ping/selector"
)

// TaskRunner runs the jobs of one task.
type TaskRunner struct {
	// RunID identifies the run in the task header; generated when empty
	RunID string

	task     *Task
	provider execution.ConnProvider
	sink     metrics.Sink
	logger   *zap.Logger
	sel      selector.Selector
	limiter  *rate.LeakyBucket

	running atomic.Bool
	mu      sync.Mutex
	jobs    []*Job
}

// NewTaskRunner builds the selector and rate limiter of task.
// A nil sink discards records and a nil logger logs nothing.
func NewTaskRunner(task *Task, provider execution.ConnProvider, sink metrics.Sink, logger *zap.Logger) (*TaskRunner, error) {
	if task == nil {
		return nil, pingerr.New(pingerr.ErrConfiguration, "task is nil")
	}
	sel, err := selector.New(task.Selector, task.Commands)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task.Name, err)
	}
	if sink == nil {
		sink = metrics.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &TaskRunner{
		task:     task,
		provider: provider,
		sink:     sink,
		logger:   logger.With(zap.String("task", task.Name)),
		sel:      sel,
	}
	if task.Rate > 0 {
		r.limiter = rate.NewLeakyBucket(task.Rate, 1)
	}
	return r, nil
}

// Task returns the task being run.
func (r *TaskRunner) Task() *Task {
	return r.task
}

// Jobs returns the jobs started by Run.
func (r *TaskRunner) Jobs() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Job(nil), r.jobs...)
}

// Run writes the task header, starts one job per thread and waits for all
// of them. The returned error combines the errors of the jobs that stopped
// early.
func (r *TaskRunner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("task %s is already running", r.task.Name)
	}

	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	r.sink.WriteHeader(r.task.Header(r.RunID))

	threads := r.task.threads()
	r.logger.Info("starting task",
		zap.String("datasource", r.task.Datasource),
		zap.Int("threads", threads),
		zap.Int("commands", r.sel.Len()))
	start := time.Now()

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		result *multierror.Error
	)
	for id := 1; id <= threads; id++ {
		ectx := execution.New(r.task.Name, r.task.Datasource, id, r.provider, r.sink, r.logger)
		job := NewJob(id, r.task, r.sel, r.limiter, ectx)

		r.mu.Lock()
		r.jobs = append(r.jobs, job)
		r.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := job.Run(ctx); err != nil {
				errMu.Lock()
				result = multierror.Append(result, fmt.Errorf("worker %s: %w", ectx.Worker, err))
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()

	r.logger.Info("task finished", zap.Duration("elapsed", time.Since(start)))
	return result.ErrorOrNil()
}
