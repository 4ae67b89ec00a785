package ping

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/rate"
	"github.com/wesleyorama2/dbping/internal/ping/selector"
)

// JobState represents the lifecycle state of a Job.
type JobState int32

const (
	// JobStateIdle indicates the job was created but not started.
	JobStateIdle JobState = iota
	// JobStateRunning indicates the job is looping over its iterations.
	JobStateRunning
	// JobStateStopped indicates the job returned from Run.
	JobStateStopped
)

func (s JobState) String() string {
	switch s {
	case JobStateIdle:
		return "idle"
	case JobStateRunning:
		return "running"
	case JobStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Job is one worker of a task.
//
// Each job has its own:
// - execution context (cloned for every iteration)
// - iteration counter
// - lifecycle state
//
// The selector and rate limiter are shared with the other jobs of the task.
type Job struct {
	// ID is the thread id, starting at 1
	ID int

	task    *Task
	sel     selector.Selector
	limiter *rate.LeakyBucket
	ectx    *execution.Context
	logger  *zap.Logger

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	// Completed iterations
	lap atomic.Int64
}

// NewJob creates a job. limiter may be nil.
func NewJob(id int, task *Task, sel selector.Selector, limiter *rate.LeakyBucket, ectx *execution.Context) *Job {
	ectx.Logger = ectx.Logger.With(zap.String("worker", ectx.Worker))
	return &Job{
		ID:      id,
		task:    task,
		sel:     sel,
		limiter: limiter,
		ectx:    ectx,
		logger:  ectx.Logger,
	}
}

// State returns the current job state.
func (j *Job) State() JobState {
	return JobState(j.state.Load())
}

// Lap returns the number of completed iterations.
func (j *Job) Lap() int64 {
	return j.lap.Load()
}

// HasMoreIterations reports whether the execution budget allows another iteration.
func (j *Job) HasMoreIterations() bool {
	return !j.task.Bounded() || j.lap.Load() < j.task.Executions
}

// Run loops until the budget is spent or ctx is cancelled.
//
// Command failures are logged and the loop continues with the next
// iteration. Run only returns an error when the selector cannot supply a
// command. A cancelled ctx stops the job after the current iteration.
func (j *Job) Run(ctx context.Context) error {
	j.state.Store(int32(JobStateRunning))
	defer j.state.Store(int32(JobStateStopped))

	j.logger.Info("job started", zap.Int64("executions", j.task.Executions))
	start := time.Now()

	for j.HasMoreIterations() {
		lap := j.lap.Load()

		ictx := j.ectx.Clone()
		ictx.SetIteration(lap)
		ictx.Apply(j.task.Vars)

		cmd, err := j.sel.Next()
		if err != nil {
			j.logger.Error("no command to execute, stopping job", zap.Error(err))
			return err
		}

		if j.limiter != nil {
			if err := j.limiter.Wait(ctx); err != nil {
				j.logger.Warn("job interrupted while waiting for its rate slot", zap.Int64("iteration", lap))
				break
			}
		}

		if err := cmd.Execute(ctx, ictx); err != nil {
			j.logger.Warn("command failed",
				zap.String("label", ictx.Interpolate(cmd.Info().Label)),
				zap.Int64("iteration", lap),
				zap.Error(err))
		}
		j.lap.Add(1)

		if ctx.Err() != nil {
			j.logger.Warn("job interrupted", zap.Int64("iteration", lap))
			break
		}
		if j.HasMoreIterations() && !j.pause(ctx) {
			j.logger.Warn("job interrupted during delay", zap.Int64("iteration", lap))
			break
		}
	}

	j.logger.Info("job finished",
		zap.Int64("iterations", j.lap.Load()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// pause sleeps for the task delay. It returns false when ctx ended the sleep.
func (j *Job) pause(ctx context.Context) bool {
	if j.task.Delay <= 0 {
		return true
	}
	timer := time.NewTimer(j.task.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
