// Package engine runs a set of tasks against their datasources and
// collects their metrics.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wesleyorama2/dbping/internal/ping"
	"github.com/wesleyorama2/dbping/internal/ping/config"
	"github.com/wesleyorama2/dbping/internal/ping/datasource"
	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/metrics"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
	"github.com/wesleyorama2/dbping/internal/ping/sink"
	"github.com/wesleyorama2/dbping/pkg/interpolate"
)

// Options configures an Engine.
type Options struct {
	// RunID identifies the run in every task header; generated when empty
	RunID string

	// Sequential runs tasks one at a time instead of concurrently
	Sequential bool

	// Prometheus, when set, receives every record
	Prometheus *sink.Prometheus

	// Logger is used by the engine, its task runners and jobs
	Logger *zap.Logger
}

// Engine coordinates the tasks of a run:
//   - building runnable tasks from their definitions
//   - handing each task a connection provider from the datasource registry
//   - opening the metrics log of each task
//   - running the tasks and aggregating their results
//
// Example usage:
//
//	project, _ := config.LoadPaths("tasks/")
//	tasks, _ := project.Select()
//	registry := datasource.NewRegistry(engine.DatasourceConfigs(project.Datasources))
//	defer registry.Close()
//	eng, _ := engine.NewEngine(tasks, registry, engine.Options{})
//	result, err := eng.Run(ctx)
type Engine struct {
	tasks    []*config.TaskConfig
	registry *datasource.Registry
	opts     Options
	logger   *zap.Logger

	summary *metrics.Summary

	mu        sync.Mutex
	running   bool
	startTime time.Time
}

// TaskResult contains the outcome of one task.
type TaskResult struct {
	Name       string        `json:"name"`
	Datasource string        `json:"datasource"`
	LogFile    string        `json:"logFile,omitempty"`
	Threads    int           `json:"threads"`
	Iterations int64         `json:"iterations"`
	Duration   time.Duration `json:"duration"`
	Error      error         `json:"-"`
}

// Result contains the outcome of a run.
type Result struct {
	RunID     string               `json:"runId"`
	StartTime time.Time            `json:"startTime"`
	EndTime   time.Time            `json:"endTime"`
	Duration  time.Duration        `json:"duration"`
	Tasks     []*TaskResult        `json:"tasks"`
	Stats     []metrics.LabelStats `json:"stats"`
	Error     error                `json:"-"`
}

type taskRun struct {
	runner *ping.TaskRunner
	result *TaskResult
}

// NewEngine creates an engine for tasks. Datasources are resolved through
// registry, which the caller closes after the run.
func NewEngine(tasks []*config.TaskConfig, registry *datasource.Registry, opts Options) (*Engine, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks to run")
	}
	if registry == nil {
		return nil, fmt.Errorf("datasource registry is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		tasks:    tasks,
		registry: registry,
		opts:     opts,
		logger:   logger,
		summary:  metrics.NewSummary(),
	}, nil
}

// Summary returns the aggregates of every record written so far.
func (e *Engine) Summary() *metrics.Summary {
	return e.summary
}

// Run executes every task and returns the results.
//
// Tasks are all built before any of them starts. A task that cannot be
// built is reported in its TaskResult and left out of the run; the others
// still run. Run fails without a result only when no task can start.
// Errors of individual tasks are collected and returned together; the
// result is returned even then.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.startTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	runID := e.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := e.logger.With(zap.String("run", runID))

	logs := newLogFiles()
	runs, results, initErr := e.initializeTasks(runID, logs, logger)
	if len(runs) == 0 {
		return nil, multierror.Append(fmt.Errorf("failed to initialize tasks: %w", initErr), logs.Close()).ErrorOrNil()
	}

	logger.Info("run started", zap.Int("tasks", len(runs)), zap.Int("skipped", len(results)-len(runs)))
	var err error
	if e.opts.Sequential {
		err = e.runSequentially(ctx, runs)
	} else {
		err = e.runConcurrently(ctx, runs)
	}
	if initErr != nil {
		err = multierror.Append(initErr, err).ErrorOrNil()
	}
	if closeErr := logs.Close(); closeErr != nil {
		err = multierror.Append(err, closeErr).ErrorOrNil()
	}

	result := &Result{
		RunID:     runID,
		StartTime: e.startTime,
		EndTime:   time.Now(),
		Duration:  time.Since(e.startTime),
		Tasks:     results,
		Stats:     e.summary.Stats(),
		Error:     err,
	}

	logger.Info("run finished", zap.Duration("duration", result.Duration), zap.Error(err))
	return result, err
}

// initializeTasks builds a runner for every task. It returns the runnable
// tasks, a result per task in definition order, and the startup failures.
func (e *Engine) initializeTasks(runID string, logs *logFiles, logger *zap.Logger) ([]*taskRun, []*TaskResult, error) {
	var (
		runs    = make([]*taskRun, 0, len(e.tasks))
		results = make([]*TaskResult, 0, len(e.tasks))
		errs    *multierror.Error
	)
	for _, tc := range e.tasks {
		result := &TaskResult{
			Name:       tc.Name,
			Datasource: tc.Datasource,
			Threads:    max(tc.Threads, 1),
		}
		results = append(results, result)

		runner, err := e.newRunner(tc, runID, logs, result)
		if err != nil {
			err = fmt.Errorf("task %s not started: %w", tc.Name, err)
			result.Error = err
			errs = multierror.Append(errs, err)
			logger.Error("task not started",
				zap.String("task", tc.Name),
				zap.NamedError("kind", pingerr.KindOf(err)),
				zap.Error(err))
			continue
		}
		runs = append(runs, &taskRun{runner: runner, result: result})
	}
	return runs, results, errs.ErrorOrNil()
}

func (e *Engine) newRunner(tc *config.TaskConfig, runID string, logs *logFiles, result *TaskResult) (*ping.TaskRunner, error) {
	task, err := config.BuildTask(tc)
	if err != nil {
		return nil, err
	}
	provider, err := e.registry.Provider(task.Datasource)
	if err != nil {
		return nil, err
	}

	sinks := []metrics.Sink{e.summary}
	logFile := LogFilePath(task)
	if logFile != "" {
		csv, err := logs.Open(logFile)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, csv)
		result.LogFile = logFile
	}
	if e.opts.Prometheus != nil {
		sinks = append(sinks, e.opts.Prometheus)
	}

	runner, err := ping.NewTaskRunner(task, provider, sink.NewMulti(sinks...), e.logger)
	if err != nil {
		return nil, err
	}
	runner.RunID = runID
	return runner, nil
}

// runConcurrently runs all tasks in parallel.
func (e *Engine) runConcurrently(ctx context.Context, runs []*taskRun) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs *multierror.Error
	)
	for _, run := range runs {
		wg.Add(1)
		go func(run *taskRun) {
			defer wg.Done()
			if err := e.runTask(ctx, run); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
		}(run)
	}
	wg.Wait()
	return errs.ErrorOrNil()
}

// runSequentially runs tasks one at a time, stopping at cancellation.
func (e *Engine) runSequentially(ctx context.Context, runs []*taskRun) error {
	var errs *multierror.Error
	for _, run := range runs {
		if ctx.Err() != nil {
			return multierror.Append(errs, ctx.Err()).ErrorOrNil()
		}
		if err := e.runTask(ctx, run); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (e *Engine) runTask(ctx context.Context, run *taskRun) error {
	start := time.Now()
	err := run.runner.Run(ctx)

	run.result.Duration = time.Since(start)
	for _, job := range run.runner.Jobs() {
		run.result.Iterations += job.Lap()
	}
	if err != nil {
		err = fmt.Errorf("task %s failed: %w", run.result.Name, err)
		run.result.Error = err
	}
	return err
}

// LogFilePath returns the metrics log of task with the task variables
// expanded, or "" when the task has none.
func LogFilePath(task *ping.Task) string {
	if task.LogFile == "" {
		return ""
	}
	return interpolate.Expand(task.LogFile, map[string]string{
		execution.KeyTaskName:   task.Name,
		execution.KeyDatasource: task.Datasource,
	})
}

// DatasourceConfigs converts the datasources of a project for the registry.
func DatasourceConfigs(datasources map[string]config.DatasourceConfig) map[string]datasource.Config {
	configs := make(map[string]datasource.Config, len(datasources))
	for id, ds := range datasources {
		configs[id] = datasource.Config{
			Driver:          ds.Driver,
			DSN:             ds.DSN,
			MaxOpenConns:    ds.MaxOpenConns,
			MaxIdleConns:    ds.MaxIdleConns,
			ConnMaxLifetime: time.Duration(ds.ConnMaxLifetime),
		}
	}
	return configs
}

// logFiles shares one CSV sink between the tasks logging to the same path.
type logFiles struct {
	mu    sync.Mutex
	files map[string]*sink.CSVFile
	order []string
}

func newLogFiles() *logFiles {
	return &logFiles{files: make(map[string]*sink.CSVFile)}
}

func (l *logFiles) Open(path string) (*sink.CSVFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.files[path]; ok {
		return f, nil
	}
	f, err := sink.OpenCSVFile(path)
	if err != nil {
		return nil, err
	}
	l.files[path] = f
	l.order = append(l.order, path)
	return f, nil
}

func (l *logFiles) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs *multierror.Error
	for _, path := range l.order {
		if err := l.files[path].Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing %s: %w", path, err))
		}
	}
	l.files = make(map[string]*sink.CSVFile)
	l.order = nil
	return errs.ErrorOrNil()
}
