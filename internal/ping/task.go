// Package ping runs database probe tasks.
//
// A Task is executed by a TaskRunner, which starts one Job per configured
// thread. Every job loops over its iterations, asks the task's selector for
// the next command and executes it against a fresh clone of its execution
// context. Results flow to the metrics sink as one record per execution.
package ping

import (
	"time"

	"github.com/wesleyorama2/dbping/internal/ping/command"
	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/metrics"
	"github.com/wesleyorama2/dbping/internal/ping/selector"
)

// Task is a fully built probe task. It is not modified once running.
type Task struct {
	// Name of the task, also the dbping.task.name variable
	Name string

	// Datasource is the id of the database the task runs against
	Datasource string

	// Threads is the number of concurrent jobs (minimum 1)
	Threads int

	// Executions is the iteration budget of every job; <= 0 means unbounded
	Executions int64

	// Delay is the pause between two iterations of a job
	Delay time.Duration

	// Rate caps the iterations per second of all jobs together; <= 0 disables it
	Rate float64

	// Commands to choose from, in declaration order
	Commands []command.Command

	// Vars are applied to the context at every iteration
	Vars []execution.Var

	// Selector is the command selection strategy
	Selector selector.Strategy

	// LogFile is the metrics log path, may reference context variables
	LogFile string

	// Properties are written to the task header
	Properties map[string]string
}

// Bounded reports whether the task stops after a fixed number of iterations.
func (t *Task) Bounded() bool {
	return t.Executions > 0
}

// Header builds the metrics header describing the task.
func (t *Task) Header(runID string) metrics.Header {
	h := metrics.Header{
		RunID:      runID,
		Task:       t.Name,
		Datasource: t.Datasource,
		Threads:    t.threads(),
		Executions: t.Executions,
		StartTime:  time.Now(),
		Properties: t.Properties,
	}
	for _, c := range t.Commands {
		h.Commands = append(h.Commands, c.Info())
	}
	return h
}

func (t *Task) threads() int {
	if t.Threads < 1 {
		return 1
	}
	return t.Threads
}
