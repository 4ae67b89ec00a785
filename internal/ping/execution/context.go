// Package execution holds the per-iteration state commands run against.
package execution

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/dbping/internal/ping/metrics"
	"github.com/wesleyorama2/dbping/pkg/interpolate"
)

// Built-in variables.
const (
	KeyTaskName   = "dbping.task.name"
	KeyDatasource = "dbping.datasource"
	KeyThreadName = "dbping.thread.name"
	KeyThreadID   = "dbping.thread.id"
	KeyParentName = "dbping.parent.name"
	KeyLapID      = "dbping.lap.id"
	KeyNow        = "dbping.now"
)

// LegacyAliases maps deprecated variable names to their canonical key.
// Configuration loading rewrites them once; contexts only know canonical keys.
var LegacyAliases = map[string]string{
	"task.name":   KeyTaskName,
	"datasource":  KeyDatasource,
	"parent.name": KeyParentName,
	"now":         KeyNow,
}

// ConnProvider hands out dedicated connections. Callers close them.
type ConnProvider interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Context is the state one command execution sees.
//
// A job owns a parent Context and clones it for every iteration; mutations
// of a clone never reach the parent or sibling clones.
type Context struct {
	// TaskName is the name of the running task
	TaskName string

	// Worker identifies the job, "<threadID>@<task>"
	Worker string

	// Iteration is the job iteration being executed
	Iteration int64

	// Provider supplies database connections
	Provider ConnProvider

	// Sink receives metrics records
	Sink metrics.Sink

	// Logger is the job logger
	Logger *zap.Logger

	vars map[string]string
	now  func() time.Time
}

// New creates a job-level context with the built-in variables set.
func New(taskName, datasource string, threadID int, provider ConnProvider, sink metrics.Sink, logger *zap.Logger) *Context {
	if sink == nil {
		sink = metrics.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	worker := fmt.Sprintf("%d@%s", threadID, taskName)
	c := &Context{
		TaskName: taskName,
		Worker:   worker,
		Provider: provider,
		Sink:     sink,
		Logger:   logger,
		vars:     make(map[string]string),
		now:      time.Now,
	}
	c.vars[KeyTaskName] = taskName
	c.vars[KeyDatasource] = datasource
	c.vars[KeyThreadName] = worker
	c.vars[KeyThreadID] = strconv.Itoa(threadID)
	c.vars[KeyParentName] = taskName
	return c
}

// Clone returns a copy whose variable table is independent of c.
func (c *Context) Clone() *Context {
	clone := *c
	clone.vars = make(map[string]string, len(c.vars))
	for k, v := range c.vars {
		clone.vars[k] = v
	}
	return &clone
}

// SetIteration sets the iteration number and refreshes the per-iteration variables.
func (c *Context) SetIteration(iteration int64) {
	c.Iteration = iteration
	c.vars[KeyLapID] = strconv.FormatInt(iteration, 10)
	c.vars[KeyNow] = c.now().Format(time.RFC3339)
}

// Set sets a variable.
func (c *Context) Set(key, value string) {
	c.vars[key] = value
}

// Get returns a variable.
func (c *Context) Get(key string) (string, bool) {
	v, ok := c.vars[key]
	return v, ok
}

// Interpolate substitutes ${name} tokens with context variables.
func (c *Context) Interpolate(text string) string {
	return interpolate.Expand(text, c.vars)
}

// Apply evaluates conditional variables against the current iteration.
//
// A variable whose activation holds is set to its value. Otherwise, if an
// unset value is declared (even an empty one), the variable is set to it.
// Otherwise it keeps its previous value.
func (c *Context) Apply(vars []Var) {
	for _, v := range vars {
		switch {
		case v.Activation.Holds(c.Iteration):
			c.vars[v.Key] = v.Value
		case v.Unset != nil:
			c.vars[v.Key] = *v.Unset
		}
	}
}

// Var is a context variable, optionally conditional on the iteration.
type Var struct {
	Key        string
	Value      string
	Activation Activation
	Unset      *string
}

// Activation decides on which iterations a Var takes its value.
type Activation string

// Activations.
const (
	Always Activation = ""
	Even   Activation = "EVEN"
	Odd    Activation = "ODD"
)

// ParseActivation parses an activation name, case-insensitively.
// The empty string and "ALWAYS" both mean Always.
func ParseActivation(s string) (Activation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ALWAYS":
		return Always, nil
	case "EVEN":
		return Even, nil
	case "ODD":
		return Odd, nil
	default:
		return Always, fmt.Errorf("unknown activation %q (want EVEN, ODD or ALWAYS)", s)
	}
}

// Holds reports whether the activation is true for iteration.
func (a Activation) Holds(iteration int64) bool {
	switch a {
	case Even:
		return iteration%2 == 0
	case Odd:
		return iteration%2 != 0
	default:
		return true
	}
}
