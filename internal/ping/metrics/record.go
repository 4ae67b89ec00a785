// Package metrics captures per-execution measurements and aggregates them.
package metrics

import (
	"time"
)

// Unknown marks a timing or counter that was never stamped.
const Unknown = -1

// Record is the measurement of one execution attempt.
//
// Records are produced by Recorder.Build and are never modified afterwards.
// Durations that were never measured hold Unknown.
type Record struct {
	// EventTime is when the execution attempt started
	EventTime time.Time `json:"eventTime"`

	// Task is the name of the task that ran the command
	Task string `json:"task"`

	// Worker identifies the job within the task
	Worker string `json:"worker"`

	// Iteration is the job iteration the attempt belongs to
	Iteration int64 `json:"iteration"`

	// Label is the interpolated command label
	Label string `json:"label"`

	// Rows is the number of rows read from result cursors
	Rows int64 `json:"rows"`

	// ConnectionTime is the time spent acquiring a connection
	ConnectionTime time.Duration `json:"connectionTime"`

	// FirstRowTime is the time until the first row was read
	FirstRowTime time.Duration `json:"firstRowTime"`

	// TotalTime is the time from start to the end of the attempt
	TotalTime time.Duration `json:"totalTime"`

	// ParamTrace lists every bound value as " p<index>=<value>"
	ParamTrace string `json:"paramTrace,omitempty"`

	// ParamHash is ParamTrace with every non-word character removed
	ParamHash string `json:"paramHash,omitempty"`

	// Batches is the number of batch flushes performed
	Batches int `json:"batches,omitempty"`

	// Err is the failure that ended the attempt, if any
	Err error `json:"-"`

	// Message is Err's message, kept for sinks that serialize records
	Message string `json:"message,omitempty"`

	// Dump holds the column values of the first rows read
	Dump [][]string `json:"dump,omitempty"`
}

// Failed reports whether the attempt ended with an error.
func (r Record) Failed() bool {
	return r.Err != nil || r.Message != ""
}

// Header describes a task before its workers start.
type Header struct {
	RunID      string            `json:"runId"`
	Task       string            `json:"task"`
	Datasource string            `json:"datasource"`
	Threads    int               `json:"threads"`
	Executions int64             `json:"executions"`
	StartTime  time.Time         `json:"startTime"`
	Properties map[string]string `json:"properties,omitempty"`
	Commands   []CommandInfo     `json:"commands"`
}

// CommandInfo describes one selectable command in a Header.
// Scripts list their statements as Children.
type CommandInfo struct {
	Label    string        `json:"label"`
	SQL      string        `json:"sql,omitempty"`
	Weight   int           `json:"weight,omitempty"`
	Children []CommandInfo `json:"children,omitempty"`
}

// Sink receives records and headers. Implementations must be safe for
// concurrent use by all workers of all tasks.
type Sink interface {
	WriteHeader(h Header)
	Write(r Record)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) WriteHeader(Header) {}
func (discard) Write(Record)       {}
