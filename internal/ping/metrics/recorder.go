package metrics

import (
	"regexp"
	"time"
)

var nonWord = regexp.MustCompile(`\W`)

// Clock returns the current time.
type Clock func() time.Time

// Recorder accumulates the measurements of one execution attempt.
//
// Lifecycle: Init, then optionally Connect, AddRow, AddParam, AddBatch and
// Fail, then Build. Build returns the Record and re-arms the recorder with
// a fresh Init so it can be reused for the next attempt.
//
// A Recorder is owned by a single goroutine.
type Recorder struct {
	task    string
	worker  string
	maxRows int
	clock   Clock

	start time.Time
	rec   Record
	trace []byte
}

// NewRecorder creates a recorder for the given task and worker.
// maxRows bounds how many rows are kept in Record.Dump.
func NewRecorder(task, worker string, maxRows int) *Recorder {
	r := &Recorder{
		task:    task,
		worker:  worker,
		maxRows: maxRows,
		clock:   time.Now,
	}
	r.Init()
	return r
}

// WithClock replaces the time source. Used by tests.
func (r *Recorder) WithClock(clock Clock) *Recorder {
	r.clock = clock
	r.Init()
	return r
}

// Init resets every field to Unknown and stamps a fresh event time.
func (r *Recorder) Init() {
	r.start = r.clock()
	r.trace = r.trace[:0]
	r.rec = Record{
		EventTime:      r.start,
		Task:           r.task,
		Worker:         r.worker,
		Iteration:      Unknown,
		ConnectionTime: Unknown,
		FirstRowTime:   Unknown,
		TotalTime:      Unknown,
	}
}

// SetLabel sets the command label of the record.
func (r *Recorder) SetLabel(label string) {
	r.rec.Label = label
}

// SetIteration sets the job iteration of the record.
func (r *Recorder) SetIteration(iteration int64) {
	r.rec.Iteration = iteration
}

// Connect stamps the connection acquisition time.
func (r *Recorder) Connect() {
	r.rec.ConnectionTime = r.elapsed()
}

// AddRow counts a row read from a cursor. The first row stamps the
// first-row time. Column values are kept while under the dump limit.
func (r *Recorder) AddRow(columns []string) {
	if r.rec.Rows == 0 {
		r.rec.FirstRowTime = r.elapsed()
	}
	r.rec.Rows++
	if len(r.rec.Dump) < r.maxRows && columns != nil {
		r.rec.Dump = append(r.rec.Dump, columns)
	}
}

// WantsRowValues reports whether the next row's values would be kept.
func (r *Recorder) WantsRowValues() bool {
	return len(r.rec.Dump) < r.maxRows
}

// AddParam appends one bound value to the parameter trace.
func (r *Recorder) AddParam(trace string) {
	r.trace = append(r.trace, trace...)
}

// ResetParams clears the parameter trace. Called before each repeat so the
// record keeps the bindings of the last execution only.
func (r *Recorder) ResetParams() {
	r.trace = r.trace[:0]
}

// AddBatch counts one batch flush.
func (r *Recorder) AddBatch() {
	r.rec.Batches++
}

// Fail records the error that ended the attempt and stops the clock.
func (r *Recorder) Fail(err error) {
	if err == nil {
		return
	}
	r.rec.Err = err
	r.rec.Message = err.Error()
	if r.rec.TotalTime == Unknown {
		r.rec.TotalTime = r.elapsed()
	}
}

// Build finalizes and returns the record, then re-arms the recorder.
//
// Total time defaults to the time elapsed since Init. When no row was read
// and no error occurred, first-row time defaults to the total time.
func (r *Recorder) Build() Record {
	rec := r.rec
	if rec.TotalTime == Unknown {
		rec.TotalTime = r.elapsed()
	}
	if rec.FirstRowTime == Unknown && rec.Err == nil {
		rec.FirstRowTime = rec.TotalTime
	}
	if len(r.trace) > 0 {
		rec.ParamTrace = string(r.trace)
		rec.ParamHash = nonWord.ReplaceAllString(rec.ParamTrace, "")
	}
	r.Init()
	return rec
}

func (r *Recorder) elapsed() time.Duration {
	d := r.clock().Sub(r.start)
	if d < 0 {
		return 0
	}
	return d
}
