// Package sink writes metrics records to their destinations.
package sink

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/metrics"
	"github.com/wesleyorama2/dbping/pkg/interpolate"
)

// Columns of a CSV log line.
var Columns = []string{"date", "task", "worker", "loop", "label", "rows", "conn-time", "1row-time", "total-time", "message"}

// DateLayout is the layout of the date column.
const DateLayout = "2006-01-02 15:04:05.000"

// CSVFile writes tab separated records to a log file.
//
// Headers and dumped rows are written as comment lines starting with '#'.
// Timings are in milliseconds; -1 marks a timing that was never measured.
// The file is opened in append mode, so several runs accumulate.
type CSVFile struct {
	path string

	mu  sync.Mutex
	f   io.WriteCloser
	buf *bufio.Writer
	w   *csv.Writer
	err error
}

// OpenCSVFile opens path for appending, creating parent directories.
func OpenCSVFile(path string) (*CSVFile, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return newCSV(path, f), nil
}

// NewCSV writes to w. Close closes w when it is an io.Closer.
func NewCSV(w io.Writer) *CSVFile {
	wc, ok := w.(io.WriteCloser)
	if !ok {
		wc = nopCloser{w}
	}
	return newCSV("", wc)
}

func newCSV(path string, f io.WriteCloser) *CSVFile {
	buf := bufio.NewWriter(f)
	w := csv.NewWriter(buf)
	w.Comma = '\t'
	return &CSVFile{path: path, f: f, buf: buf, w: w}
}

// Path returns the file path, empty for NewCSV sinks.
func (s *CSVFile) Path() string {
	return s.path
}

// WriteHeader implements metrics.Sink.
func (s *CSVFile) WriteHeader(h metrics.Header) {
	var lines []string
	lines = append(lines,
		"#",
		fmt.Sprintf("# run: %s", h.RunID),
		fmt.Sprintf("# task: %s", h.Task),
		fmt.Sprintf("# start: %s", h.StartTime.Format(DateLayout)),
		fmt.Sprintf("# threads: %d", h.Threads),
		fmt.Sprintf("# executions: %d", h.Executions))

	keys := make([]string, 0, len(h.Properties))
	for k := range h.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("# %s: %s", normalize(k), normalize(h.Properties[k])))
	}

	lines = append(lines, "# DataSource: "+h.Datasource, "# SQL Sentences:")
	parent := map[string]string{execution.KeyParentName: h.Task}
	for _, c := range h.Commands {
		label := interpolate.Expand(c.Label, parent)
		if len(c.Children) == 0 {
			lines = append(lines, fmt.Sprintf("#   - %s: %s", label, normalize(c.SQL)))
			continue
		}
		lines = append(lines, fmt.Sprintf("#   - %s:", label))
		inner := map[string]string{execution.KeyParentName: label}
		for _, child := range c.Children {
			lines = append(lines, fmt.Sprintf("#     |-- %s: %s", interpolate.Expand(child.Label, inner), normalize(child.SQL)))
		}
	}
	lines = append(lines, "# "+strings.Join(Columns, "\t"))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range lines {
		s.writeLine(line)
	}
	s.flush()
}

// Write implements metrics.Sink.
func (s *CSVFile) Write(r metrics.Record) {
	fields := []string{
		r.EventTime.Format(DateLayout),
		r.Task,
		r.Worker,
		strconv.FormatInt(r.Iteration, 10),
		r.Label,
		strconv.FormatInt(r.Rows, 10),
		millis(r.ConnectionTime),
		millis(r.FirstRowTime),
		millis(r.TotalTime),
		normalize(r.Message),
	}
	if r.ParamTrace != "" {
		fields = append(fields, "# "+r.ParamHash+" "+normalize(r.ParamTrace))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if err := s.w.Write(fields); err != nil {
		s.err = err
		return
	}
	s.w.Flush()
	for i, row := range r.Dump {
		s.writeLine(fmt.Sprintf("#  Row %d:\t%s", i, strings.Join(row, "\t")))
	}
	s.flush()
}

// Err returns the first write error, if any.
func (s *CSVFile) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close flushes and closes the file.
func (s *CSVFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flush()
	if err := s.f.Close(); err != nil && s.err == nil {
		s.err = err
	}
	return s.err
}

func (s *CSVFile) writeLine(line string) {
	if s.err != nil {
		return
	}
	if _, err := s.buf.WriteString(line + "\n"); err != nil {
		s.err = err
	}
}

func (s *CSVFile) flush() {
	s.w.Flush()
	if err := s.w.Error(); err != nil && s.err == nil {
		s.err = err
	}
	if err := s.buf.Flush(); err != nil && s.err == nil {
		s.err = err
	}
}

func millis(d time.Duration) string {
	if d < 0 {
		return strconv.Itoa(metrics.Unknown)
	}
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64)
}

// normalize flattens whitespace so that a value stays on one line.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
