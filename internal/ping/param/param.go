// Package param resolves the values bound to statement parameters.
//
// A statement declares an ordered list of parameters. Each one is either a
// Simple parameter (one value per draw) or a Cluster (one row per draw that
// feeds several child Simple parameters by column). Both cycle through
// their value pool round-robin, sharing one counter across all workers.
package param

import (
	"bufio"
	"bytes"
	"os"
	"sort"
	"strings"

	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
	"github.com/wesleyorama2/dbping/pkg/jsonpath"
)

// Param is a parameter declaration: *Simple or *Cluster.
type Param interface {
	order() int
	iterations() int
}

// Sort orders params by their declared Order. Ties keep declaration order.
func Sort(params []Param) {
	sort.SliceStable(params, func(i, j int) bool {
		return params[i].order() < params[j].order()
	})
}

// Iterations returns how many times p is drawn per execution (at least 1).
func Iterations(p Param) int {
	return p.iterations()
}

// Simple yields one value per draw, from an inline comma list or a file.
type Simple struct {
	// Type names the bind coercion (STRING, INTEGER, LONG, FLOAT, DOUBLE, DATE, TIME, TIMESTAMP)
	Type string

	// Value is an inline comma separated list of values
	Value string

	// File is a file with one value per line; the path is interpolated
	File string

	// Path selects an array inside File when File is a JSON document
	Path string

	// Format is the layout of temporal values
	Format string

	// Ref is the column of the cluster row feeding this parameter
	Ref int

	// Order is the binding position within the statement
	Order int

	// Iter is the number of values bound per execution (default 1)
	Iter int

	values pool[string]
}

func (s *Simple) order() int { return s.Order }

func (s *Simple) iterations() int { return max(s.Iter, 1) }

// Next returns the next value of the pool. ok is false when the pool is empty.
//
// The pool is loaded by the first call; a file path is interpolated against
// that caller's context.
func (s *Simple) Next(ectx *execution.Context) (value string, ok bool, err error) {
	return s.values.next(func() ([]string, error) { return s.load(ectx) })
}

func (s *Simple) load(ectx *execution.Context) ([]string, error) {
	if s.File == "" {
		return splitList(s.Value), nil
	}

	path := ectx.Interpolate(s.File)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pingerr.Wrapf(pingerr.ErrResolverIO, err, "reading parameter file %s", path)
	}
	if s.Path != "" {
		values, err := jsonpath.Values(data, s.Path)
		if err != nil {
			return nil, pingerr.Wrapf(pingerr.ErrResolverIO, err, "reading %s from %s", s.Path, path)
		}
		return values, nil
	}
	return readLines(data), nil
}

// Cluster yields one row per draw; each child binds the row column it references.
type Cluster struct {
	// File holds one comma separated row per line; the path is interpolated
	File string

	// Path selects an array of rows inside File when File is a JSON document
	Path string

	// Children are bound in declaration order, each from column Ref of the row
	Children []*Simple

	// Order is the binding position within the statement
	Order int

	// Iter is the number of rows bound per execution (default 1)
	Iter int

	rows pool[[]string]
}

func (c *Cluster) order() int { return c.Order }

func (c *Cluster) iterations() int { return max(c.Iter, 1) }

// Next returns the next row of the pool. ok is false when the pool is empty.
func (c *Cluster) Next(ectx *execution.Context) (row []string, ok bool, err error) {
	return c.rows.next(func() ([][]string, error) { return c.load(ectx) })
}

func (c *Cluster) load(ectx *execution.Context) ([][]string, error) {
	path := ectx.Interpolate(c.File)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pingerr.Wrapf(pingerr.ErrResolverIO, err, "reading cluster file %s", path)
	}
	if c.Path != "" {
		rows, err := jsonpath.Rows(data, c.Path)
		if err != nil {
			return nil, pingerr.Wrapf(pingerr.ErrResolverIO, err, "reading %s from %s", c.Path, path)
		}
		return rows, nil
	}

	lines := readLines(data)
	rows := make([][]string, len(lines))
	for i, line := range lines {
		rows[i] = strings.Split(line, ",")
	}
	return rows, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// readLines returns the non-blank lines of data, without line terminators.
func readLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
