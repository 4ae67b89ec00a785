package sink

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/dbping/internal/ping/metrics"
)

var start = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

func header() metrics.Header {
	return metrics.Header{
		RunID:      "run-1",
		Task:       "orders",
		Datasource: "main",
		Threads:    2,
		Executions: 10,
		StartTime:  start,
		Properties: map[string]string{"owner": "dba", "env": "test"},
		Commands: []metrics.CommandInfo{
			{Label: "${dbping.parent.name}.1", SQL: "SELECT *\n  FROM orders"},
			{Label: "checkout", Children: []metrics.CommandInfo{
				{Label: "${dbping.parent.name}.1", SQL: "UPDATE stock SET n = n - 1"},
			}},
		},
	}
}

func record() metrics.Record {
	return metrics.Record{
		EventTime:      start.Add(1500 * time.Millisecond),
		Task:           "orders",
		Worker:         "1@orders",
		Iteration:      3,
		Label:          "orders.1",
		Rows:           2,
		ConnectionTime: 250 * time.Microsecond,
		FirstRowTime:   metrics.Unknown,
		TotalTime:      12500 * time.Microsecond,
	}
}

func TestCSV_WriteHeader(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSV(&buf)
	s.WriteHeader(header())
	require.NoError(t, s.Err())

	out := buf.String()
	assert.Contains(t, out, "# run: run-1\n")
	assert.Contains(t, out, "# start: 2024-03-01 10:30:00.000\n")
	assert.Contains(t, out, "# env: test\n# owner: dba\n")
	assert.Contains(t, out, "# DataSource: main\n# SQL Sentences:\n")
	assert.Contains(t, out, "#   - orders.1: SELECT * FROM orders\n")
	assert.Contains(t, out, "#   - checkout:\n#     |-- checkout.1: UPDATE stock SET n = n - 1\n")
	assert.True(t, strings.HasSuffix(out, "# date\ttask\tworker\tloop\tlabel\trows\tconn-time\t1row-time\ttotal-time\tmessage\n"))
}

func TestCSV_Write(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSV(&buf)

	s.Write(record())

	failed := record()
	failed.Label = "orders.2"
	failed.Err = errors.New("boom")
	failed.Message = "syntax error\nnear FROM"
	failed.ParamTrace = " p1=5 p2=abc"
	failed.ParamHash = "p15p2abc"
	failed.Dump = [][]string{{"1", "a"}, {"2", "b"}}
	s.Write(failed)
	require.NoError(t, s.Close())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "2024-03-01 10:30:01.500\torders\t1@orders\t3\torders.1\t2\t0.250\t-1\t12.500\t", lines[0])
	assert.Equal(t, "2024-03-01 10:30:01.500\torders\t1@orders\t3\torders.2\t2\t0.250\t-1\t12.500\tsyntax error near FROM\t# p15p2abc p1=5 p2=abc", lines[1])
	assert.Equal(t, "#  Row 0:\t1\ta", lines[2])
	assert.Equal(t, "#  Row 1:\t2\tb", lines[3])
}

func TestOpenCSVFile_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "orders.csv")

	for i := 0; i < 2; i++ {
		s, err := OpenCSVFile(path)
		require.NoError(t, err)
		assert.Equal(t, path, s.Path())
		s.Write(record())
		require.NoError(t, s.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "orders.1"))
}

func TestPrometheus_Write(t *testing.T) {
	p := NewPrometheus()
	p.WriteHeader(header())
	p.Write(record())

	failed := record()
	failed.Err = errors.New("boom")
	failed.Rows = 0
	p.Write(failed)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.tasksStarted.WithLabelValues("orders", "main")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.rowsTotal.WithLabelValues("orders", "orders.1")))
	assert.Equal(t, 2, testutil.CollectAndCount(p.executionSeconds))

	families, err := p.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "dbping_execution_seconds")
	assert.Contains(t, names, "dbping_connection_seconds")
	assert.Contains(t, names, "go_goroutines")
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.Write(record())

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `dbping_rows_total{label="orders.1",task="orders"} 2`)
}

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	summary := metrics.NewSummary()
	m := NewMulti(NewCSV(&a), nil, NewCSV(&b), summary)
	require.Len(t, m, 3)

	m.WriteHeader(header())
	m.Write(record())

	assert.Equal(t, a.String(), b.String())
	stats := summary.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Executions)
}
