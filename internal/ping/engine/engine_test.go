package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/dbping/internal/ping"
	"github.com/wesleyorama2/dbping/internal/ping/config"
	"github.com/wesleyorama2/dbping/internal/ping/datasource"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
	"github.com/wesleyorama2/dbping/internal/ping/sink"
)

const tasksYAML = `
datasources:
  main:
    driver: sqlite3
    dsn: "file::memory:"
tasks:
  - name: alpha
    datasource: main
    executions: 2
    logFile: "%[1]s/run.csv"
    commands:
      - query:
          label: one
          sql: "SELECT 1"
  - name: beta
    datasource: main
    executions: 2
    logFile: "%[1]s/run.csv"
    commands:
      - query:
          label: two
          sql: "SELECT 2"
  - name: gamma
    datasource: main
    executions: 1
    logFile: "%[1]s/${dbping.task.name}.csv"
    commands:
      - query:
          sql: "DELETE FROM t"
          skip: true
`

func loadTasks(t *testing.T, dir string, names ...string) (*config.Project, []*config.TaskConfig) {
	t.Helper()
	path := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(tasksYAML, filepath.ToSlash(dir))), 0o644))

	project, err := config.LoadPaths(path)
	require.NoError(t, err)
	tasks, err := project.Select(names...)
	require.NoError(t, err)
	return project, tasks
}

func newRegistry(t *testing.T, project *config.Project) (*datasource.Registry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	db.SetMaxIdleConns(16)

	registry := datasource.NewRegistry(DatasourceConfigs(project.Datasources)).
		WithOpen(func(driver, dsn string) (*sql.DB, error) { return db, nil })
	t.Cleanup(func() { _ = registry.Close() })
	return registry, mock
}

func TestEngine_Run(t *testing.T) {
	dir := t.TempDir()
	project, tasks := loadTasks(t, dir, "alpha", "beta")
	registry, mock := newRegistry(t, project)
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(1))
		mock.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(2).AddRow(2))
	}

	prom := sink.NewPrometheus()
	eng, err := NewEngine(tasks, registry, Options{RunID: "run-42", Prometheus: prom})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "run-42", result.RunID)
	require.Len(t, result.Tasks, 2)
	for _, tr := range result.Tasks {
		assert.Equal(t, int64(2), tr.Iterations, tr.Name)
		assert.Equal(t, filepath.Join(dir, "run.csv"), filepath.FromSlash(tr.LogFile))
		assert.NoError(t, tr.Error)
	}

	require.Len(t, result.Stats, 2)
	assert.Equal(t, "alpha", result.Stats[0].Task)
	assert.Equal(t, int64(2), result.Stats[0].Rows)
	assert.Equal(t, "beta", result.Stats[1].Task)
	assert.Equal(t, int64(4), result.Stats[1].Rows)

	data, err := os.ReadFile(filepath.Join(dir, "run.csv"))
	require.NoError(t, err)
	log := string(data)
	assert.Contains(t, log, "# run: run-42\n")
	assert.Contains(t, log, "# task: alpha\n")
	assert.Contains(t, log, "# task: beta\n")
	assert.Equal(t, 2, strings.Count(log, "\talpha\t1@alpha\t"))
	assert.Equal(t, 2, strings.Count(log, "\tbeta\t1@beta\t"))

	count, err := testutil.GatherAndCount(prom.Registry(), "dbping_execution_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEngine_RefusesTaskWithoutCommands(t *testing.T) {
	dir := t.TempDir()
	project, tasks := loadTasks(t, dir, "gamma")
	registry, _ := newRegistry(t, project)

	eng, err := NewEngine(tasks, registry, Options{})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, pingerr.Is(err, pingerr.ErrNoCommands))
}

func TestEngine_BrokenTaskDoesNotStopOthers(t *testing.T) {
	dir := t.TempDir()
	project, tasks := loadTasks(t, dir, "alpha", "gamma")
	registry, mock := newRegistry(t, project)
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(1))
	}

	eng, err := NewEngine(tasks, registry, Options{})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, result)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, pingerr.Is(err, pingerr.ErrNoCommands))

	require.Len(t, result.Tasks, 2)
	alpha, gamma := result.Tasks[0], result.Tasks[1]
	assert.Equal(t, "alpha", alpha.Name)
	assert.NoError(t, alpha.Error)
	assert.Equal(t, int64(2), alpha.Iterations)

	assert.Equal(t, "gamma", gamma.Name)
	require.Error(t, gamma.Error)
	assert.True(t, pingerr.Is(gamma.Error, pingerr.ErrNoCommands))
	assert.Zero(t, gamma.Iterations)

	require.Len(t, result.Stats, 1)
	assert.Equal(t, "alpha", result.Stats[0].Task)
}

func TestEngine_UnknownDatasource(t *testing.T) {
	dir := t.TempDir()
	_, tasks := loadTasks(t, dir, "alpha")

	eng, err := NewEngine(tasks, datasource.NewRegistry(nil), Options{})
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.Error(t, err)
	assert.True(t, pingerr.Is(err, pingerr.ErrConfiguration))
}

func TestEngine_SequentialStopsWhenCancelled(t *testing.T) {
	dir := t.TempDir()
	project, tasks := loadTasks(t, dir, "alpha", "beta")
	registry, _ := newRegistry(t, project)

	eng, err := NewEngine(tasks, registry, Options{Sequential: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := eng.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	for _, tr := range result.Tasks {
		assert.Zero(t, tr.Iterations)
	}
}

func TestNewEngine_Errors(t *testing.T) {
	_, err := NewEngine(nil, datasource.NewRegistry(nil), Options{})
	assert.Error(t, err)

	_, tasks := loadTasks(t, t.TempDir(), "alpha")
	_, err = NewEngine(tasks, nil, Options{})
	assert.Error(t, err)
}

func TestLogFilePath(t *testing.T) {
	task := &ping.Task{Name: "orders", Datasource: "main", LogFile: "logs/${dbping.datasource}/${dbping.task.name}.csv"}
	assert.Equal(t, "logs/main/orders.csv", LogFilePath(task))

	task.LogFile = ""
	assert.Empty(t, LogFilePath(task))
}
