package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		typ     string
		format  string
		raw     string
		want    any
		wantErr bool
	}{
		{"INTEGER", "", "42", int32(42), false},
		{"integer", "", " -7 ", int32(-7), false},
		{"INTEGER", "", "3000000000", nil, true},
		{"LONG", "", "3000000000", int64(3000000000), false},
		{"LONG", "", "x", nil, true},
		{"FLOAT", "", "1.5", float32(1.5), false},
		{"DOUBLE", "", "2.25", 2.25, false},
		{"DOUBLE", "", "two", nil, true},
		{"STRING", "", "hello", "hello", false},
		{"", "", "raw", "raw", false},
		{"VARCHAR", "", "kept", "kept", false},
		{"DATE", "", "2024-01-31", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), false},
		{"DATE", "dd/MM/yyyy", "31/01/2024", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), false},
		{"TIME", "", "10:11:12", time.Date(0, 1, 1, 10, 11, 12, 0, time.UTC), false},
		{"TIMESTAMP", "", "2024-01-31 10:11:12", time.Date(2024, 1, 31, 10, 11, 12, 0, time.UTC), false},
		{"TIMESTAMP", "yyyy-MM-dd'T'HH:mm:ss.SSS", "2024-01-31T10:11:12.500", time.Date(2024, 1, 31, 10, 11, 12, 500000000, time.UTC), false},
		{"TIMESTAMP", "2006-01-02T15:04", "2024-01-31T10:11", time.Date(2024, 1, 31, 10, 11, 0, 0, time.UTC), false},
		{"DATE", "", "31/01/2024", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.raw, func(t *testing.T) {
			got, err := Coerce(tt.typ, tt.format, tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pingerr.Is(err, pingerr.ErrBind))
				return
			}
			require.NoError(t, err)
			if want, ok := tt.want.(time.Time); ok {
				assert.True(t, want.Equal(got.(time.Time)), "got %v, want %v", got, want)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLayout(t *testing.T) {
	assert.Equal(t, "2006-01-02", Layout("", "2006-01-02"))
	assert.Equal(t, "02.01.2006 15:04", Layout("dd.MM.yyyy HH:mm", ""))
	assert.Equal(t, "15:04:05", Layout("15:04:05", ""))
}

func TestCompileSQL(t *testing.T) {
	ectx := execution.New("orders", "db", 1, nil, nil, nil)
	ectx.Set("table", "orders_eu")

	got, err := CompileSQL(ectx, "  SELECT *\n\tFROM ${table}\n WHERE 1 = 1 ")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders_eu WHERE 1 = 1", got)
}

func TestCompileSQL_FileReference(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.sql"), []byte("SELECT count(*)\nFROM ${table}\n"), 0o644))

	ectx := execution.New("orders", "db", 1, nil, nil, nil)
	ectx.Set("table", "orders_eu")
	ectx.Set("dir", dir)

	got, err := CompileSQL(ectx, "FILE://${dir}/${dbping.task.name}.sql")
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM orders_eu", got)

	_, err = CompileSQL(ectx, "file://"+filepath.Join(dir, "missing.sql"))
	assert.True(t, pingerr.Is(err, pingerr.ErrResolverIO))
}

func TestIsQuery(t *testing.T) {
	queries := []string{"SELECT 1", "select 1", "(SELECT 1) UNION (SELECT 2)", "WITH x AS (SELECT 1) SELECT * FROM x", "show tables", "PRAGMA table_info(t)", "VALUES (1)"}
	for _, q := range queries {
		assert.True(t, IsQuery(q), q)
	}

	others := []string{"INSERT INTO t VALUES (1)", "update t set a = 1", "DELETE FROM t", "CREATE TABLE t (a int)", "", "SELECTED"}
	for _, q := range others {
		assert.False(t, IsQuery(q), q)
	}
}

func TestBatch(t *testing.T) {
	var flushed [][]int

	b := newBatch(3, func(_ context.Context, pending [][]any) error {
		var group []int
		for _, args := range pending {
			group = append(group, args[0].(int))
		}
		flushed = append(flushed, group)
		return nil
	})

	for i := 1; i <= 7; i++ {
		require.NoError(t, b.add(context.Background(), []any{i}))
	}
	require.NoError(t, b.Flush(context.Background()))
	require.NoError(t, b.Flush(context.Background()))

	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, flushed)
	assert.Equal(t, 3, b.flushes)
}

func TestBatch_FlushError(t *testing.T) {
	boom := errors.New("boom")
	b := newBatch(2, func(context.Context, [][]any) error { return boom })

	require.NoError(t, b.add(context.Background(), []any{1}))
	assert.ErrorIs(t, b.add(context.Background(), []any{2}), boom)
	assert.NoError(t, b.Flush(context.Background()))
}
