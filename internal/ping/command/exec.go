package command

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wesleyorama2/dbping/internal/ping/metrics"
)

// fetchSizer is implemented by driver connections that accept a row fetch hint.
type fetchSizer interface {
	SetFetchSize(rows int) error
}

func applyFetchSize(conn *sql.Conn, size int) error {
	if size <= 0 {
		return nil
	}
	return conn.Raw(func(driverConn any) error {
		if fs, ok := driverConn.(fetchSizer); ok {
			return fs.SetFetchSize(size)
		}
		return nil
	})
}

// runOnce executes the statement once. Queries are read to the end.
func runOnce(ctx context.Context, conn *sql.Conn, stmt *sql.Stmt, sqlText string, args []any, rec *metrics.Recorder) error {
	if !IsQuery(sqlText) {
		_, err := execContext(ctx, conn, stmt, sqlText, args)
		return err
	}

	var rows *sql.Rows
	var err error
	if stmt != nil {
		rows, err = stmt.QueryContext(ctx, args...)
	} else {
		rows, err = conn.QueryContext(ctx, sqlText, args...)
	}
	if err != nil {
		return err
	}
	defer rows.Close()

	return readRows(rows, rec)
}

func execContext(ctx context.Context, conn *sql.Conn, stmt *sql.Stmt, sqlText string, args []any) (sql.Result, error) {
	if stmt != nil {
		return stmt.ExecContext(ctx, args...)
	}
	return conn.ExecContext(ctx, sqlText, args...)
}

func readRows(rows *sql.Rows, rec *metrics.Recorder) error {
	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	values := make([]any, len(columns))
	targets := make([]any, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}

	for rows.Next() {
		if !rec.WantsRowValues() {
			rec.AddRow(nil)
			continue
		}
		if err := rows.Scan(targets...); err != nil {
			return err
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		rec.AddRow(row)
	}
	return rows.Err()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
