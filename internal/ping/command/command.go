// Package command executes the SQL commands a task is made of.
//
// A Command is either a *Statement (one SQL text, run with optional repeats
// and batching) or a *Script (an ordered list of statements sharing one
// connection, without a surrounding transaction). Every execution attempt
// produces a metrics.Record that is handed to the context's sink.
package command

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/metrics"
	"github.com/wesleyorama2/dbping/internal/ping/param"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
)

// Command is an executable unit: *Statement or *Script.
type Command interface {
	// Execute runs the command once on a connection of its own.
	Execute(ctx context.Context, ectx *execution.Context) error

	// Info describes the command for log headers.
	Info() metrics.CommandInfo

	sealed()
}

// Statement is a single SQL statement.
type Statement struct {
	// SQL is the statement text, or file://path; both are interpolated
	SQL string

	// Label names the statement in metrics; interpolated per execution
	Label string

	// Weight is the relative selection weight (<= 0 means undeclared)
	Weight int

	// Repeats is the number of executions per attempt (default 1)
	Repeats int

	// BatchSize groups executions: 0 or 1 executes immediately,
	// > 1 flushes every BatchSize executions, < 0 flushes once at the end
	BatchSize int

	// FetchSize is a row fetch hint for drivers that accept one (<= 0 disables)
	FetchSize int

	// MaxRowsToDump bounds the rows whose values are kept in the record
	MaxRowsToDump int

	// IgnoreMetrics suppresses the record of successful attempts
	IgnoreMetrics bool

	// ForcePrepared prepares the statement even without parameters
	ForcePrepared bool

	// Timeout bounds one attempt (0 means no bound)
	Timeout time.Duration

	// Params are bound in ascending order
	Params []param.Param

	// Vars are applied to the context before the statement runs
	Vars []execution.Var
}

func (*Statement) sealed() {}

// Info implements Command.
func (s *Statement) Info() metrics.CommandInfo {
	return metrics.CommandInfo{Label: s.Label, SQL: s.SQL, Weight: s.Weight}
}

// Prepared reports whether the statement runs in prepared form.
func (s *Statement) Prepared() bool {
	return len(s.Params) > 0 || s.ForcePrepared
}

// Batched reports whether executions are grouped in batches.
func (s *Statement) Batched() bool {
	return s.BatchSize > 1 || s.BatchSize < 0
}

// Execute implements Command. The connection comes from ectx.Provider and is
// closed before Execute returns.
func (s *Statement) Execute(ctx context.Context, ectx *execution.Context) error {
	rec := metrics.NewRecorder(ectx.TaskName, ectx.Worker, s.MaxRowsToDump)
	sctx := ectx.Clone()
	sctx.Apply(s.Vars)
	rec.SetIteration(ectx.Iteration)
	rec.SetLabel(sctx.Interpolate(s.Label))

	conn, err := acquire(ctx, ectx)
	if err != nil {
		rec.Fail(err)
		ectx.Sink.Write(rec.Build())
		return err
	}
	defer conn.Close()
	rec.Connect()

	return s.run(ctx, sctx, conn, rec)
}

// ExecuteOn runs the statement on a connection owned by the caller.
func (s *Statement) ExecuteOn(ctx context.Context, ectx *execution.Context, conn *sql.Conn) error {
	rec := metrics.NewRecorder(ectx.TaskName, ectx.Worker, s.MaxRowsToDump)
	sctx := ectx.Clone()
	sctx.Apply(s.Vars)
	rec.SetIteration(ectx.Iteration)
	rec.SetLabel(sctx.Interpolate(s.Label))
	rec.Connect()

	return s.run(ctx, sctx, conn, rec)
}

func (s *Statement) run(ctx context.Context, ectx *execution.Context, conn *sql.Conn, rec *metrics.Recorder) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	err := s.execute(ctx, ectx, conn, rec)
	if err != nil {
		rec.Fail(err)
	}
	record := rec.Build()
	if err != nil || !s.IgnoreMetrics {
		ectx.Sink.Write(record)
	}
	return err
}

func (s *Statement) execute(ctx context.Context, ectx *execution.Context, conn *sql.Conn, rec *metrics.Recorder) error {
	sqlText, err := CompileSQL(ectx, s.SQL)
	if err != nil {
		return err
	}

	var stmt *sql.Stmt
	if s.Prepared() {
		stmt, err = conn.PrepareContext(ctx, sqlText)
		if err != nil {
			return pingerr.Wrapf(pingerr.ErrExecution, err, "preparing query: %s", sqlText)
		}
		defer stmt.Close()
	}

	pending := newBatch(s.BatchSize, func(ctx context.Context, queued [][]any) error {
		rec.AddBatch()
		for _, args := range queued {
			if _, err := execContext(ctx, conn, stmt, sqlText, args); err != nil {
				return pingerr.Wrapf(pingerr.ErrExecution, err, "executing batch: %s", sqlText)
			}
		}
		return nil
	})

	for i := 0; i < max(s.Repeats, 1); i++ {
		if err := applyFetchSize(conn, s.FetchSize); err != nil {
			return pingerr.Wrapf(pingerr.ErrExecution, err, "setting fetch size")
		}

		rec.ResetParams()
		args, err := s.bind(ectx, rec)
		if err != nil {
			return err
		}

		if s.Batched() {
			if err := pending.add(ctx, args); err != nil {
				return err
			}
			continue
		}
		if err := runOnce(ctx, conn, stmt, sqlText, args, rec); err != nil {
			return pingerr.Wrapf(pingerr.ErrExecution, err, "executing query: %s", sqlText)
		}
	}

	return pending.Flush(ctx)
}

// bind draws every parameter value for one execution, in order.
func (s *Statement) bind(ectx *execution.Context, rec *metrics.Recorder) ([]any, error) {
	var args []any
	bindOne := func(p *param.Simple, raw string) error {
		v, err := Coerce(p.Type, p.Format, raw)
		if err != nil {
			return pingerr.Wrapf(pingerr.ErrBind, err, "binding parameter %d", len(args)+1)
		}
		args = append(args, v)
		rec.AddParam(fmt.Sprintf(" p%d=%s", len(args), raw))
		return nil
	}

	for _, p := range s.Params {
		for it := 0; it < param.Iterations(p); it++ {
			switch p := p.(type) {
			case *param.Simple:
				raw, ok, err := p.Next(ectx)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, pingerr.Newf(pingerr.ErrBind, "parameter %d has no value", len(args)+1)
				}
				if err := bindOne(p, raw); err != nil {
					return nil, err
				}
			case *param.Cluster:
				row, ok, err := p.Next(ectx)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, pingerr.Newf(pingerr.ErrBind, "cluster parameter at %d has no rows", len(args)+1)
				}
				for _, child := range p.Children {
					if child.Ref < 0 || child.Ref >= len(row) {
						return nil, pingerr.Newf(pingerr.ErrBind, "column %d not found in cluster row of %d columns", child.Ref, len(row))
					}
					if err := bindOne(child, row[child.Ref]); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return args, nil
}

// Script is an ordered list of statements sharing one connection.
type Script struct {
	// Label names the script in metrics and becomes dbping.parent.name of its statements
	Label string

	// Weight is the relative selection weight (<= 0 means undeclared)
	Weight int

	// Vars are applied to the context of every statement
	Vars []execution.Var

	// Statements run in order; a failure does not stop the following ones
	Statements []*Statement
}

func (*Script) sealed() {}

// Info implements Command.
func (s *Script) Info() metrics.CommandInfo {
	info := metrics.CommandInfo{Label: s.Label, Weight: s.Weight}
	for _, st := range s.Statements {
		info.Children = append(info.Children, st.Info())
	}
	return info
}

// Execute implements Command.
//
// It writes one record per statement plus one record for the script itself.
// Statement failures are logged and do not fail the script.
func (s *Script) Execute(ctx context.Context, ectx *execution.Context) error {
	rec := metrics.NewRecorder(ectx.TaskName, ectx.Worker, 0)
	sctx := ectx.Clone()
	sctx.Apply(s.Vars)
	label := sctx.Interpolate(s.Label)
	rec.SetIteration(ectx.Iteration)
	rec.SetLabel(label)

	conn, err := acquire(ctx, ectx)
	if err != nil {
		rec.Fail(err)
		ectx.Sink.Write(rec.Build())
		return err
	}
	defer conn.Close()
	rec.Connect()

	for i, st := range s.Statements {
		child := sctx.Clone()
		child.Set(execution.KeyParentName, label)
		if err := st.ExecuteOn(ctx, child, conn); err != nil {
			ectx.Logger.Warn("script statement failed",
				zap.String("script", label),
				zap.Int("statement", i+1),
				zap.Error(err))
		}
	}

	ectx.Sink.Write(rec.Build())
	return nil
}

func acquire(ctx context.Context, ectx *execution.Context) (*sql.Conn, error) {
	if ectx.Provider == nil {
		return nil, pingerr.New(pingerr.ErrConnection, "no connection provider")
	}
	conn, err := ectx.Provider.Conn(ctx)
	if err != nil {
		return nil, pingerr.Wrapf(pingerr.ErrConnection, err, "acquiring connection")
	}
	return conn, nil
}
