package config

import (
	"strings"
	"time"

	"github.com/wesleyorama2/dbping/internal/ping"
	"github.com/wesleyorama2/dbping/internal/ping/command"
	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/param"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
	"github.com/wesleyorama2/dbping/internal/ping/selector"
)

// BuildTask turns a validated task definition into a runnable task.
//
// Skipped statements are dropped, and so are scripts left without
// statements. The resulting task may have no commands; running it then
// fails with pingerr.ErrNoCommands.
func BuildTask(tc *TaskConfig) (*ping.Task, error) {
	strategy, err := selector.ParseStrategy(tc.Selector)
	if err != nil {
		return nil, pingerr.Wrapf(pingerr.ErrConfiguration, err, "task %s", tc.Name)
	}
	vars, err := buildVars(tc.Context)
	if err != nil {
		return nil, pingerr.Wrapf(pingerr.ErrConfiguration, err, "task %s", tc.Name)
	}

	task := &ping.Task{
		Name:       tc.Name,
		Datasource: tc.Datasource,
		Threads:    max(tc.Threads, 1),
		Executions: tc.Executions,
		Delay:      time.Duration(tc.Delay),
		Rate:       tc.Rate,
		Vars:       vars,
		Selector:   strategy,
		LogFile:    tc.LogFile,
		Properties: tc.Properties,
	}

	for i, cc := range tc.Commands {
		switch {
		case cc.Query != nil:
			if cc.Query.Skip {
				continue
			}
			st, err := buildStatement(cc.Query)
			if err != nil {
				return nil, pingerr.Wrapf(pingerr.ErrConfiguration, err, "task %s command %d", tc.Name, i+1)
			}
			task.Commands = append(task.Commands, st)
		case cc.Script != nil:
			sc, err := buildScript(cc.Script)
			if err != nil {
				return nil, pingerr.Wrapf(pingerr.ErrConfiguration, err, "task %s command %d", tc.Name, i+1)
			}
			if len(sc.Statements) > 0 {
				task.Commands = append(task.Commands, sc)
			}
		}
	}
	return task, nil
}

func buildScript(sc *ScriptConfig) (*command.Script, error) {
	vars, err := buildVars(sc.Context)
	if err != nil {
		return nil, err
	}
	script := &command.Script{
		Label:  sc.Label,
		Weight: sc.Weight,
		Vars:   vars,
	}
	for i := range sc.Statements {
		if sc.Statements[i].Skip {
			continue
		}
		st, err := buildStatement(&sc.Statements[i])
		if err != nil {
			return nil, err
		}
		script.Statements = append(script.Statements, st)
	}
	return script, nil
}

func buildStatement(sc *StatementConfig) (*command.Statement, error) {
	vars, err := buildVars(sc.Context)
	if err != nil {
		return nil, err
	}
	st := &command.Statement{
		SQL:           sc.SQL,
		Label:         sc.Label,
		Weight:        sc.Weight,
		Repeats:       max(sc.Repeats, 1),
		BatchSize:     sc.BatchSize,
		FetchSize:     sc.FetchSize,
		MaxRowsToDump: sc.MaxRowsToDump,
		IgnoreMetrics: sc.IgnoreMetrics,
		ForcePrepared: sc.ForcePrepared,
		Timeout:       time.Duration(sc.Timeout),
		Vars:          vars,
	}
	for i := range sc.Parameters {
		st.Params = append(st.Params, buildParam(&sc.Parameters[i]))
	}
	param.Sort(st.Params)
	return st, nil
}

func buildParam(pc *ParameterConfig) param.Param {
	if !pc.IsCluster() {
		return buildSimple(pc)
	}
	cluster := &param.Cluster{
		File:  pc.File,
		Path:  pc.Path,
		Order: pc.Order,
		Iter:  pc.Iterations,
	}
	for i := range pc.Columns {
		cluster.Children = append(cluster.Children, buildSimple(&pc.Columns[i]))
	}
	return cluster
}

func buildSimple(pc *ParameterConfig) *param.Simple {
	return &param.Simple{
		Type:   strings.ToUpper(pc.Type),
		Value:  pc.Value,
		File:   pc.File,
		Path:   pc.Path,
		Format: pc.Format,
		Ref:    pc.Ref,
		Order:  pc.Order,
		Iter:   pc.Iterations,
	}
}

func buildVars(vars []ContextVar) ([]execution.Var, error) {
	out := make([]execution.Var, 0, len(vars))
	for _, v := range vars {
		activation, err := execution.ParseActivation(v.Activation)
		if err != nil {
			return nil, err
		}
		out = append(out, execution.Var{
			Key:        v.Key,
			Value:      v.Value,
			Activation: activation,
			Unset:      v.Unset,
		})
	}
	return out, nil
}
