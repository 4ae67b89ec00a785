package config

import (
	"fmt"
	"strings"

	"github.com/wesleyorama2/dbping/internal/ping/command"
	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/selector"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

var knownTypes = map[string]bool{
	"": true, "STRING": true, "VARCHAR": true,
	"INTEGER": true, "INT": true, "LONG": true,
	"FLOAT": true, "DOUBLE": true,
	"DATE": true, "TIME": true, "TIMESTAMP": true,
}

var knownDrivers = map[string]bool{"mysql": true, "postgres": true, "sqlite3": true}

// Validate validates the whole file.
//
// Returns nil if valid, or a *ValidationErrors containing all validation errors.
func (f *File) Validate() error {
	errs := &ValidationErrors{}

	if len(f.Tasks) == 0 {
		errs.Add("tasks", "at least one task is required")
	}

	for id, ds := range f.Datasources {
		validateDatasource("datasources."+id, &ds, errs)
	}

	names := make(map[string]bool)
	for i := range f.Tasks {
		task := &f.Tasks[i]
		prefix := fmt.Sprintf("tasks[%d]", i)
		key := strings.ToLower(task.Name)
		if names[key] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate task name %q", task.Name))
		}
		names[key] = true
		validateTask(prefix, task, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateDatasource(prefix string, ds *DatasourceConfig, errs *ValidationErrors) {
	if !knownDrivers[ds.Driver] {
		errs.Add(prefix+".driver", fmt.Sprintf("unknown driver %q (want mysql, postgres or sqlite3)", ds.Driver))
	}
	if strings.TrimSpace(ds.DSN) == "" {
		errs.Add(prefix+".dsn", "dsn is required")
	}
	if ds.MaxOpenConns < 0 {
		errs.Add(prefix+".maxOpenConns", "maxOpenConns cannot be negative")
	}
	if ds.MaxIdleConns < 0 {
		errs.Add(prefix+".maxIdleConns", "maxIdleConns cannot be negative")
	}
}

func validateTask(prefix string, task *TaskConfig, errs *ValidationErrors) {
	if strings.TrimSpace(task.Name) == "" {
		errs.Add(prefix+".name", "task name is required")
	}
	if strings.TrimSpace(task.Datasource) == "" {
		errs.Add(prefix+".datasource", "datasource is required")
	}
	if task.Delay < 0 {
		errs.Add(prefix+".delay", "delay cannot be negative")
	}
	if task.Rate < 0 {
		errs.Add(prefix+".rate", "rate cannot be negative")
	}
	if _, err := selector.ParseStrategy(task.Selector); err != nil {
		errs.Add(prefix+".selector", err.Error())
	}
	validateContext(prefix+".context", task.Context, errs)

	if len(task.Commands) == 0 {
		errs.Add(prefix+".commands", "at least one command is required")
	}
	for i, cmd := range task.Commands {
		cmdPrefix := fmt.Sprintf("%s.commands[%d]", prefix, i)
		switch {
		case cmd.Query != nil && cmd.Script != nil:
			errs.Add(cmdPrefix, "a command is either a query or a script, not both")
		case cmd.Query != nil:
			validateStatement(cmdPrefix+".query", cmd.Query, errs)
		case cmd.Script != nil:
			validateScript(cmdPrefix+".script", cmd.Script, errs)
		default:
			errs.Add(cmdPrefix, "a command needs a query or a script")
		}
	}
}

func validateScript(prefix string, sc *ScriptConfig, errs *ValidationErrors) {
	if len(sc.Statements) == 0 {
		errs.Add(prefix+".statements", "a script needs at least one statement")
	}
	validateContext(prefix+".context", sc.Context, errs)
	for i := range sc.Statements {
		validateStatement(fmt.Sprintf("%s.statements[%d]", prefix, i), &sc.Statements[i], errs)
	}
}

func validateStatement(prefix string, st *StatementConfig, errs *ValidationErrors) {
	if strings.TrimSpace(st.SQL) == "" {
		errs.Add(prefix+".sql", "sql is required")
	}
	if st.MaxRowsToDump < 0 {
		errs.Add(prefix+".maxRowsToDump", "maxRowsToDump cannot be negative")
	}
	if st.Timeout < 0 {
		errs.Add(prefix+".timeout", "timeout cannot be negative")
	}
	validateContext(prefix+".context", st.Context, errs)
	for i := range st.Parameters {
		validateParameter(fmt.Sprintf("%s.parameters[%d]", prefix, i), &st.Parameters[i], false, errs)
	}
}

func validateParameter(prefix string, p *ParameterConfig, column bool, errs *ValidationErrors) {
	if p.IsCluster() {
		if column {
			errs.Add(prefix+".columns", "cluster parameters cannot be nested")
			return
		}
		if p.File == "" {
			errs.Add(prefix+".file", "a cluster parameter needs a file")
		}
		for i := range p.Columns {
			validateParameter(fmt.Sprintf("%s.columns[%d]", prefix, i), &p.Columns[i], true, errs)
		}
		return
	}

	if !knownTypes[strings.ToUpper(p.Type)] {
		errs.Add(prefix+".type", fmt.Sprintf("unknown parameter type %q", p.Type))
	}
	if column {
		if p.Value != "" || p.File != "" {
			errs.Add(prefix, "a cluster column takes its values from the cluster file")
		}
		if p.Ref < 0 {
			errs.Add(prefix+".ref", "ref cannot be negative")
		}
		return
	}
	if p.Value != "" && p.File != "" {
		errs.Add(prefix, "value and file are mutually exclusive")
	}
	if p.Path != "" && p.File == "" {
		errs.Add(prefix+".path", "path requires a file")
	}
	switch strings.ToUpper(p.Type) {
	case "DATE", "TIME", "TIMESTAMP":
		validateTemporalValues(prefix, p, errs)
	}
}

// validateTemporalValues parses inline temporal values with the declared format.
func validateTemporalValues(prefix string, p *ParameterConfig, errs *ValidationErrors) {
	if p.Value != "" {
		for _, raw := range strings.Split(p.Value, ",") {
			if _, err := command.Coerce(p.Type, p.Format, strings.TrimSpace(raw)); err != nil {
				errs.Add(prefix+".value", err.Error())
				break
			}
		}
	}
}

func validateContext(prefix string, vars []ContextVar, errs *ValidationErrors) {
	for i, v := range vars {
		if strings.TrimSpace(v.Key) == "" {
			errs.Add(fmt.Sprintf("%s[%d].key", prefix, i), "key is required")
		}
		if _, err := execution.ParseActivation(v.Activation); err != nil {
			errs.Add(fmt.Sprintf("%s[%d].activation", prefix, i), err.Error())
		}
	}
}
