// Package config loads and validates dbping task files.
//
// A task file is YAML or JSON:
//
//	datasources:
//	  main:
//	    driver: postgres
//	    dsn: "postgres://probe:${DB_PASSWORD}@db:5432/shop?sslmode=disable"
//	tasks:
//	  - name: orders
//	    datasource: main
//	    threads: 4
//	    executions: 1000
//	    delay: 250ms
//	    logFile: "logs/${dbping.task.name}.log"
//	    commands:
//	      - query:
//	          label: by-customer
//	          sql: "SELECT * FROM orders WHERE customer_id = ?"
//	          parameters:
//	            - type: INTEGER
//	              value: "1,2,3"
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// File is one parsed task file.
type File struct {
	// Path the file was loaded from
	Path string `json:"-" yaml:"-"`

	// Datasources are the databases tasks can run against, keyed by id
	Datasources map[string]DatasourceConfig `json:"datasources,omitempty" yaml:"datasources,omitempty"`

	// Tasks defined in the file
	Tasks []TaskConfig `json:"tasks" yaml:"tasks"`

	// Deprecations lists legacy variable names rewritten while loading
	Deprecations []string `json:"-" yaml:"-"`
}

// DatasourceConfig describes a database connection pool.
type DatasourceConfig struct {
	// Driver is the database/sql driver name: mysql, postgres or sqlite3
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the driver data source name; ${ENV} tokens are expanded from the environment
	DSN string `json:"dsn" yaml:"dsn"`

	MaxOpenConns    int      `json:"maxOpenConns,omitempty" yaml:"maxOpenConns,omitempty"`
	MaxIdleConns    int      `json:"maxIdleConns,omitempty" yaml:"maxIdleConns,omitempty"`
	ConnMaxLifetime Duration `json:"connMaxLifetime,omitempty" yaml:"connMaxLifetime,omitempty"`
}

// TaskConfig defines a probe task.
type TaskConfig struct {
	// Name of the task
	Name string `json:"name" yaml:"name"`

	// Datasource is the id of the database to probe
	Datasource string `json:"datasource" yaml:"datasource"`

	// Threads is the number of concurrent workers (default 1)
	Threads int `json:"threads,omitempty" yaml:"threads,omitempty"`

	// Executions is the number of iterations of every worker; <= 0 runs until interrupted
	Executions int64 `json:"executions,omitempty" yaml:"executions,omitempty"`

	// Delay is the pause between two iterations (string or integer milliseconds)
	Delay Duration `json:"delay,omitempty" yaml:"delay,omitempty"`

	// Rate caps the iterations per second of the whole task
	Rate float64 `json:"rate,omitempty" yaml:"rate,omitempty"`

	// Selector is the command selection strategy: auto, round-robin or weighted-random
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`

	// LogFile is the metrics log path; may reference context variables
	LogFile string `json:"logFile,omitempty" yaml:"logFile,omitempty"`

	// Properties are free-form values written to the log header
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`

	// Context variables applied at every iteration
	Context []ContextVar `json:"context,omitempty" yaml:"context,omitempty"`

	// Commands the task selects from
	Commands []CommandConfig `json:"commands" yaml:"commands"`
}

// ContextVar is a context variable, optionally conditional on the iteration parity.
type ContextVar struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`

	// Activation is ALWAYS (default), EVEN or ODD
	Activation string `json:"activation,omitempty" yaml:"activation,omitempty"`

	// Unset is assigned when the activation does not hold; absent means keep the previous value
	Unset *string `json:"unset,omitempty" yaml:"unset,omitempty"`
}

// CommandConfig holds exactly one of Query or Script.
type CommandConfig struct {
	Query  *StatementConfig `json:"query,omitempty" yaml:"query,omitempty"`
	Script *ScriptConfig    `json:"script,omitempty" yaml:"script,omitempty"`
}

// StatementConfig defines one SQL statement.
type StatementConfig struct {
	// Label names the statement in the metrics log (default ${dbping.parent.name}.<n>)
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// SQL text, or file://path to read it from
	SQL string `json:"sql" yaml:"sql"`

	Weight        int      `json:"weight,omitempty" yaml:"weight,omitempty"`
	Repeats       int      `json:"repeats,omitempty" yaml:"repeats,omitempty"`
	BatchSize     int      `json:"batchSize,omitempty" yaml:"batchSize,omitempty"`
	FetchSize     int      `json:"fetchSize,omitempty" yaml:"fetchSize,omitempty"`
	MaxRowsToDump int      `json:"maxRowsToDump,omitempty" yaml:"maxRowsToDump,omitempty"`
	Timeout       Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Skip removes the statement from the task
	Skip bool `json:"skip,omitempty" yaml:"skip,omitempty"`

	// IgnoreMetrics keeps successful executions out of the metrics log
	IgnoreMetrics bool `json:"ignoreMetrics,omitempty" yaml:"ignoreMetrics,omitempty"`

	// ForcePrepared prepares the statement even without parameters
	ForcePrepared bool `json:"forcePrepared,omitempty" yaml:"forcePrepared,omitempty"`

	Context    []ContextVar      `json:"context,omitempty" yaml:"context,omitempty"`
	Parameters []ParameterConfig `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ScriptConfig defines statements run in order on one connection.
type ScriptConfig struct {
	Label      string            `json:"label,omitempty" yaml:"label,omitempty"`
	Weight     int               `json:"weight,omitempty" yaml:"weight,omitempty"`
	Context    []ContextVar      `json:"context,omitempty" yaml:"context,omitempty"`
	Statements []StatementConfig `json:"statements" yaml:"statements"`
}

// ParameterConfig defines a statement parameter.
//
// A parameter with Columns is a cluster: each row of File feeds the column
// parameters through their Ref.
type ParameterConfig struct {
	// Type is STRING (default), INTEGER, LONG, FLOAT, DOUBLE, DATE, TIME or TIMESTAMP
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Value is an inline comma separated list
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// File holds one value (or row) per line, or a JSON document when Path is set
	File string `json:"file,omitempty" yaml:"file,omitempty"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Format is the layout of DATE, TIME and TIMESTAMP values
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Ref is the row column of a cluster column parameter
	Ref int `json:"ref,omitempty" yaml:"ref,omitempty"`

	Order      int `json:"order,omitempty" yaml:"order,omitempty"`
	Iterations int `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	Columns []ParameterConfig `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// IsCluster reports whether the parameter is a cluster.
func (p *ParameterConfig) IsCluster() bool {
	return len(p.Columns) > 0
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings
// ("250ms", "1m") or integer milliseconds.
type Duration time.Duration

// ParseDuration parses a duration string; a bare integer is milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}
	return d, nil
}

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
