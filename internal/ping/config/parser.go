package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
	"github.com/wesleyorama2/dbping/pkg/interpolate"
	"github.com/wesleyorama2/dbping/pkg/jsonschema"
)

//go:embed schema.json
var schemaJSON string

var fileSchema = jsonschema.MustCompile("dbping-tasks.json", schemaJSON)

// Extensions are the file extensions loaded from directories.
var Extensions = []string{".yaml", ".yml", ".json"}

// LoadConfig loads a task file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// The file is checked against the task file schema, legacy variable names
// are rewritten and the result is validated.
func LoadConfig(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pingerr.Wrapf(pingerr.ErrConfiguration, err, "reading task file")
	}

	return ParseConfig(data, path)
}

// ParseConfig parses task file data. path selects the format and is kept in File.Path.
func ParseConfig(data []byte, path string) (*File, error) {
	if err := validateSchema(data, path); err != nil {
		return nil, err
	}

	var file File
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, pingerr.Wrapf(pingerr.ErrConfiguration, err, "parsing JSON task file %s", path)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, pingerr.Wrapf(pingerr.ErrConfiguration, err, "parsing YAML task file %s", path)
		}
	}
	file.Path = path

	file.Deprecations = CanonicalizeVariables(&file)
	ApplyDefaults(&file)
	if err := file.Validate(); err != nil {
		return nil, pingerr.Wrapf(pingerr.ErrConfiguration, err, "invalid task file %s", path)
	}
	return &file, nil
}

// validateSchema checks data against the embedded schema. YAML documents are
// converted to JSON first.
func validateSchema(data []byte, path string) error {
	doc := data
	if strings.ToLower(filepath.Ext(path)) != ".json" {
		var v interface{}
		if err := yaml.Unmarshal(data, &v); err != nil {
			return pingerr.Wrapf(pingerr.ErrConfiguration, err, "parsing YAML task file %s", path)
		}
		var err error
		if doc, err = json.Marshal(v); err != nil {
			return pingerr.Wrapf(pingerr.ErrConfiguration, err, "converting %s to JSON", path)
		}
	}

	if errs := fileSchema.Validate(doc); errs != nil {
		return pingerr.Wrapf(pingerr.ErrConfiguration, errs, "task file %s does not match the schema", path)
	}
	return nil
}

// Project is the union of several task files.
type Project struct {
	Files       []*File
	Datasources map[string]DatasourceConfig
}

// LoadPaths loads every path. A directory contributes its files with one of
// Extensions, in lexical order. Datasource ids and task names must be unique
// across the project; the same datasource may be declared twice if both
// declarations are identical.
func LoadPaths(paths ...string) (*Project, error) {
	files, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, pingerr.New(pingerr.ErrConfiguration, "no task files found")
	}

	project := &Project{Datasources: make(map[string]DatasourceConfig)}
	taskOwner := make(map[string]string)
	for _, path := range files {
		file, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}

		for id, ds := range file.Datasources {
			if prev, ok := project.Datasources[id]; ok && prev != ds {
				return nil, pingerr.Newf(pingerr.ErrConfiguration, "datasource %q is defined differently in %s", id, path)
			}
			project.Datasources[id] = ds
		}
		for _, task := range file.Tasks {
			key := strings.ToLower(task.Name)
			if owner, ok := taskOwner[key]; ok {
				return nil, pingerr.Newf(pingerr.ErrConfiguration, "task %q is defined in %s and %s", task.Name, owner, path)
			}
			taskOwner[key] = path
		}
		project.Files = append(project.Files, file)
	}

	for _, file := range project.Files {
		for _, task := range file.Tasks {
			if _, ok := project.Datasources[task.Datasource]; !ok {
				return nil, pingerr.Newf(pingerr.ErrConfiguration, "task %q uses unknown datasource %q", task.Name, task.Datasource)
			}
		}
	}
	return project, nil
}

// Tasks returns the tasks of the project in file order.
func (p *Project) Tasks() []*TaskConfig {
	var tasks []*TaskConfig
	for _, file := range p.Files {
		for i := range file.Tasks {
			tasks = append(tasks, &file.Tasks[i])
		}
	}
	return tasks
}

// Select returns the tasks named in names, matched case-insensitively, in
// project order. No names selects every task.
func (p *Project) Select(names ...string) ([]*TaskConfig, error) {
	all := p.Tasks()
	if len(names) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[strings.ToLower(strings.TrimSpace(name))] = false
	}

	var selected []*TaskConfig
	for _, task := range all {
		key := strings.ToLower(task.Name)
		if _, ok := wanted[key]; ok {
			wanted[key] = true
			selected = append(selected, task)
		}
	}

	var missing []string
	for name, found := range wanted {
		if !found {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, pingerr.Newf(pingerr.ErrConfiguration, "unknown task(s): %s", strings.Join(missing, ", "))
	}
	return selected, nil
}

func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, pingerr.Wrapf(pingerr.ErrConfiguration, err, "task file not found")
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, pingerr.Wrapf(pingerr.ErrConfiguration, err, "reading task directory")
		}
		for _, entry := range entries {
			if entry.IsDir() || !hasTaskExtension(entry.Name()) {
				continue
			}
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	return files, nil
}

func hasTaskExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// CanonicalizeVariables rewrites legacy variable names (${task.name}) to
// their canonical form (${dbping.task.name}) in every interpolated field of
// file. It returns the legacy names found, sorted.
func CanonicalizeVariables(file *File) []string {
	found := make(map[string]bool)
	rename := func(s *string) {
		for _, name := range interpolate.Names(*s) {
			if _, ok := execution.LegacyAliases[name]; ok {
				found[name] = true
			}
		}
		*s = interpolate.Rename(*s, execution.LegacyAliases)
	}
	renameVars := func(vars []ContextVar) {
		for i := range vars {
			rename(&vars[i].Value)
			if vars[i].Unset != nil {
				rename(vars[i].Unset)
			}
		}
	}
	var renameParams func(params []ParameterConfig)
	renameParams = func(params []ParameterConfig) {
		for i := range params {
			rename(&params[i].Value)
			rename(&params[i].File)
			renameParams(params[i].Columns)
		}
	}
	renameStatement := func(st *StatementConfig) {
		rename(&st.Label)
		rename(&st.SQL)
		renameVars(st.Context)
		renameParams(st.Parameters)
	}

	for t := range file.Tasks {
		task := &file.Tasks[t]
		rename(&task.LogFile)
		renameVars(task.Context)
		for _, cmd := range task.Commands {
			if cmd.Query != nil {
				renameStatement(cmd.Query)
			}
			if cmd.Script != nil {
				rename(&cmd.Script.Label)
				renameVars(cmd.Script.Context)
				for s := range cmd.Script.Statements {
					renameStatement(&cmd.Script.Statements[s])
				}
			}
		}
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyDefaults fills in unset values.
func ApplyDefaults(file *File) {
	for t := range file.Tasks {
		task := &file.Tasks[t]
		if task.Threads < 1 {
			task.Threads = 1
		}
		for i, cmd := range task.Commands {
			label := defaultLabel(i)
			if cmd.Query != nil {
				applyStatementDefaults(cmd.Query, label)
			}
			if cmd.Script != nil {
				if cmd.Script.Label == "" {
					cmd.Script.Label = label
				}
				for s := range cmd.Script.Statements {
					applyStatementDefaults(&cmd.Script.Statements[s], defaultLabel(s))
				}
			}
		}
	}
}

func applyStatementDefaults(st *StatementConfig, label string) {
	if st.Label == "" {
		st.Label = label
	}
	if st.Repeats < 1 {
		st.Repeats = 1
	}
}

// defaultLabel names the i-th command of its parent, counting from 1.
func defaultLabel(i int) string {
	return fmt.Sprintf("${%s}.%d", execution.KeyParentName, i+1)
}
