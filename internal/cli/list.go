package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/dbping/internal/ping/config"
)

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tasks of task files",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, _ := cmd.Flags().GetStringSlice("file")
			return a.list(append(files, args...))
		},
	}
	cmd.Flags().StringSliceP("file", "f", nil, "Task file or directory (repeatable)")
	return cmd
}

// list prints the tasks grouped by file, both sorted by name.
func (a *app) list(paths []string) error {
	project, err := a.loadProject(paths)
	if err != nil {
		return err
	}

	files := append([]*config.File(nil), project.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	for _, file := range files {
		fmt.Fprintln(a.stdout, file.Path)

		tasks := make([]*config.TaskConfig, 0, len(file.Tasks))
		for i := range file.Tasks {
			tasks = append(tasks, &file.Tasks[i])
		}
		sort.Slice(tasks, func(i, j int) bool {
			return strings.ToLower(tasks[i].Name) < strings.ToLower(tasks[j].Name)
		})
		for _, t := range tasks {
			fmt.Fprintf(a.stdout, "  %s (datasource: %s, threads: %d, executions: %s, commands: %d)\n",
				t.Name, t.Datasource, max(t.Threads, 1), executions(t.Executions), len(t.Commands))
		}
	}
	return nil
}

func executions(n int64) string {
	if n <= 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d", n)
}
