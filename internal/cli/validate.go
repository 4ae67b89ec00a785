package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/dbping/internal/ping/config"
)

type validateOptions struct {
	Files   []string
	Ping    bool
	Timeout time.Duration
}

func newValidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check task files without running them",
		Long: `Validate task files against the task file schema and the structural rules,
and build every task. With --ping the datasources used by the tasks are also
contacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := validateOptions{}
			opts.Files, _ = cmd.Flags().GetStringSlice("file")
			opts.Ping, _ = cmd.Flags().GetBool("ping")
			opts.Timeout, _ = cmd.Flags().GetDuration("timeout")
			opts.Files = append(opts.Files, args...)
			return a.validate(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringSliceP("file", "f", nil, "Task file or directory (repeatable)")
	cmd.Flags().Bool("ping", false, "Also check that every datasource accepts connections")
	cmd.Flags().Duration("timeout", 5*time.Second, "Timeout of each datasource ping")
	return cmd
}

func (a *app) validate(ctx context.Context, opts validateOptions) error {
	project, err := a.loadProject(opts.Files)
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, file := range project.Files {
		for i := range file.Tasks {
			task, err := config.BuildTask(&file.Tasks[i])
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if len(task.Commands) == 0 {
				errs = multierror.Append(errs, fmt.Errorf("task %s in %s has no commands to run", task.Name, file.Path))
			}
		}
		fmt.Fprintf(a.stdout, "%s: %d task(s)\n", file.Path, len(file.Tasks))
	}

	if opts.Ping && errs.ErrorOrNil() == nil {
		registry := a.registry(project)
		defer registry.Close()
		for _, id := range registry.IDs() {
			pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
			err := registry.Ping(pingCtx, id)
			cancel()
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			fmt.Fprintf(a.stdout, "datasource %s: ok\n", id)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "valid")
	return nil
}
