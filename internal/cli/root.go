// Package cli implements the dbping command line.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	applog "github.com/wesleyorama2/dbping/internal/log"
	"github.com/wesleyorama2/dbping/internal/ping/config"
	"github.com/wesleyorama2/dbping/internal/ping/datasource"
	"github.com/wesleyorama2/dbping/internal/ping/engine"
)

var version = "0.1.0"

// app is the state shared by the commands of one invocation.
type app struct {
	settings *Settings
	logger   *zap.Logger
	closeLog func()

	// openDB opens datasource pools; tests replace it
	openDB datasource.OpenFunc
	stdout io.Writer
	stderr io.Writer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{openDB: sql.Open})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "dbping",
		Short:   "Run SQL workloads against databases and record their timings",
		Version: version,
		Long: `dbping runs tasks described in YAML or JSON files. Each task sends a mix of
SQL statements and scripts from concurrent workers to a datasource and logs the
timing of every execution.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("settings", "", "Settings file (yaml, json or toml)")
	flags.String("env-file", "", "Load environment variables from this file (default: ./.env when present)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-output", "", "Log output: stdout, stderr or file")
	flags.String("log-path", "", "Directory of the log file when --log-output=file")
	flags.String("log-format", "", "Log format: console or json")
	flags.Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newValidateCmd(a))
	return rootCmd
}

// Execute runs the command line with os.Args.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the command line with os.Args under ctx.
func ExecuteContext(ctx context.Context) error {
	a := &app{openDB: sql.Open}
	defer a.teardown()
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.stdout == nil {
		a.stdout = cmd.OutOrStdout()
	}
	if a.stderr == nil {
		a.stderr = cmd.ErrOrStderr()
	}

	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	settingsFile, _ := cmd.Flags().GetString("settings")
	settings, err := loadSettings(settingsFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.settings = settings

	if a.logger == nil {
		logger, closeLog, err := applog.NewLog(&settings.Log)
		if err != nil {
			return err
		}
		a.logger, a.closeLog = logger, closeLog
	}
	return nil
}

func (a *app) teardown() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}

// loadProject loads the task files and warns about legacy variable names.
func (a *app) loadProject(paths []string) (*config.Project, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one task file is required (--file)")
	}
	project, err := config.LoadPaths(paths...)
	if err != nil {
		return nil, err
	}
	for _, file := range project.Files {
		if len(file.Deprecations) > 0 {
			a.logger.Warn("task file uses deprecated variable names",
				zap.String("file", file.Path),
				zap.Strings("variables", file.Deprecations))
		}
	}
	return project, nil
}

func (a *app) registry(project *config.Project) *datasource.Registry {
	registry := datasource.NewRegistry(engine.DatasourceConfigs(project.Datasources))
	if a.openDB != nil {
		registry.WithOpen(a.openDB)
	}
	return registry
}
