package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/dbping/internal/ping/engine"
	"github.com/wesleyorama2/dbping/internal/ping/output"
	"github.com/wesleyorama2/dbping/internal/ping/sink"
)

type runOptions struct {
	Files      []string
	Tasks      []string
	RunID      string
	JSONPath   string
	Quiet      bool
	Sequential bool
	NoColor    bool
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run tasks from task files",
		Long: `Run the tasks defined in one or more task files. Directories are scanned for
*.yaml, *.yml and *.json files.

  dbping run -f tasks/
  dbping run -f orders.yaml -t checkout -t browse
  dbping run -f tasks/ --metrics-addr :9090 --json result.json

Interrupting the run (Ctrl+C) lets every worker finish its current iteration
before the summary is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runOptions{}
			opts.Files, _ = cmd.Flags().GetStringSlice("file")
			opts.Tasks, _ = cmd.Flags().GetStringSlice("task")
			opts.RunID, _ = cmd.Flags().GetString("run-id")
			opts.JSONPath, _ = cmd.Flags().GetString("json")
			opts.Quiet, _ = cmd.Flags().GetBool("quiet")
			opts.Sequential, _ = cmd.Flags().GetBool("sequential")
			opts.NoColor, _ = cmd.Flags().GetBool("no-color")
			opts.Files = append(opts.Files, args...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, opts)
		},
	}

	cmd.Flags().StringSliceP("file", "f", nil, "Task file or directory (repeatable)")
	cmd.Flags().StringSliceP("task", "t", nil, "Run only the named tasks, case-insensitive (repeatable)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().String("run-id", "", "Run identifier written to task headers (default: random UUID)")
	cmd.Flags().String("json", "", "Write the run result as JSON to this file")
	cmd.Flags().BoolP("quiet", "q", false, "Print only the final status")
	cmd.Flags().Bool("sequential", false, "Run tasks one after another instead of concurrently")
	return cmd
}

func (a *app) run(ctx context.Context, opts runOptions) error {
	project, err := a.loadProject(opts.Files)
	if err != nil {
		return err
	}
	tasks, err := project.Select(opts.Tasks...)
	if err != nil {
		return err
	}

	registry := a.registry(project)
	defer func() {
		if err := registry.Close(); err != nil {
			a.logger.Warn("failed to close datasources", zap.Error(err))
		}
	}()

	var prom *sink.Prometheus
	if a.settings.Metrics.Addr != "" {
		prom = sink.NewPrometheus()
		shutdown, err := a.serveMetrics(prom, a.settings.Metrics.Addr, a.settings.Metrics.Path)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	eng, err := engine.NewEngine(tasks, registry, engine.Options{
		RunID:      runID,
		Sequential: opts.Sequential,
		Prometheus: prom,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Name)
	}
	console := output.NewConsole(output.ConsoleConfig{
		Writer:  a.stdout,
		Quiet:   opts.Quiet,
		NoColor: opts.NoColor,
	})
	console.PrintHeader(runID, names)

	result, runErr := eng.Run(ctx)
	if ctx.Err() != nil {
		a.logger.Warn("run interrupted", zap.Error(ctx.Err()))
	}
	if result == nil {
		return runErr
	}

	console.PrintSummary(result)
	if opts.JSONPath != "" {
		if err := writeJSONResult(result, opts.JSONPath); err != nil {
			a.logger.Error("failed to write JSON result", zap.String("path", opts.JSONPath), zap.Error(err))
			if runErr == nil {
				runErr = err
			}
		}
	}
	return runErr
}

// serveMetrics starts the Prometheus endpoint. The returned function stops it.
func (a *app) serveMetrics(prom *sink.Prometheus, addr, path string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, prom.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()), zap.String("path", path))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}, nil
}

// writeJSONResult saves the run result to path.
func writeJSONResult(result *engine.Result, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
