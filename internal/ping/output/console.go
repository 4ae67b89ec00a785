// Package output prints run summaries to the console.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/dbping/internal/ping/engine"
	"github.com/wesleyorama2/dbping/internal/ping/metrics"
)

const ruleWidth = 72

// Error rates above these are shown as warnings and failures.
const (
	warnErrorRate = 0.01
	failErrorRate = 0.05
)

// ColorScheme defines the colors used by the console.
type ColorScheme struct {
	Title   *color.Color
	Rule    *color.Color
	Heading *color.Color
	Value   *color.Color
	Latency *color.Color
	Success *color.Color
	Warn    *color.Color
	Error   *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:   color.New(color.Bold),
		Rule:    color.New(color.FgCyan),
		Heading: color.New(color.FgYellow, color.Bold),
		Value:   color.New(color.FgCyan),
		Latency: color.New(color.FgBlue),
		Success: color.New(color.FgGreen),
		Warn:    color.New(color.FgYellow),
		Error:   color.New(color.FgRed, color.Bold),
	}
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Rule, s.Heading, s.Value, s.Latency, s.Success, s.Warn, s.Error}
}

// Console prints run headers and summaries.
type Console struct {
	writer    io.Writer
	isTTY     bool
	useColors bool
	quiet     bool
	colors    *ColorScheme

	mu sync.Mutex
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	Quiet       bool
	ForceColors bool
	NoColor     bool
}

// NewConsole creates a console. Colors are used when the writer is a
// terminal that supports them, unless NoColor is set.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := isTerminal(config.Writer)
	useColors := !config.NoColor && (config.ForceColors || (isTTY && supportsColors()))

	colors := DefaultColorScheme()
	for _, c := range colors.all() {
		if useColors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return &Console{
		writer:    config.Writer,
		isTTY:     isTTY,
		useColors: useColors,
		quiet:     config.Quiet,
		colors:    colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader announces the tasks about to run.
func (c *Console) PrintHeader(runID string, tasks []string) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rule()
	c.writeln(c.colors.Title.Sprintf("dbping - Running %d task(s)", len(tasks)))
	c.rule()
	c.writeln(fmt.Sprintf("Run:    %s", c.colors.Value.Sprint(runID)))
	c.writeln(fmt.Sprintf("Tasks:  %s", strings.Join(tasks, ", ")))
	c.writeln("")
}

// PrintSummary prints the outcome of a run: one section per task with a
// row per label.
func (c *Console) PrintSummary(result *engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	executions, errors := totals(result.Stats)
	failed := result.Error != nil

	if c.quiet {
		switch {
		case failed:
			c.writeln(c.colors.Error.Sprint("FAILED"))
		case errors > 0:
			c.writeln(c.colors.Warn.Sprintf("COMPLETED (%d errors)", errors))
		default:
			c.writeln(c.colors.Success.Sprint("COMPLETED"))
		}
		return
	}

	status := c.colors.Success.Sprint("Completed ✓")
	if failed {
		status = c.colors.Error.Sprint("Failed ✗")
	}

	c.writeln("")
	c.rule()
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint("dbping"), status))
	c.rule()
	c.writeln("")
	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
	c.writeln(fmt.Sprintf("Executions:    %s", c.colors.Value.Sprint(formatNumber(executions))))
	c.writeln(fmt.Sprintf("Errors:        %s", c.errorColor(rate(errors, executions)).Sprint(formatNumber(errors))))
	c.writeln("")

	byTask := make(map[string][]metrics.LabelStats)
	for _, s := range result.Stats {
		byTask[s.Task] = append(byTask[s.Task], s)
	}

	for _, task := range result.Tasks {
		heading := fmt.Sprintf("%s @ %s (%d threads, %s iterations, %s)",
			task.Name, task.Datasource, task.Threads, formatNumber(task.Iterations), formatDuration(task.Duration))
		c.writeln(c.colors.Heading.Sprint(heading))
		if task.LogFile != "" {
			c.writeln(fmt.Sprintf("  log: %s", task.LogFile))
		}
		if task.Error != nil {
			c.writeln("  " + c.colors.Error.Sprint(task.Error.Error()))
		}

		stats := byTask[task.Name]
		if len(stats) == 0 {
			c.writeln("  no executions")
			c.writeln("")
			continue
		}
		c.printTable(stats)
		c.writeln("")
	}
}

var tableColumns = []string{"label", "execs", "errors", "rows", "min", "p50", "p95", "p99", "max"}

func (c *Console) printTable(stats []metrics.LabelStats) {
	rows := [][]string{tableColumns}
	for _, s := range stats {
		rows = append(rows, []string{
			s.Label,
			formatNumber(s.Executions),
			c.errorColor(s.ErrorRate()).Sprint(formatNumber(s.Errors)),
			formatNumber(s.Rows),
			c.colors.Latency.Sprint(formatDurationShort(s.Latency.Min)),
			c.colors.Latency.Sprint(formatDurationShort(s.Latency.P50)),
			c.colors.Latency.Sprint(formatDurationShort(s.Latency.P95)),
			c.colors.Latency.Sprint(formatDurationShort(s.Latency.P99)),
			c.colors.Latency.Sprint(formatDurationShort(s.Latency.Max)),
		})
	}

	widths := make([]int, len(tableColumns))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], visibleLen(cell))
		}
	}

	for r, row := range rows {
		var b strings.Builder
		b.WriteString("  ")
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			pad := strings.Repeat(" ", widths[i]-visibleLen(cell))
			if i == 0 {
				b.WriteString(cell + pad)
			} else {
				b.WriteString(pad + cell)
			}
		}
		line := strings.TrimRight(b.String(), " ")
		if r == 0 {
			line = c.colors.Title.Sprint(line)
		}
		c.writeln(line)
	}
}

func (c *Console) errorColor(errorRate float64) *color.Color {
	switch {
	case errorRate > failErrorRate:
		return c.colors.Error
	case errorRate > warnErrorRate:
		return c.colors.Warn
	default:
		return c.colors.Success
	}
}

func (c *Console) rule() {
	c.writeln(c.colors.Rule.Sprint(strings.Repeat("━", ruleWidth)))
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func totals(stats []metrics.LabelStats) (executions, errors int64) {
	for _, s := range stats {
		executions += s.Executions
		errors += s.Errors
	}
	return executions, errors
}

func rate(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return "0ms"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < 10*time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if n < 0 || len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

// visibleLen is the number of runes of s outside ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		if r == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		n++
	}
	return n
}
