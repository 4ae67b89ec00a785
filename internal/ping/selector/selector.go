// Package selector chooses which command a job runs next.
package selector

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"github.com/wesleyorama2/dbping/internal/ping/command"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
)

// Strategy names a selection strategy.
type Strategy string

// Strategies.
const (
	// Auto picks WeightedRandom when any command declares a weight, RoundRobin otherwise
	Auto Strategy = ""
	// RoundRobinStrategy cycles the commands in declaration order
	RoundRobinStrategy Strategy = "round-robin"
	// WeightedRandomStrategy draws commands proportionally to their weight
	WeightedRandomStrategy Strategy = "weighted-random"
)

// ParseStrategy parses a strategy name case-insensitively; '_' may stand for '-'.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "", "auto":
		return Auto, nil
	case "round-robin":
		return RoundRobinStrategy, nil
	case "weighted-random", "weighted":
		return WeightedRandomStrategy, nil
	default:
		return Auto, fmt.Errorf("unknown selector %q (want round-robin or weighted-random)", s)
	}
}

// Selector returns the next command to run. Implementations are safe for
// concurrent use by all jobs of a task.
type Selector interface {
	Next() (command.Command, error)
	Len() int
}

// New builds the selector for strategy over commands.
func New(strategy Strategy, commands []command.Command) (Selector, error) {
	if len(commands) == 0 {
		return nil, pingerr.ErrNoCommands
	}
	switch strategy {
	case RoundRobinStrategy:
		return NewRoundRobin(commands)
	case WeightedRandomStrategy:
		return NewWeightedRandom(commands)
	default:
		for _, c := range commands {
			if c.Info().Weight > 0 {
				return NewWeightedRandom(commands)
			}
		}
		return NewRoundRobin(commands)
	}
}

// RoundRobin cycles the commands in declaration order.
type RoundRobin struct {
	commands []command.Command
	counter  atomic.Uint64
}

// NewRoundRobin creates a round-robin selector.
func NewRoundRobin(commands []command.Command) (*RoundRobin, error) {
	if len(commands) == 0 {
		return nil, pingerr.ErrNoCommands
	}
	return &RoundRobin{commands: commands}, nil
}

// Next implements Selector.
func (r *RoundRobin) Next() (command.Command, error) {
	if r == nil || len(r.commands) == 0 {
		return nil, pingerr.ErrNoCommands
	}
	n := r.counter.Add(1) - 1
	return r.commands[n%uint64(len(r.commands))], nil
}

// Len implements Selector.
func (r *RoundRobin) Len() int {
	return len(r.commands)
}

// WeightedRandom draws commands with probability proportional to their weight.
// Commands without a positive weight count as weight 1.
type WeightedRandom struct {
	commands   []command.Command
	cumulative []float64
	draw       func() float64
}

// NewWeightedRandom creates a weighted-random selector.
func NewWeightedRandom(commands []command.Command) (*WeightedRandom, error) {
	if len(commands) == 0 {
		return nil, pingerr.ErrNoCommands
	}

	weights := make([]float64, len(commands))
	var sum float64
	for i, c := range commands {
		w := c.Info().Weight
		if w <= 0 {
			w = 1
		}
		weights[i] = float64(w)
		sum += weights[i]
	}

	cumulative := make([]float64, len(commands))
	var acc float64
	for i, w := range weights {
		acc += w / sum
		cumulative[i] = acc
	}

	return &WeightedRandom{
		commands:   commands,
		cumulative: cumulative,
		draw:       rand.Float64,
	}, nil
}

// WithSource replaces the uniform [0,1) source. Used by tests.
func (w *WeightedRandom) WithSource(draw func() float64) *WeightedRandom {
	w.draw = draw
	return w
}

// Next implements Selector.
func (w *WeightedRandom) Next() (command.Command, error) {
	if w == nil || len(w.commands) == 0 {
		return nil, pingerr.ErrNoCommands
	}
	x := w.draw()
	for i, c := range w.cumulative {
		if c > x {
			return w.commands[i], nil
		}
	}
	return w.commands[len(w.commands)-1], nil
}

// Len implements Selector.
func (w *WeightedRandom) Len() int {
	return len(w.commands)
}

// Cumulative returns a copy of the cumulative distribution.
func (w *WeightedRandom) Cumulative() []float64 {
	return append([]float64(nil), w.cumulative...)
}
