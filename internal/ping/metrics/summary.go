package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// SummaryConfig contains the histogram bounds of a Summary.
type SummaryConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultSummaryConfig returns the default configuration.
func DefaultSummaryConfig() SummaryConfig {
	return SummaryConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

// Summary aggregates records per task and label using HDR histograms of
// the total execution time.
//
// Summary implements Sink and is safe for concurrent use.
type Summary struct {
	config SummaryConfig

	mu     sync.Mutex
	labels map[labelKey]*labelAgg
}

type labelKey struct {
	task  string
	label string
}

type labelAgg struct {
	hist       *hdrhistogram.Histogram
	executions int64
	errors     int64
	rows       int64
	batches    int64
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// LabelStats contains the aggregate of one label of one task.
type LabelStats struct {
	Task       string       `json:"task"`
	Label      string       `json:"label"`
	Executions int64        `json:"executions"`
	Errors     int64        `json:"errors"`
	Rows       int64        `json:"rows"`
	Batches    int64        `json:"batches"`
	Latency    LatencyStats `json:"latency"`
}

// ErrorRate returns the share of failed executions.
func (s LabelStats) ErrorRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Executions)
}

// NewSummary creates a summary with default configuration.
func NewSummary() *Summary {
	return NewSummaryWithConfig(DefaultSummaryConfig())
}

// NewSummaryWithConfig creates a summary with custom histogram bounds.
func NewSummaryWithConfig(config SummaryConfig) *Summary {
	return &Summary{
		config: config,
		labels: make(map[labelKey]*labelAgg),
	}
}

// WriteHeader implements Sink.
func (s *Summary) WriteHeader(Header) {}

// Write implements Sink.
func (s *Summary) Write(r Record) {
	micros := r.TotalTime.Microseconds()
	if micros < s.config.HistogramMin {
		micros = s.config.HistogramMin
	}
	if micros > s.config.HistogramMax {
		micros = s.config.HistogramMax
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := labelKey{task: r.Task, label: r.Label}
	agg, ok := s.labels[key]
	if !ok {
		agg = &labelAgg{
			hist: hdrhistogram.New(s.config.HistogramMin, s.config.HistogramMax, s.config.HistogramSigFigs),
		}
		s.labels[key] = agg
	}

	// HDR histogram RecordValue is not thread-safe; the summary lock covers it.
	_ = agg.hist.RecordValue(micros)
	agg.executions++
	agg.rows += r.Rows
	agg.batches += int64(r.Batches)
	if r.Failed() {
		agg.errors++
	}
}

// Stats returns the aggregates sorted by task then label.
func (s *Summary) Stats() []LabelStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]LabelStats, 0, len(s.labels))
	for key, agg := range s.labels {
		result = append(result, LabelStats{
			Task:       key.task,
			Label:      key.label,
			Executions: agg.executions,
			Errors:     agg.errors,
			Rows:       agg.rows,
			Batches:    agg.batches,
			Latency:    latencyStats(agg.hist),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Task != result[j].Task {
			return result[i].Task < result[j].Task
		}
		return result[i].Label < result[j].Label
	})
	return result
}

// Reset drops every aggregate.
func (s *Summary) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = make(map[labelKey]*labelAgg)
}

func latencyStats(hist *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}
