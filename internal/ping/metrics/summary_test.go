package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSummary_Counts(t *testing.T) {
	s := NewSummary()

	s.Write(Record{Task: "orders", Label: "q1", TotalTime: 10 * time.Millisecond, Rows: 3})
	s.Write(Record{Task: "orders", Label: "q1", TotalTime: 20 * time.Millisecond, Rows: 1, Batches: 2})
	s.Write(Record{Task: "orders", Label: "q1", TotalTime: 30 * time.Millisecond, Err: errors.New("x")})
	s.Write(Record{Task: "orders", Label: "q0", TotalTime: time.Millisecond})

	stats := s.Stats()
	if len(stats) != 2 {
		t.Fatalf("len(Stats()) = %d, want 2", len(stats))
	}
	if stats[0].Label != "q0" {
		t.Errorf("stats[0].Label = %q, want q0", stats[0].Label)
	}

	q1 := stats[1]
	if q1.Executions != 3 {
		t.Errorf("Executions = %d, want 3", q1.Executions)
	}
	if q1.Errors != 1 {
		t.Errorf("Errors = %d, want 1", q1.Errors)
	}
	if q1.Rows != 4 {
		t.Errorf("Rows = %d, want 4", q1.Rows)
	}
	if q1.Batches != 2 {
		t.Errorf("Batches = %d, want 2", q1.Batches)
	}
	if q1.Latency.Count != 3 {
		t.Errorf("Latency.Count = %d, want 3", q1.Latency.Count)
	}
	if rate := q1.ErrorRate(); rate < 0.33 || rate > 0.34 {
		t.Errorf("ErrorRate() = %v, want ~0.333", rate)
	}
}

func TestSummary_Percentiles(t *testing.T) {
	s := NewSummary()

	for i := 1; i <= 10; i++ {
		s.Write(Record{Task: "t", Label: "l", TotalTime: time.Duration(i*10) * time.Millisecond})
	}

	lat := s.Stats()[0].Latency

	// HDR histogram binning gives some tolerance.
	if lat.P50 < 40*time.Millisecond || lat.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms", lat.P50)
	}
	if lat.Min < 9*time.Millisecond || lat.Min > 11*time.Millisecond {
		t.Errorf("Min = %v, want ~10ms", lat.Min)
	}
	if lat.Max < 99*time.Millisecond || lat.Max > 101*time.Millisecond {
		t.Errorf("Max = %v, want ~100ms", lat.Max)
	}
}

func TestSummary_UnknownTotalIsClamped(t *testing.T) {
	s := NewSummary()

	s.Write(Record{Task: "t", Label: "l", TotalTime: Unknown})

	if got := s.Stats()[0].Latency.Count; got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestSummary_Concurrent(t *testing.T) {
	s := NewSummary()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Write(Record{Task: "t", Label: "l", TotalTime: time.Millisecond})
			}
		}()
	}
	wg.Wait()

	if got := s.Stats()[0].Executions; got != 4000 {
		t.Errorf("Executions = %d, want 4000", got)
	}

	s.Reset()
	if len(s.Stats()) != 0 {
		t.Error("Stats() should be empty after Reset()")
	}
}
