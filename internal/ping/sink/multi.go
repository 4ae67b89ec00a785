package sink

import (
	"github.com/wesleyorama2/dbping/internal/ping/metrics"
)

// Multi fans headers and records out to several sinks, in order.
type Multi []metrics.Sink

// NewMulti returns a sink writing to every non-nil sink of sinks.
func NewMulti(sinks ...metrics.Sink) Multi {
	m := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// WriteHeader implements metrics.Sink.
func (m Multi) WriteHeader(h metrics.Header) {
	for _, s := range m {
		s.WriteHeader(h)
	}
}

// Write implements metrics.Sink.
func (m Multi) Write(r metrics.Record) {
	for _, s := range m {
		s.Write(r)
	}
}
