package health

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minLatencyMicros = 1
	maxLatencyMicros = int64(10 * time.Minute / time.Microsecond)
	sigFigs          = 3
)

// Summary is a latency digest for one client.
type Summary struct {
	Requests int64   `json:"requests"`
	Errors   int64   `json:"errors"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
	MaxMs    float64 `json:"max_ms"`
}

type clientStats struct {
	hist     *hdrhistogram.Histogram
	requests int64
	errors   int64
}

// Stats tracks request counts and latency percentiles per client.
type Stats struct {
	mu      sync.Mutex
	clients map[string]*clientStats
}

// NewStats creates an empty tracker.
func NewStats() *Stats {
	return &Stats{clients: make(map[string]*clientStats)}
}

// Record adds one observation.
func (s *Stats) Record(client string, d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.clients[client]
	if !ok {
		cs = &clientStats{hist: hdrhistogram.New(minLatencyMicros, maxLatencyMicros, sigFigs)}
		s.clients[client] = cs
	}

	cs.requests++
	if failed {
		cs.errors++
	}

	us := d.Microseconds()
	if us < minLatencyMicros {
		us = minLatencyMicros
	}
	if us > maxLatencyMicros {
		us = maxLatencyMicros
	}
	// Values are clamped into range, so RecordValue cannot fail.
	_ = cs.hist.RecordValue(us)
}

// Snapshot returns the current digest of every client seen so far.
func (s *Stats) Snapshot() map[string]Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Summary, len(s.clients))
	for name, cs := range s.clients {
		out[name] = Summary{
			Requests: cs.requests,
			Errors:   cs.errors,
			P50Ms:    microsToMs(cs.hist.ValueAtQuantile(50)),
			P95Ms:    microsToMs(cs.hist.ValueAtQuantile(95)),
			P99Ms:    microsToMs(cs.hist.ValueAtQuantile(99)),
			MaxMs:    microsToMs(cs.hist.Max()),
		}
	}
	return out
}

func microsToMs(us int64) float64 {
	return float64(us) / 1000
}
