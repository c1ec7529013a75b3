package metrics

import (
	"slices"
	"sync"
	"time"
)

// DefaultWindowSize is the number of latency samples kept.
const DefaultWindowSize = 1000

// Stats is a snapshot of the latency window and counters.
type Stats struct {
	UptimeSeconds float64 `json:"uptime"`
	Requests      uint64  `json:"requests"`
	Errors        uint64  `json:"errors"`
	ErrorRate     float64 `json:"error_rate"`
	P50LatencyMs  float64 `json:"p50_latency"`
	P95LatencyMs  float64 `json:"p95_latency"`
	P99LatencyMs  float64 `json:"p99_latency"`
	ThroughputRPS float64 `json:"throughput_rps"`
}

// Engine keeps a bounded FIFO window of recent latencies plus cumulative
// request and error counters.
type Engine struct {
	mu       sync.Mutex
	window   []float64 // ring buffer
	next     int
	full     bool
	requests uint64
	errors   uint64
	start    time.Time
	now      func() time.Time
}

// NewEngine creates an Engine holding up to windowSize samples.
func NewEngine(windowSize int) *Engine {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Engine{
		window: make([]float64, 0, windowSize),
		start:  time.Now(),
		now:    time.Now,
	}
}

// WithClock overrides the time source and resets the start time.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.start = now()
	return e
}

// LogRequest records one request. The oldest sample is dropped once the window is full.
func (e *Engine) LogRequest(latencyMs float64, failed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.full {
		e.window = append(e.window, latencyMs)
		if len(e.window) == cap(e.window) {
			e.full = true
		}
	} else {
		e.window[e.next] = latencyMs
		e.next = (e.next + 1) % len(e.window)
	}

	e.requests++
	if failed {
		e.errors++
	}
}

// Stats returns percentiles over the current window and lifetime rates.
// Percentile p is sorted[floor(count·p)]; an empty window reports zeros.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	samples := slices.Clone(e.window)
	requests, errs := e.requests, e.errors
	uptime := e.now().Sub(e.start).Seconds()
	e.mu.Unlock()

	s := Stats{
		UptimeSeconds: uptime,
		Requests:      requests,
		Errors:        errs,
	}
	if requests > 0 {
		s.ErrorRate = float64(errs) / float64(requests)
	}
	if uptime > 0 {
		s.ThroughputRPS = float64(requests) / uptime
	}
	if len(samples) == 0 {
		return s
	}

	slices.Sort(samples)
	s.P50LatencyMs = percentile(samples, 0.50)
	s.P95LatencyMs = percentile(samples, 0.95)
	s.P99LatencyMs = percentile(samples, 0.99)
	return s
}

func percentile(sorted []float64, p float64) float64 {
	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}
