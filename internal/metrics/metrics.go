package metrics

import (
	"sync"
	"time"
)

// timer accumulates duration samples for one named operation
type timer struct {
	count   int64
	totalMs int64
	minMs   int64
	maxMs   int64
}

// errorRate tracks successes vs failures for one named operation
type errorRate struct {
	total  int64
	errors int64
}

// TimerSnapshot is the exported view of a timer
type TimerSnapshot struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// ErrorRateSnapshot is the exported view of an error rate
type ErrorRateSnapshot struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

// Metrics is the in-process metrics registry served on /metrics
type Metrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	timers     map[string]*timer
	errorRates map[string]*errorRate
	health     map[string]bool
	startTime  time.Time
}

// NewMetrics creates a new metrics registry
func NewMetrics() *Metrics {
	return &Metrics{
		counters:   make(map[string]int64),
		timers:     make(map[string]*timer),
		errorRates: make(map[string]*errorRate),
		health:     make(map[string]bool),
		startTime:  time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.mu.Lock()
	m.counters[name]++
	m.mu.Unlock()
}

// RecordStatusTransition counts an order status transition by target state
func (m *Metrics) RecordStatusTransition(to string) {
	m.IncrementCounter("order_status_" + to)
}

// RecordTimer records a duration sample for an operation
func (m *Metrics) RecordTimer(name string, d time.Duration) {
	ms := d.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[name]
	if !ok {
		t = &timer{minMs: ms, maxMs: ms}
		m.timers[name] = t
	}
	t.count++
	t.totalMs += ms
	if ms < t.minMs {
		t.minMs = ms
	}
	if ms > t.maxMs {
		t.maxMs = ms
	}
}

// RecordSuccess records a successful operation for error rate tracking
func (m *Metrics) RecordSuccess(name string) {
	m.record(name, false)
}

// RecordError records a failed operation for error rate tracking
func (m *Metrics) RecordError(name string) {
	m.record(name, true)
}

func (m *Metrics) record(name string, isError bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.errorRates[name]
	if !ok {
		r = &errorRate{}
		m.errorRates[name] = r
	}
	r.total++
	if isError {
		r.errors++
	}
}

// SetHealth sets the health status of a component
func (m *Metrics) SetHealth(component string, healthy bool) {
	m.mu.Lock()
	m.health[component] = healthy
	m.mu.Unlock()
}

// GetCounters returns all counters
func (m *Metrics) GetCounters() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		out[name] = v
	}
	return out
}

// GetTimers returns snapshots of all timers
func (m *Metrics) GetTimers() map[string]TimerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]TimerSnapshot, len(m.timers))
	for name, t := range m.timers {
		var avg float64
		if t.count > 0 {
			avg = float64(t.totalMs) / float64(t.count)
		}
		out[name] = TimerSnapshot{
			Count:         t.count,
			TotalTimeMs:   t.totalMs,
			AverageTimeMs: avg,
			MinTimeMs:     t.minMs,
			MaxTimeMs:     t.maxMs,
		}
	}
	return out
}

// GetErrorRates returns snapshots of all error rates
func (m *Metrics) GetErrorRates() map[string]ErrorRateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ErrorRateSnapshot, len(m.errorRates))
	for name, r := range m.errorRates {
		var rate float64
		if r.total > 0 {
			rate = float64(r.errors) / float64(r.total) * 100.0
		}
		out[name] = ErrorRateSnapshot{Total: r.total, Errors: r.errors, ErrorRate: rate}
	}
	return out
}

// GetHealthChecks returns the health status of all components
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]bool, len(m.health))
	for name, v := range m.health {
		out[name] = v
	}
	return out
}

// GetUptimeSeconds returns the service uptime in seconds
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// GetAllMetrics returns all metrics in a structured format
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": m.GetUptimeSeconds(),
		"counters":       m.GetCounters(),
		"timers":         m.GetTimers(),
		"error_rates":    m.GetErrorRates(),
		"health_checks":  m.GetHealthChecks(),
	}
}
