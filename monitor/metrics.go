package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/glimte/nativebridge/bridge"
)

const latencySamples = 100

// BridgeMetrics is an in-memory bridge.MetricsCollector
type BridgeMetrics struct {
	mu sync.RWMutex

	calls           map[string]int64
	outcomes        map[string]map[bridge.Outcome]int64
	latency         map[string]*TimeStats
	events          map[string]int64
	deliveries      map[string]int64
	handlerFailures map[string]int64
	dropped         map[string]int64
	pending         int64
	startedAt       time.Time
}

// TimeStats tracks call latency for one command
type TimeStats struct {
	Count   int64
	TotalMs int64
	MinMs   int64
	MaxMs   int64
	samples []int64
}

// NewBridgeMetrics creates an empty collector
func NewBridgeMetrics() *BridgeMetrics {
	m := &BridgeMetrics{}
	m.reset()
	return m
}

func (m *BridgeMetrics) reset() {
	m.calls = make(map[string]int64)
	m.outcomes = make(map[string]map[bridge.Outcome]int64)
	m.latency = make(map[string]*TimeStats)
	m.events = make(map[string]int64)
	m.deliveries = make(map[string]int64)
	m.handlerFailures = make(map[string]int64)
	m.dropped = make(map[string]int64)
	m.pending = 0
	m.startedAt = time.Now()
}

// RecordCall implements bridge.MetricsCollector
func (m *BridgeMetrics) RecordCall(command string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[command]++
	m.pending++
}

// RecordCompletion implements bridge.MetricsCollector
func (m *BridgeMetrics) RecordCompletion(command string, outcome bridge.Outcome, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.outcomes[command] == nil {
		m.outcomes[command] = make(map[bridge.Outcome]int64)
	}
	m.outcomes[command][outcome]++

	if m.pending > 0 {
		m.pending--
	}

	ms := duration.Milliseconds()
	stats, ok := m.latency[command]
	if !ok {
		stats = &TimeStats{MinMs: ms, MaxMs: ms, samples: make([]int64, 0, latencySamples)}
		m.latency[command] = stats
	}
	stats.Count++
	stats.TotalMs += ms
	if ms < stats.MinMs {
		stats.MinMs = ms
	}
	if ms > stats.MaxMs {
		stats.MaxMs = ms
	}
	if len(stats.samples) >= latencySamples {
		stats.samples = stats.samples[1:]
	}
	stats.samples = append(stats.samples, ms)
}

// RecordEvent implements bridge.MetricsCollector
func (m *BridgeMetrics) RecordEvent(event string, handlers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event]++
	m.deliveries[event] += int64(handlers)
}

// RecordHandlerFailure implements bridge.MetricsCollector
func (m *BridgeMetrics) RecordHandlerFailure(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlerFailures[event]++
}

// RecordDropped implements bridge.MetricsCollector
func (m *BridgeMetrics) RecordDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason]++
}

// Reset clears all collected metrics
func (m *BridgeMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// Summary returns a snapshot of all collected metrics
func (m *BridgeMetrics) Summary() MetricsSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := MetricsSummary{
		Commands:       make(map[string]CommandStats, len(m.calls)),
		Events:         make(map[string]EventStats, len(m.events)),
		Dropped:        copyCounts(m.dropped),
		Pending:        m.pending,
		CollectedSince: m.startedAt,
		OutcomeTotals:  make(map[bridge.Outcome]int64),
	}

	for command, calls := range m.calls {
		stats := CommandStats{
			Calls:    calls,
			Outcomes: make(map[bridge.Outcome]int64),
		}
		for outcome, n := range m.outcomes[command] {
			stats.Outcomes[outcome] = n
			summary.OutcomeTotals[outcome] += n
		}
		if ts, ok := m.latency[command]; ok {
			stats.Latency = ts.snapshot()
		}
		summary.Commands[command] = stats
		summary.TotalCalls += calls
	}

	for event, n := range m.events {
		summary.Events[event] = EventStats{
			Dispatched: n,
			Deliveries: m.deliveries[event],
			Failures:   m.handlerFailures[event],
		}
	}
	for _, n := range m.handlerFailures {
		summary.HandlerFailures += n
	}

	return summary
}

func (ts *TimeStats) snapshot() LatencyStats {
	stats := LatencyStats{
		Count: ts.Count,
		MinMs: ts.MinMs,
		MaxMs: ts.MaxMs,
	}
	if ts.Count > 0 {
		stats.AvgMs = ts.TotalMs / ts.Count
	}
	if len(ts.samples) > 0 {
		sorted := append([]int64(nil), ts.samples...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		stats.P50Ms = percentile(sorted, 0.50)
		stats.P95Ms = percentile(sorted, 0.95)
		stats.P99Ms = percentile(sorted, 0.99)
	}
	return stats
}

func percentile(sorted []int64, p float64) int64 {
	return sorted[int(float64(len(sorted)-1)*p)]
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MetricsSummary is a snapshot of bridge activity
type MetricsSummary struct {
	TotalCalls      int64                    `json:"total_calls"`
	Pending         int64                    `json:"pending"`
	OutcomeTotals   map[bridge.Outcome]int64 `json:"outcome_totals"`
	Commands        map[string]CommandStats  `json:"commands"`
	Events          map[string]EventStats    `json:"events"`
	HandlerFailures int64                    `json:"handler_failures"`
	Dropped         map[string]int64         `json:"dropped"`
	CollectedSince  time.Time                `json:"collected_since"`
}

// CommandStats summarises the calls made for one command
type CommandStats struct {
	Calls    int64                    `json:"calls"`
	Outcomes map[bridge.Outcome]int64 `json:"outcomes"`
	Latency  LatencyStats             `json:"latency"`
}

// EventStats summarises one event name
type EventStats struct {
	Dispatched int64 `json:"dispatched"`
	Deliveries int64 `json:"deliveries"`
	Failures   int64 `json:"failures"`
}

// LatencyStats represents call latency statistics
type LatencyStats struct {
	Count int64 `json:"count"`
	AvgMs int64 `json:"avg_ms"`
	MinMs int64 `json:"min_ms"`
	MaxMs int64 `json:"max_ms"`
	P50Ms int64 `json:"p50_ms"`
	P95Ms int64 `json:"p95_ms"`
	P99Ms int64 `json:"p99_ms"`
}

// ErrorRate is the share of completed calls that did not succeed
func (s MetricsSummary) ErrorRate() float64 {
	var total, failed int64
	for outcome, n := range s.OutcomeTotals {
		total += n
		if outcome != bridge.OutcomeSuccess {
			failed += n
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
