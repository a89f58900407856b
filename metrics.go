package fhirschema

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Query operation names.
const (
	OpResourceDefinition = "get_resource_definition"
	OpBackboneElement    = "get_backbone_element"
	OpSearchElements     = "search_fhir_elements"
	OpListResources      = "list_resources"
)

// Metrics tracks query and reload metrics using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	// Query counts
	queriesTotal  atomic.Uint64
	queriesFailed atomic.Uint64

	// Timing (stored as nanoseconds)
	queryTimeTotal atomic.Uint64
	queryTimeMin   atomic.Uint64
	queryTimeMax   atomic.Uint64

	// Reloads
	reloadsTotal  atomic.Uint64
	reloadsFailed atomic.Uint64
	lastLoadNs    atomic.Uint64

	// Per-operation metrics
	operations sync.Map // map[string]*opMetrics
}

// opMetrics tracks metrics for a single query operation.
type opMetrics struct {
	invocations atomic.Uint64
	failures    atomic.Uint64
	totalTime   atomic.Uint64 // nanoseconds
	results     atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// Initialize min to max uint64 so first value becomes the minimum
	m.queryTimeMin.Store(^uint64(0))
	return m
}

// --- Recording Methods ---

// RecordQuery records a completed query of the named operation.
func (m *Metrics) RecordQuery(op string, duration time.Duration, results int, err error) {
	m.queriesTotal.Add(1)
	if err != nil {
		m.queriesFailed.Add(1)
	}

	ns := uint64(duration.Nanoseconds()) //nolint:gosec // Safe: nanoseconds are always positive for valid durations
	m.queryTimeTotal.Add(ns)

	// Update min (CAS loop)
	for {
		old := m.queryTimeMin.Load()
		if ns >= old {
			break
		}
		if m.queryTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}

	// Update max (CAS loop)
	for {
		old := m.queryTimeMax.Load()
		if ns <= old {
			break
		}
		if m.queryTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}

	om := m.getOrCreateOpMetrics(op)
	om.invocations.Add(1)
	om.totalTime.Add(ns)
	if err != nil {
		om.failures.Add(1)
	}
	if results > 0 {
		om.results.Add(uint64(results)) //nolint:gosec // Safe: results is positive
	}
}

// RecordLoad records a bundle load (initial or reload).
func (m *Metrics) RecordLoad(duration time.Duration, err error) {
	m.reloadsTotal.Add(1)
	if err != nil {
		m.reloadsFailed.Add(1)
		return
	}
	m.lastLoadNs.Store(uint64(duration.Nanoseconds())) //nolint:gosec // Safe: nanoseconds are always positive
}

func (m *Metrics) getOrCreateOpMetrics(name string) *opMetrics {
	if v, ok := m.operations.Load(name); ok {
		return v.(*opMetrics)
	}
	om := &opMetrics{}
	actual, _ := m.operations.LoadOrStore(name, om)
	return actual.(*opMetrics)
}

// --- Query Methods ---

// QueriesTotal returns the total number of queries answered.
func (m *Metrics) QueriesTotal() uint64 {
	return m.queriesTotal.Load()
}

// QueriesFailed returns the number of queries that returned an error.
func (m *Metrics) QueriesFailed() uint64 {
	return m.queriesFailed.Load()
}

// AverageQueryTime returns the average query duration.
func (m *Metrics) AverageQueryTime() time.Duration {
	total := m.queriesTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.queryTimeTotal.Load() / total) //nolint:gosec // Safe: nanoseconds within int64 range
}

// MinQueryTime returns the minimum query duration.
func (m *Metrics) MinQueryTime() time.Duration {
	minVal := m.queryTimeMin.Load()
	if minVal == ^uint64(0) {
		return 0
	}
	return time.Duration(minVal) //nolint:gosec // Safe: nanoseconds within int64 range
}

// MaxQueryTime returns the maximum query duration.
func (m *Metrics) MaxQueryTime() time.Duration {
	return time.Duration(m.queryTimeMax.Load()) //nolint:gosec // Safe: nanoseconds within int64 range
}

// LoadsTotal returns the number of loads attempted.
func (m *Metrics) LoadsTotal() uint64 {
	return m.reloadsTotal.Load()
}

// LoadsFailed returns the number of loads that failed.
func (m *Metrics) LoadsFailed() uint64 {
	return m.reloadsFailed.Load()
}

// LastLoadTime returns the duration of the last successful load.
func (m *Metrics) LastLoadTime() time.Duration {
	return time.Duration(m.lastLoadNs.Load()) //nolint:gosec // Safe: nanoseconds within int64 range
}

// OperationStats holds statistics for one query operation.
type OperationStats struct {
	Name        string        `json:"name"`
	Invocations uint64        `json:"invocations"`
	Failures    uint64        `json:"failures"`
	TotalTime   time.Duration `json:"total_time_ns"`
	AvgTime     time.Duration `json:"avg_time_ns"`
	Results     uint64        `json:"results"`
}

// OperationStats returns statistics for a specific operation.
func (m *Metrics) OperationStats(op string) (OperationStats, bool) {
	v, ok := m.operations.Load(op)
	if !ok {
		return OperationStats{Name: op}, false
	}
	return v.(*opMetrics).stats(op), true
}

func (om *opMetrics) stats(name string) OperationStats {
	invocations := om.invocations.Load()
	totalTime := om.totalTime.Load()

	var avgTime time.Duration
	if invocations > 0 {
		avgTime = time.Duration(totalTime / invocations) //nolint:gosec // Safe: nanoseconds within int64 range
	}

	return OperationStats{
		Name:        name,
		Invocations: invocations,
		Failures:    om.failures.Load(),
		TotalTime:   time.Duration(totalTime), //nolint:gosec // Safe: nanoseconds within int64 range
		AvgTime:     avgTime,
		Results:     om.results.Load(),
	}
}

// AllOperationStats returns statistics for all operations, sorted by name.
func (m *Metrics) AllOperationStats() []OperationStats {
	var stats []OperationStats
	m.operations.Range(func(key, value any) bool {
		stats = append(stats, value.(*opMetrics).stats(key.(string)))
		return true
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// --- Export Methods ---

// MetricsSnapshot represents a point-in-time snapshot of all metrics.
type MetricsSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	QueriesTotal  uint64 `json:"queries_total"`
	QueriesFailed uint64 `json:"queries_failed"`

	// Timing metrics (in nanoseconds for precision)
	AvgQueryTimeNs uint64 `json:"avg_query_time_ns"`
	MinQueryTimeNs uint64 `json:"min_query_time_ns"`
	MaxQueryTimeNs uint64 `json:"max_query_time_ns"`

	LoadsTotal     uint64 `json:"loads_total"`
	LoadsFailed    uint64 `json:"loads_failed"`
	LastLoadTimeNs uint64 `json:"last_load_time_ns"`

	Operations []OperationStats `json:"operations,omitempty"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	total := m.queriesTotal.Load()

	var avgTime uint64
	if total > 0 {
		avgTime = m.queryTimeTotal.Load() / total
	}

	minTime := m.queryTimeMin.Load()
	if minTime == ^uint64(0) {
		minTime = 0
	}

	return MetricsSnapshot{
		Timestamp:      time.Now(),
		QueriesTotal:   total,
		QueriesFailed:  m.queriesFailed.Load(),
		AvgQueryTimeNs: avgTime,
		MinQueryTimeNs: minTime,
		MaxQueryTimeNs: m.queryTimeMax.Load(),
		LoadsTotal:     m.reloadsTotal.Load(),
		LoadsFailed:    m.reloadsFailed.Load(),
		LastLoadTimeNs: m.lastLoadNs.Load(),
		Operations:     m.AllOperationStats(),
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.queriesTotal.Store(0)
	m.queriesFailed.Store(0)
	m.queryTimeTotal.Store(0)
	m.queryTimeMin.Store(^uint64(0))
	m.queryTimeMax.Store(0)
	m.reloadsTotal.Store(0)
	m.reloadsFailed.Store(0)
	m.lastLoadNs.Store(0)

	m.operations.Range(func(key, _ any) bool {
		m.operations.Delete(key)
		return true
	})
}
