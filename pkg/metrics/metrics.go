package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Tracker records operation latencies as DDSketch quantile sketches and
// keeps a set of named counters alongside them.
type Tracker struct {
	mu               sync.Mutex
	sketches         map[string]*ddsketch.DDSketch
	counters         map[string]int64
	relativeAccuracy float64
}

// NewTracker creates a tracker. relativeAccuracy determines the accuracy
// of quantile estimates (e.g. 0.01 = 1% accuracy).
func NewTracker(relativeAccuracy float64) *Tracker {
	return &Tracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		counters:         make(map[string]int64),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record records a duration for the given operation.
func (t *Tracker) Record(operation string, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sketch, exists := t.sketches[operation]
	if !exists {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(t.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(t.relativeAccuracy)
		}
		t.sketches[operation] = sketch
	}

	// durations are kept in milliseconds
	sketch.Add(float64(duration.Microseconds()) / 1000.0)
}

// RecordFunc wraps a function and records its execution time.
func (t *Tracker) RecordFunc(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	t.Record(operation, time.Since(start))
	return err
}

// Add increments the named counter by delta.
func (t *Tracker) Add(counter string, delta int64) {
	t.mu.Lock()
	t.counters[counter] += delta
	t.mu.Unlock()
}

// Counter returns the current value of the named counter.
func (t *Tracker) Counter(counter string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters[counter]
}

// Counters returns a snapshot of all counters.
func (t *Tracker) Counters() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make(map[string]int64, len(t.counters))
	for name, v := range t.counters {
		snapshot[name] = v
	}
	return snapshot
}

// Stats holds common latency statistics for one operation, in milliseconds.
type Stats struct {
	Operation string  `json:"operation"`
	Count     int64   `json:"count"`
	Min       float64 `json:"min"`
	P50       float64 `json:"p50"`
	P90       float64 `json:"p90"`
	P95       float64 `json:"p95"`
	P99       float64 `json:"p99"`
	Max       float64 `json:"max"`
}

// GetStats returns statistics for the given operation.
func (t *Tracker) GetStats(operation string) (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statsLocked(operation)
}

func (t *Tracker) statsLocked(operation string) (Stats, error) {
	sketch, exists := t.sketches[operation]
	if !exists {
		return Stats{}, fmt.Errorf("no data for operation: %s", operation)
	}

	count := sketch.GetCount()
	if count == 0 {
		return Stats{Operation: operation}, nil
	}

	min, _ := sketch.GetMinValue()
	p50, _ := sketch.GetValueAtQuantile(0.50)
	p90, _ := sketch.GetValueAtQuantile(0.90)
	p95, _ := sketch.GetValueAtQuantile(0.95)
	p99, _ := sketch.GetValueAtQuantile(0.99)
	max, _ := sketch.GetMaxValue()

	return Stats{
		Operation: operation,
		Count:     int64(count),
		Min:       min,
		P50:       p50,
		P90:       p90,
		P95:       p95,
		P99:       p99,
		Max:       max,
	}, nil
}

// AllStats returns statistics for every tracked operation, sorted by
// operation name.
func (t *Tracker) AllStats() []Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.sketches))
	for operation := range t.sketches {
		names = append(names, operation)
	}
	sort.Strings(names)

	stats := make([]Stats, 0, len(names))
	for _, operation := range names {
		if s, err := t.statsLocked(operation); err == nil {
			stats = append(stats, s)
		}
	}
	return stats
}

// String returns a human-readable line of the statistics.
func (s Stats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("  %s: no data", s.Operation)
	}
	return fmt.Sprintf("  %s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p95=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Min, s.P50, s.P90, s.P95, s.P99, s.Max)
}
