package metrics

import (
	"testing"
	"time"
)

func TestTrackerStats(t *testing.T) {
	tracker := NewTracker(0.01)

	operations := []string{"fetch.hit", "fetch.miss", "install.asset"}

	for _, op := range operations {
		tracker.Record(op, 1*time.Millisecond)
		tracker.Record(op, 5*time.Millisecond)
		tracker.Record(op, 10*time.Millisecond)
		tracker.Record(op, 50*time.Millisecond)
		tracker.Record(op, 100*time.Millisecond)
	}

	for _, op := range operations {
		stats, err := tracker.GetStats(op)
		if err != nil {
			t.Errorf("Failed to get stats for %s: %v", op, err)
			continue
		}

		if stats.Count != 5 {
			t.Errorf("Expected count 5 for %s, got %d", op, stats.Count)
		}
		if stats.Min < 0.9 || stats.Min > 1.1 {
			t.Errorf("Expected min ~1ms for %s, got %.2fms", op, stats.Min)
		}
		if stats.Max < 99 || stats.Max > 101 {
			t.Errorf("Expected max ~100ms for %s, got %.2fms", op, stats.Max)
		}
		if stats.P50 < 5 || stats.P50 > 15 {
			t.Errorf("Expected p50 ~10ms for %s, got %.2fms", op, stats.P50)
		}
		if stats.P50 > stats.P95 {
			t.Errorf("Expected p50 <= p95 for %s, got %.2fms > %.2fms", op, stats.P50, stats.P95)
		}
	}

	all := tracker.AllStats()
	if len(all) != len(operations) {
		t.Errorf("Expected %d operations in AllStats, got %d", len(operations), len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Operation > all[i].Operation {
			t.Errorf("AllStats not sorted: %q before %q", all[i-1].Operation, all[i].Operation)
		}
	}

	if _, err := tracker.GetStats("nonexistent"); err == nil {
		t.Error("Expected error for non-existent operation, got nil")
	}
}

func TestTrackerRecordFunc(t *testing.T) {
	tracker := NewTracker(0.01)

	err := tracker.RecordFunc("test_op", func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Errorf("RecordFunc returned error: %v", err)
	}

	stats, err := tracker.GetStats("test_op")
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Count != 1 {
		t.Errorf("Expected count 1, got %d", stats.Count)
	}
	if stats.Min < 9 {
		t.Errorf("Expected min >= 9ms, got %.2fms", stats.Min)
	}
}

func TestTrackerCounters(t *testing.T) {
	tracker := NewTracker(0.01)

	tracker.Add("hits", 1)
	tracker.Add("hits", 2)
	tracker.Add("misses", 1)

	if got := tracker.Counter("hits"); got != 3 {
		t.Errorf("Expected hits counter 3, got %d", got)
	}
	if got := tracker.Counter("unknown"); got != 0 {
		t.Errorf("Expected unknown counter 0, got %d", got)
	}

	snapshot := tracker.Counters()
	if len(snapshot) != 2 {
		t.Errorf("Expected 2 counters in snapshot, got %d", len(snapshot))
	}
	if snapshot["misses"] != 1 {
		t.Errorf("Expected misses counter 1, got %d", snapshot["misses"])
	}

	// snapshot is a copy
	snapshot["hits"] = 100
	if got := tracker.Counter("hits"); got != 3 {
		t.Errorf("Counter mutated through snapshot: %d", got)
	}
}

func TestStatsString(t *testing.T) {
	stats := Stats{
		Operation: "test_op",
		Count:     100,
		Min:       1.5,
		P50:       10.2,
		P90:       50.7,
		P95:       75.3,
		P99:       99.1,
		Max:       120.5,
	}

	str := stats.String()
	expected := "  test_op (n=100): min=1.50ms p50=10.20ms p90=50.70ms p95=75.30ms p99=99.10ms max=120.50ms"
	if str != expected {
		t.Errorf("Expected:\n%s\nGot:\n%s", expected, str)
	}

	emptyStats := Stats{Operation: "empty_op"}
	if got := emptyStats.String(); got != "  empty_op: no data" {
		t.Errorf("Expected no-data line, got %q", got)
	}
}

func BenchmarkTrackerRecord(b *testing.B) {
	tracker := NewTracker(0.01)
	duration := 10 * time.Millisecond

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tracker.Record("bench_op", duration)
	}
}
