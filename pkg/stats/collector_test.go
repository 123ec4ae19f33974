package stats

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_TrackOperation(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpPut)
	collector.TrackOperation(OpPut)
	collector.TrackOperation(OpGet)

	stats := collector.GetStats()

	if stats["put_ops"].(uint64) != 2 {
		t.Errorf("Expected 2 put operations, got %v", stats["put_ops"])
	}
	if stats["get_ops"].(uint64) != 1 {
		t.Errorf("Expected 1 get operation, got %v", stats["get_ops"])
	}
	if _, exists := stats["last_put_time"]; !exists {
		t.Errorf("Expected last_put_time to exist in stats")
	}
}

func TestCollector_TrackOperationWithLatency(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperationWithLatency(OpGet, 100*time.Nanosecond)
	collector.TrackOperationWithLatency(OpGet, 200*time.Nanosecond)
	collector.TrackOperationWithLatency(OpGet, 300*time.Nanosecond)

	stats := collector.GetStats()

	latencyStats, ok := stats["get_latency"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected get_latency to be a map, got %T", stats["get_latency"])
	}
	if count := latencyStats["count"].(uint64); count != 3 {
		t.Errorf("Expected 3 latency records, got %v", count)
	}
	if avg := latencyStats["avg_ns"].(uint64); avg != 200 {
		t.Errorf("Expected average latency of 200ns, got %v", avg)
	}
	if min := latencyStats["min_ns"].(uint64); min != 100 {
		t.Errorf("Expected min latency of 100ns, got %v", min)
	}
	if max := latencyStats["max_ns"].(uint64); max != 300 {
		t.Errorf("Expected max latency of 300ns, got %v", max)
	}
	if stats["get_ops"].(uint64) != 3 {
		t.Errorf("Expected latency tracking to count operations, got %v", stats["get_ops"])
	}
}

func TestCollector_FlushAndCompaction(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackFlush(10)
	collector.TrackFlush(5)
	collector.TrackCompaction(3, 12)
	collector.TrackMemTableSize(2048)
	collector.TrackBytes(true, 100)
	collector.TrackBytes(false, 40)

	stats := collector.GetStats()

	expected := map[string]uint64{
		"flush_count":             2,
		"flushed_entries":         15,
		"compaction_count":        1,
		"tables_compacted":        3,
		"last_compaction_entries": 12,
		"memtable_size":           2048,
		"total_bytes_written":     100,
		"total_bytes_read":        40,
	}
	for key, want := range expected {
		if got := stats[key].(uint64); got != want {
			t.Errorf("%s: expected %d, got %d", key, want, got)
		}
	}
}

func TestCollector_TrackError(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackError("flush_error")
	collector.TrackError("flush_error")
	collector.TrackError("corruption")

	errors := collector.GetStats()["errors"].(map[string]uint64)
	if errors["flush_error"] != 2 || errors["corruption"] != 1 {
		t.Errorf("Unexpected error counts: %v", errors)
	}
}

func TestCollector_OpenStats(t *testing.T) {
	collector := NewAtomicCollector()

	start := collector.StartOpen()
	time.Sleep(2 * time.Millisecond)
	collector.FinishOpen(start, 4, 1, 99)

	open := collector.GetStats()["open"].(map[string]interface{})
	if open["tables_opened"].(uint64) != 4 {
		t.Errorf("Expected 4 tables opened, got %v", open["tables_opened"])
	}
	if open["temp_files_removed"].(uint64) != 1 {
		t.Errorf("Expected 1 temp file removed, got %v", open["temp_files_removed"])
	}
	if open["max_version"].(uint64) != 99 {
		t.Errorf("Expected max version 99, got %v", open["max_version"])
	}
	if _, ok := open["open_duration_ms"]; !ok {
		t.Errorf("Expected open duration to be recorded")
	}
}

func TestCollector_GetStatsFiltered(t *testing.T) {
	collector := NewAtomicCollector()
	collector.TrackOperation(OpPut)
	collector.TrackOperation(OpGet)
	collector.TrackFlush(1)

	filtered := collector.GetStatsFiltered("put")
	if len(filtered) != 1 {
		t.Errorf("Expected only put_ops, got %v", filtered)
	}
	if _, ok := filtered["put_ops"]; !ok {
		t.Errorf("Expected put_ops in filtered stats")
	}
}

func TestCollector_Concurrency(t *testing.T) {
	collector := NewAtomicCollector()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				collector.TrackOperationWithLatency(OpPut, time.Microsecond)
				collector.TrackError("io")
			}
		}()
	}
	wg.Wait()

	stats := collector.GetStats()
	if stats["put_ops"].(uint64) != 8000 {
		t.Errorf("Expected 8000 put operations, got %v", stats["put_ops"])
	}
	if stats["errors"].(map[string]uint64)["io"] != 8000 {
		t.Errorf("Expected 8000 io errors, got %v", stats["errors"])
	}
}
