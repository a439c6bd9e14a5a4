package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordAccessConcurrent tests concurrent RecordAccess calls for race conditions.
func TestRecordAccessConcurrent(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				qs.RecordAccess("users", PathPrimaryKeyGet)
				qs.RecordAccess("orders", PathFullScan)
				qs.RecordAccess("tags", PathIndexCursor)
			}
		}()
	}
	wg.Wait()

	top := qs.GetTopTables(10)
	if len(top) != 3 {
		t.Errorf("expected 3 tables, got %d", len(top))
	}
	expectedFreq := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expectedFreq {
			t.Errorf("expected frequency %d for %s, got %d", expectedFreq, stat.Name, stat.Frequency)
		}
	}
}

// TestGetTopTablesOrdering tests that GetTopTables returns results sorted by frequency.
func TestGetTopTablesOrdering(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)
	for i := 0; i < 10; i++ {
		qs.RecordAccess("users", PathIndexRequest)
	}
	for i := 0; i < 5; i++ {
		qs.RecordAccess("tags", PathFullScan)
	}
	for i := 0; i < 20; i++ {
		qs.RecordAccess("orders", PathNativeCount)
	}

	top := qs.GetTopTables(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 tables, got %d", len(top))
	}
	if top[0].Name != "orders" || top[0].Frequency != 20 {
		t.Errorf("expected orders with frequency 20, got %s with %d", top[0].Name, top[0].Frequency)
	}
	if top[1].Name != "users" || top[1].Frequency != 10 {
		t.Errorf("expected users with frequency 10, got %s with %d", top[1].Name, top[1].Frequency)
	}
	if top[2].Name != "tags" || top[2].Frequency != 5 {
		t.Errorf("expected tags with frequency 5, got %s with %d", top[2].Name, top[2].Frequency)
	}
}

// TestPruneRemovesOldEntries tests that Prune removes entries older than the window.
func TestPruneRemovesOldEntries(t *testing.T) {
	window := 100 * time.Millisecond
	qs := NewQueryStats(window)
	qs.RecordAccess("users", PathFullScan)
	qs.RecordKeyPath("users", "age", PathIndexCursor)

	if top := qs.GetTopTables(10); len(top) != 1 {
		t.Errorf("expected 1 table before prune, got %d", len(top))
	}

	time.Sleep(window + 50*time.Millisecond)
	qs.Prune()

	if top := qs.GetTopTables(10); len(top) != 0 {
		t.Errorf("expected 0 tables after prune, got %d", len(top))
	}
	if top := qs.GetTopKeyPaths(10); len(top) != 0 {
		t.Errorf("expected 0 key paths after prune, got %d", len(top))
	}
}

func TestPathDistributionAndFullScanRatio(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)
	for i := 0; i < 6; i++ {
		qs.RecordAccess("users", PathFullScan)
	}
	for i := 0; i < 2; i++ {
		qs.RecordAccess("users", PathIndexRequest)
	}

	top := qs.GetTopTables(1)
	if top[0].Paths[PathFullScan] != 6 || top[0].Paths[PathIndexRequest] != 2 {
		t.Errorf("unexpected path distribution: %v", top[0].Paths)
	}
	if got := qs.FullScanRatio("users"); got != 0.75 {
		t.Errorf("FullScanRatio = %v, want 0.75", got)
	}
	if got := qs.FullScanRatio("unknown"); got != 0 {
		t.Errorf("FullScanRatio of unknown table = %v, want 0", got)
	}
}

func TestGetTopTablesReturnsCopies(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)
	qs.RecordAccess("users", PathFullScan)
	top := qs.GetTopTables(1)
	top[0].Paths[PathFullScan] = 100

	if again := qs.GetTopTables(1); again[0].Paths[PathFullScan] != 1 {
		t.Error("caller mutation leaked into the tracker")
	}
}

func TestNilStatsRecordsNothing(t *testing.T) {
	var qs *QueryStats
	qs.RecordAccess("users", PathFullScan)
	qs.RecordKeyPath("users", "id", PathPrimaryKeyGet)
}

func TestGetTopTablesEmpty(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)
	if top := qs.GetTopTables(10); len(top) != 0 {
		t.Errorf("expected 0 tables, got %d", len(top))
	}
	if top := qs.GetTopKeyPaths(0); len(top) != 0 {
		t.Errorf("expected 0 key paths, got %d", len(top))
	}
}
