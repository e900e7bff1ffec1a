package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordLeftoverConcurrent exercises concurrent recording for race
// conditions.
func TestRecordLeftoverConcurrent(t *testing.T) {
	as := NewAccessStats(1 * time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				as.RecordLeftover("status", "EQ")
				as.RecordLeftover("color", "IN")
				as.RecordLeftover("created_at", "GT")
			}
		}()
	}

	wg.Wait()

	top := as.TopLeftoverAttributes(10)
	if len(top) != 3 {
		t.Errorf("expected 3 attributes, got %d", len(top))
	}

	expectedFreq := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expectedFreq {
			t.Errorf("expected frequency %d for %s, got %d", expectedFreq, stat.Attribute, stat.Frequency)
		}
	}
}

// TestTopLeftoverAttributesOrdering verifies frequency-descending order.
func TestTopLeftoverAttributesOrdering(t *testing.T) {
	as := NewAccessStats(1 * time.Hour)

	for i := 0; i < 10; i++ {
		as.RecordLeftover("status", "EQ")
	}
	for i := 0; i < 5; i++ {
		as.RecordLeftover("color", "IN")
	}
	for i := 0; i < 20; i++ {
		as.RecordLeftover("created_at", "GT")
	}

	top := as.TopLeftoverAttributes(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(top))
	}

	if top[0].Attribute != "created_at" || top[0].Frequency != 20 {
		t.Errorf("expected created_at with frequency 20, got %s with %d", top[0].Attribute, top[0].Frequency)
	}
	if top[1].Attribute != "status" || top[1].Frequency != 10 {
		t.Errorf("expected status with frequency 10, got %s with %d", top[1].Attribute, top[1].Frequency)
	}
	if top[2].Attribute != "color" || top[2].Frequency != 5 {
		t.Errorf("expected color with frequency 5, got %s with %d", top[2].Attribute, top[2].Frequency)
	}
}

// TestOperatorDistribution verifies per-operator counts.
func TestOperatorDistribution(t *testing.T) {
	as := NewAccessStats(1 * time.Hour)

	for i := 0; i < 5; i++ {
		as.RecordLeftover("status", "EQ")
	}
	for i := 0; i < 3; i++ {
		as.RecordLeftover("status", "IN")
	}

	top := as.TopLeftoverAttributes(1)
	if len(top) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(top))
	}

	stat := top[0]
	if stat.Frequency != 8 {
		t.Errorf("expected frequency 8, got %d", stat.Frequency)
	}
	if stat.Operators["EQ"] != 5 {
		t.Errorf("expected 5 EQ records, got %d", stat.Operators["EQ"])
	}
	if stat.Operators["IN"] != 3 {
		t.Errorf("expected 3 IN records, got %d", stat.Operators["IN"])
	}
}

// TestPruneRemovesStaleEntries verifies that Prune drops entries older
// than the window.
func TestPruneRemovesStaleEntries(t *testing.T) {
	window := 50 * time.Millisecond
	as := NewAccessStats(window)

	as.RecordLeftover("status", "EQ")
	if top := as.TopLeftoverAttributes(10); len(top) != 1 {
		t.Fatalf("expected 1 attribute before prune, got %d", len(top))
	}

	time.Sleep(window + 20*time.Millisecond)
	as.Prune()

	if top := as.TopLeftoverAttributes(10); len(top) != 0 {
		t.Errorf("expected 0 attributes after prune, got %d", len(top))
	}
}

// TestTopLeftoverAttributesEmpty verifies behavior with no data.
func TestTopLeftoverAttributesEmpty(t *testing.T) {
	as := NewAccessStats(1 * time.Hour)
	if top := as.TopLeftoverAttributes(10); len(top) != 0 {
		t.Errorf("expected 0 attributes, got %d", len(top))
	}
}

// TestPathCountsPerTable verifies per-table access path tallies.
func TestPathCountsPerTable(t *testing.T) {
	as := NewAccessStats(1 * time.Hour)

	as.RecordPath("orders", "QUERY")
	as.RecordPath("orders", "QUERY")
	as.RecordPath("orders", "SCAN")
	as.RecordPath("customers", "QUERY")

	counts := as.PathCounts("orders")
	if counts["QUERY"] != 2 || counts["SCAN"] != 1 {
		t.Errorf("orders counts = %v, want 2 QUERY and 1 SCAN", counts)
	}
	if counts := as.PathCounts("customers"); counts["QUERY"] != 1 || counts["SCAN"] != 0 {
		t.Errorf("customers counts = %v, want 1 QUERY", counts)
	}
	if counts := as.PathCounts("unknown"); len(counts) != 0 {
		t.Errorf("unknown table counts = %v, want empty", counts)
	}
}

// TestPathCountsSurvivePrune verifies Prune leaves path tallies alone.
func TestPathCountsSurvivePrune(t *testing.T) {
	as := NewAccessStats(50 * time.Millisecond)

	as.RecordPath("orders", "SCAN")
	as.RecordLeftover("status", "EQ")

	time.Sleep(70 * time.Millisecond)
	as.Prune()

	if top := as.TopLeftoverAttributes(10); len(top) != 0 {
		t.Errorf("expected leftover pruned, got %d entries", len(top))
	}
	if counts := as.PathCounts("orders"); counts["SCAN"] != 1 {
		t.Errorf("path counts = %v, want SCAN preserved", counts)
	}
}
