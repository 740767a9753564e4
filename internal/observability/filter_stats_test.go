package observability

import (
	"sync"
	"testing"
)

// TestRecordConcurrent exercises concurrent Record calls for race conditions.
func TestRecordConcurrent(t *testing.T) {
	fs := NewFilterStats()
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				fs.Record("draw-arrays", false)
				fs.Record("bind-buffer", true)
				fs.Record("clear", false)
			}
		}()
	}

	wg.Wait()

	top := fs.TopTypes(10)
	if len(top) != 3 {
		t.Fatalf("expected 3 types, got %d", len(top))
	}

	expectedFreq := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expectedFreq {
			t.Errorf("expected frequency %d for %s, got %d", expectedFreq, stat.Name, stat.Frequency)
		}
	}
}

func TestTopTypesOrdering(t *testing.T) {
	fs := NewFilterStats()

	for i := 0; i < 5; i++ {
		fs.Record("bind-buffer", true)
	}
	for i := 0; i < 3; i++ {
		fs.Record("draw-arrays", false)
	}
	fs.Record("clear", false)

	top := fs.TopTypes(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 types, got %d", len(top))
	}
	if top[0].Name != "bind-buffer" || top[0].Frequency != 5 {
		t.Errorf("expected bind-buffer x5 first, got %s x%d", top[0].Name, top[0].Frequency)
	}
	if top[1].Name != "draw-arrays" || top[1].Frequency != 3 {
		t.Errorf("expected draw-arrays x3 second, got %s x%d", top[1].Name, top[1].Frequency)
	}
	if top[0].Suppressed != 5 {
		t.Errorf("expected 5 suppressed bind-buffer events, got %d", top[0].Suppressed)
	}
}

func TestSuppressionRatio(t *testing.T) {
	fs := NewFilterStats()

	if got := fs.SuppressionRatio(); got != 0 {
		t.Errorf("expected 0 ratio for empty stats, got %f", got)
	}

	fs.Record("draw-arrays", false)
	fs.Record("bind-buffer", true)
	fs.Record("bind-buffer", true)
	fs.Record("clear", false)

	if got := fs.SuppressionRatio(); got != 0.5 {
		t.Errorf("expected ratio 0.5, got %f", got)
	}
	if got := fs.TotalEvents(); got != 4 {
		t.Errorf("expected 4 total events, got %d", got)
	}
}

func TestReset(t *testing.T) {
	fs := NewFilterStats()
	fs.Record("draw-arrays", true)
	fs.Reset()

	if got := fs.TotalEvents(); got != 0 {
		t.Errorf("expected 0 events after reset, got %d", got)
	}
	if top := fs.TopTypes(10); len(top) != 0 {
		t.Errorf("expected no types after reset, got %d", len(top))
	}
}
