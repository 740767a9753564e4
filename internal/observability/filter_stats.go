// Package observability provides timeline filter statistics used to surface
// which event types dominate a capture and how much noise the visibility
// filter suppresses.
package observability

import (
	"sort"
	"sync"
	"time"
)

// FilterStats tracks per-type frequencies observed while segmenting and
// serving timelines. UIs use the report to suggest additional types worth
// hiding and to show suppression ratios per capture.
type FilterStats struct {
	mu    sync.RWMutex
	types map[string]*TypeStats

	// Totals across all recorded events
	totalEvents     int64
	totalSuppressed int64
}

// TypeStats holds the observed statistics for one event type name.
type TypeStats struct {
	Name       string
	Frequency  int64
	Suppressed int64 // occurrences dropped by the visibility filter
	LastSeen   time.Time
}

// NewFilterStats creates an empty stats tracker.
func NewFilterStats() *FilterStats {
	return &FilterStats{
		types: make(map[string]*TypeStats),
	}
}

// Record notes one occurrence of a type name. suppressed marks whether the
// visibility filter dropped the event from the timeline view.
// This method is O(1) and thread-safe.
func (f *FilterStats) Record(name string, suppressed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats, ok := f.types[name]
	if !ok {
		stats = &TypeStats{Name: name}
		f.types[name] = stats
	}

	stats.Frequency++
	stats.LastSeen = time.Now()
	f.totalEvents++
	if suppressed {
		stats.Suppressed++
		f.totalSuppressed++
	}
}

// TopTypes returns the n most frequent types, sorted by frequency
// descending. The returned slice is a copy.
func (f *FilterStats) TopTypes(n int) []TypeStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n <= 0 || len(f.types) == 0 {
		return []TypeStats{}
	}

	stats := make([]TypeStats, 0, len(f.types))
	for _, s := range f.types {
		stats = append(stats, *s)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Name < stats[j].Name
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// SuppressionRatio returns the fraction of recorded events that the
// visibility filter dropped, in [0, 1].
func (f *FilterStats) SuppressionRatio() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.totalEvents == 0 {
		return 0
	}
	return float64(f.totalSuppressed) / float64(f.totalEvents)
}

// TotalEvents returns the number of events recorded so far.
func (f *FilterStats) TotalEvents() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.totalEvents
}

// Reset clears all recorded statistics.
func (f *FilterStats) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.types = make(map[string]*TypeStats)
	f.totalEvents = 0
	f.totalSuppressed = 0
}
