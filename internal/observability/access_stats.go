package observability

import (
	"sort"
	"sync"
	"time"
)

// AccessStats tracks access patterns across requests: which access
// path kinds each table's reads take, and which attributes keep ending
// up as leftover predicates. A hot leftover attribute is the signal
// that the remote table deserves an index on it.
type AccessStats struct {
	mu       sync.RWMutex
	leftover map[string]*AttributeStats
	paths    map[string]map[string]int64
	window   time.Duration
}

// AttributeStats holds the access record of one attribute.
type AttributeStats struct {
	Attribute string
	Frequency int64
	LastSeen  time.Time
	Operators map[string]int
}

// NewAccessStats creates a tracker. window bounds how long an unused
// entry survives Prune.
func NewAccessStats(window time.Duration) *AccessStats {
	return &AccessStats{
		leftover: make(map[string]*AttributeStats),
		paths:    make(map[string]map[string]int64),
		window:   window,
	}
}

// RecordPath records that a read on table took the named access path
// kind.
func (a *AccessStats) RecordPath(table, kind string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	counts, exists := a.paths[table]
	if !exists {
		counts = make(map[string]int64)
		a.paths[table] = counts
	}
	counts[kind]++
}

// PathCounts returns how many reads on table took each access path
// kind. The returned map is a copy.
func (a *AccessStats) PathCounts(table string) map[string]int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	counts := make(map[string]int64, len(a.paths[table]))
	for kind, n := range a.paths[table] {
		counts[kind] = n
	}
	return counts
}

// RecordLeftover records that a predicate on attribute could not be
// pushed down. operator is the predicate's operator name.
// This method is O(1) and thread-safe.
func (a *AccessStats) RecordLeftover(attribute, operator string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats, exists := a.leftover[attribute]
	if !exists {
		stats = &AttributeStats{
			Attribute: attribute,
			Operators: make(map[string]int),
		}
		a.leftover[attribute] = stats
	}

	stats.Frequency++
	stats.LastSeen = time.Now()
	stats.Operators[operator]++
}

// TopLeftoverAttributes returns the n most frequent leftover
// attributes, most frequent first. The returned slice is a copy.
func (a *AccessStats) TopLeftoverAttributes(n int) []AttributeStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if n <= 0 || len(a.leftover) == 0 {
		return []AttributeStats{}
	}

	stats := make([]AttributeStats, 0, len(a.leftover))
	for _, s := range a.leftover {
		cp := AttributeStats{
			Attribute: s.Attribute,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Operators: make(map[string]int, len(s.Operators)),
		}
		for op, count := range s.Operators {
			cp.Operators[op] = count
		}
		stats = append(stats, cp)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Frequency > stats[j].Frequency
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes leftover entries not seen within the window. Path
// counts stay; they are bounded by the number of tables. Call it
// periodically from whatever owns the stats.
func (a *AccessStats) Prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	threshold := time.Now().Add(-a.window)
	for attr, stats := range a.leftover {
		if stats.LastSeen.Before(threshold) {
			delete(a.leftover, attr)
		}
	}
}
