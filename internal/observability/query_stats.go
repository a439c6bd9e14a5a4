// Package observability tracks which access paths queries take per table,
// so full scans that an index could serve are easy to spot.
package observability

import (
	"sort"
	"sync"
	"time"
)

// Access paths recorded by the query layer.
const (
	PathPrimaryKeyGet = "pk_get"
	PathIndexRequest  = "index_request"
	PathIndexCursor   = "index_cursor"
	PathFullScan      = "full_scan"
	PathNativeCount   = "native_count"
)

// QueryStats tracks access path and key path frequency per table.
type QueryStats struct {
	mu       sync.RWMutex
	tables   map[string]*TableStats
	keyPaths map[string]*TableStats
	window   time.Duration
}

// TableStats holds statistics for a table or a table key path.
type TableStats struct {
	Name      string         `json:"name"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Paths     map[string]int `json:"paths"` // access path → count (e.g., "full_scan" → 5)
}

// NewQueryStats creates a new query statistics tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		tables:   make(map[string]*TableStats),
		keyPaths: make(map[string]*TableStats),
		window:   window,
	}
}

func record(m map[string]*TableStats, name, path string) {
	stats, exists := m[name]
	if !exists {
		stats = &TableStats{
			Name:  name,
			Paths: make(map[string]int),
		}
		m[name] = stats
	}
	stats.Frequency++
	stats.LastSeen = time.Now()
	stats.Paths[path]++
}

// RecordAccess records one terminal call on table through path.
// This method is O(1) and thread-safe. A nil receiver records nothing.
func (q *QueryStats) RecordAccess(table, path string) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	record(q.tables, table, path)
}

// RecordKeyPath records that a query filtered or sorted table on keyPath.
func (q *QueryStats) RecordKeyPath(table, keyPath, path string) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	record(q.keyPaths, table+"."+keyPath, path)
}

func topN(m map[string]*TableStats, n int) []TableStats {
	if n <= 0 || len(m) == 0 {
		return []TableStats{}
	}

	stats := make([]TableStats, 0, len(m))
	for _, s := range m {
		cp := TableStats{
			Name:      s.Name,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Paths:     make(map[string]int, len(s.Paths)),
		}
		for p, count := range s.Paths {
			cp.Paths[p] = count
		}
		stats = append(stats, cp)
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

// GetTopTables returns the top N tables by query frequency.
// Returns copies sorted by frequency (descending).
func (q *QueryStats) GetTopTables(n int) []TableStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return topN(q.tables, n)
}

// GetTopKeyPaths returns the top N "table.key" paths by frequency.
func (q *QueryStats) GetTopKeyPaths(n int) []TableStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return topN(q.keyPaths, n)
}

// FullScanRatio returns the share of table's queries that scanned the
// whole collection, or 0 when the table has no recorded queries.
func (q *QueryStats) FullScanRatio(table string) float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s, ok := q.tables[table]
	if !ok || s.Frequency == 0 {
		return 0
	}
	return float64(s.Paths[PathFullScan]) / float64(s.Frequency)
}

// Prune removes entries where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := time.Now().Add(-q.window)
	for name, stats := range q.tables {
		if stats.LastSeen.Before(threshold) {
			delete(q.tables, name)
		}
	}
	for name, stats := range q.keyPaths {
		if stats.LastSeen.Before(threshold) {
			delete(q.keyPaths, name)
		}
	}
}
