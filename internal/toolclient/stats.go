package toolclient

import (
	"math"
	"sync"
)

// Stats is the exported aggregate over all completed calls.
type Stats struct {
	TotalCalls           int     `json:"total_calls"`
	SuccessfulCalls      int     `json:"successful_calls"`
	FailedCalls          int     `json:"failed_calls"`
	AverageExecutionTime float64 `json:"average_execution_time"`
	CacheHitRate         float64 `json:"cache_hit_rate"`
	ActiveTools          int     `json:"active_tools"`
}

// StatsCollector maintains Stats under a single lock.
type StatsCollector struct {
	mu    sync.Mutex
	stats Stats
}

// NewStatsCollector returns an empty collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{}
}

// Record folds one completed call into the aggregate.
//
// The hit count is reconstructed from the previous rounded rate rather than
// tracked directly, so the rate can drift slightly from the true ratio over
// long runs.
func (s *StatsCollector) Record(success bool, elapsedMs float64, cacheHit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalCalls++
	if success {
		s.stats.SuccessfulCalls++
	} else {
		s.stats.FailedCalls++
	}

	n := float64(s.stats.TotalCalls)
	s.stats.AverageExecutionTime = (s.stats.AverageExecutionTime*(n-1) + elapsedMs) / n

	hits := math.RoundToEven(s.stats.CacheHitRate * (n - 1))
	if cacheHit {
		hits++
	}
	s.stats.CacheHitRate = hits / n
}

// Snapshot returns a copy of the current aggregate.
func (s *StatsCollector) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Reset zeroes all counters, keeping the active tool count.
func (s *StatsCollector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{ActiveTools: s.stats.ActiveTools}
}

// SetActiveTools updates the registered tool count.
func (s *StatsCollector) SetActiveTools(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ActiveTools = n
}
