package service

import (
	"sort"
	"sync"
	"time"
)

// slowPassThreshold marks recompute passes that take longer than one upstream timeout
const slowPassThreshold = 5 * time.Second

// RecomputeMonitor keeps timing samples of recent recompute passes
type RecomputeMonitor struct {
	mu         sync.RWMutex
	durations  []time.Duration
	maxSamples int

	passes       int64
	slowPasses   int64
	tokenRuns    int64
	tokenErrors  int64
	lastPassAt   time.Time
	lastDuration time.Duration
	lastFailures int
}

// NewRecomputeMonitor keeps the last 500 pass durations
func NewRecomputeMonitor() *RecomputeMonitor {
	return &RecomputeMonitor{
		durations:  make([]time.Duration, 0, 500),
		maxSamples: 500,
	}
}

// RecordPass records one recompute pass over tokens tokens of which failures failed
func (m *RecomputeMonitor) RecordPass(at time.Time, duration time.Duration, tokens, failures int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.passes++
	m.tokenRuns += int64(tokens)
	m.tokenErrors += int64(failures)
	m.lastPassAt = at
	m.lastDuration = duration
	m.lastFailures = failures

	m.durations = append(m.durations, duration)
	if len(m.durations) > m.maxSamples {
		m.durations = m.durations[len(m.durations)-m.maxSamples:]
	}

	if duration > slowPassThreshold {
		m.slowPasses++
	}
}

// RecomputeStats summarizes recent recompute passes
type RecomputeStats struct {
	Passes         int64      `json:"passes"`
	SlowPasses     int64      `json:"slowPasses"`
	TokenRuns      int64      `json:"tokenRuns"`
	TokenErrors    int64      `json:"tokenErrors"`
	LastPassAt     *time.Time `json:"lastPassAt,omitempty"`
	LastDurationMs int64      `json:"lastDurationMs"`
	LastFailures   int        `json:"lastFailures"`
	AvgDurationMs  float64    `json:"avgDurationMs"`
	P95DurationMs  float64    `json:"p95DurationMs"`
}

// GetStats returns the current statistics
func (m *RecomputeMonitor) GetStats() RecomputeStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := RecomputeStats{
		Passes:         m.passes,
		SlowPasses:     m.slowPasses,
		TokenRuns:      m.tokenRuns,
		TokenErrors:    m.tokenErrors,
		LastDurationMs: m.lastDuration.Milliseconds(),
		LastFailures:   m.lastFailures,
	}
	if !m.lastPassAt.IsZero() {
		at := m.lastPassAt
		stats.LastPassAt = &at
	}

	if len(m.durations) == 0 {
		return stats
	}

	sorted := make([]time.Duration, len(m.durations))
	copy(sorted, m.durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	stats.AvgDurationMs = float64(total.Milliseconds()) / float64(len(sorted))

	p95 := int(float64(len(sorted)) * 0.95)
	if p95 >= len(sorted) {
		p95 = len(sorted) - 1
	}
	stats.P95DurationMs = float64(sorted[p95].Milliseconds())
	return stats
}
