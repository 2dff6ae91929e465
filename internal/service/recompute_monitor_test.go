package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeMonitor_RecordPass(t *testing.T) {
	m := NewRecomputeMonitor()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m.RecordPass(at, 100*time.Millisecond, 3, 0)
	m.RecordPass(at.Add(15*time.Second), 300*time.Millisecond, 3, 1)
	m.RecordPass(at.Add(30*time.Second), 6*time.Second, 3, 3)

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats.Passes)
	assert.Equal(t, int64(1), stats.SlowPasses)
	assert.Equal(t, int64(9), stats.TokenRuns)
	assert.Equal(t, int64(4), stats.TokenErrors)
	assert.Equal(t, 3, stats.LastFailures)
	assert.Equal(t, int64(6000), stats.LastDurationMs)
	assert.InDelta(t, 2133.33, stats.AvgDurationMs, 0.01)
	assert.Equal(t, 6000.0, stats.P95DurationMs)
	require.NotNil(t, stats.LastPassAt)
	assert.Equal(t, at.Add(30*time.Second), *stats.LastPassAt)
}

func TestRecomputeMonitor_Empty(t *testing.T) {
	stats := NewRecomputeMonitor().GetStats()
	assert.Zero(t, stats.Passes)
	assert.Nil(t, stats.LastPassAt)
	assert.Zero(t, stats.P95DurationMs)
}

func TestRecomputeMonitor_KeepsRecentSamples(t *testing.T) {
	m := NewRecomputeMonitor()
	for i := 0; i < 600; i++ {
		m.RecordPass(time.Now(), time.Second, 1, 0)
	}
	assert.Len(t, m.durations, 500)
	assert.Equal(t, int64(600), m.GetStats().Passes)
}
