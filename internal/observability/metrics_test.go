package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.SourceFallbacks.WithLabelValues("price", "default").Inc()
	m.JobExecutions.WithLabelValues("market-monitor", status(errors.New("x"))).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFallbacks.WithLabelValues("price", "default")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobExecutions.WithLabelValues("market-monitor", "error")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestDefaultRecorders(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.BroadcastMessages.WithLabelValues("trading-signals"))
	RecordBroadcast("trading-signals")
	assert.Equal(t, before+1, testutil.ToFloat64(DefaultMetrics.BroadcastMessages.WithLabelValues("trading-signals")))

	UpdateSchedulerTick(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(DefaultMetrics.SchedulerTick))
}
