package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"
)

func TestNewEngineMetrics_RegistersAllSeriesUnderNamespace(t *testing.T) {
	m := NewEngineMetrics("timewarp_metrics_test_register")

	require.NotNil(t, m.QueueDepth)
	require.NotNil(t, m.LVT)
	require.NotNil(t, m.RollbacksTotal)
	require.NotNil(t, m.AntiMessagesSentTotal)
	require.NotNil(t, m.AnnihilationsTotal)
	require.NotNil(t, m.CheckpointsTotal)
}

func TestEngineMetrics_GaugeAndCounterAreLabeledByComponent(t *testing.T) {
	m := NewEngineMetrics("timewarp_metrics_test_labels")

	m.QueueDepth.WithLabelValues("component-1").Set(3)
	m.RollbacksTotal.WithLabelValues("component-1").Inc()

	var metric dto.Metric
	require.NoError(t, m.QueueDepth.WithLabelValues("component-1").Write(&metric))
	assert.Equal(t, float64(3), metric.GetGauge().GetValue())

	var counter dto.Metric
	require.NoError(t, m.RollbacksTotal.WithLabelValues("component-1").Write(&counter))
	assert.Equal(t, float64(1), counter.GetCounter().GetValue())
}
