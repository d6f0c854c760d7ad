package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/lateralwatch/engine/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRegistryCountersIncrement(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())

	reg.IncParseFailure()
	reg.IncParseFailure()
	require.Equal(t, float64(2), counterValue(t, reg.ParseFailures))

	reg.IncPushFailure()
	require.Equal(t, float64(1), counterValue(t, reg.PushFailures))

	reg.IncDroppedAlert()
	require.Equal(t, float64(1), counterValue(t, reg.DroppedAlerts))

	reg.IncFusionGateSkipped()
	require.Equal(t, float64(1), counterValue(t, reg.FusionGateSkipped))
}

func TestRegistryNilReceiverIsSafe(t *testing.T) {
	var reg *metrics.Registry
	require.NotPanics(t, func() {
		reg.IncParseFailure()
		reg.IncPushFailure()
		reg.IncDroppedAlert()
		reg.SetAlertQueueDepth(5)
		reg.IncDecision("LOG_ONLY")
		reg.IncStateBoundExceeded("detect")
		reg.IncDependencyUnavailable("anomaly")
		reg.IncFusionGateSkipped()
	})
}

func TestAlertQueueDepthGauge(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	reg.SetAlertQueueDepth(42)

	var m dto.Metric
	require.NoError(t, reg.AlertQueueDepth.Write(&m))
	require.Equal(t, float64(42), m.GetGauge().GetValue())
}
