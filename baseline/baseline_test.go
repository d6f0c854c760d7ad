package baseline_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lateralwatch/engine/baseline"
	"github.com/lateralwatch/engine/config"
)

func newLearner() *baseline.Learner {
	return baseline.NewLearner(config.GetDefaultConfig().Baseline)
}

func TestUnknownHostIsNeverAnomalous(t *testing.T) {
	l := newLearner()
	result := l.EvaluateHost(baseline.Event{Host: "10.0.0.1", Metrics: map[string]float64{"connection_rate": 500}})
	require.False(t, result.Anomaly)
}

func TestHostDeviationFiresAboveAccumulatedThreshold(t *testing.T) {
	l := newLearner()

	for i := 0; i < 50; i++ {
		sample := 10 + float64(i%3)
		l.UpdateHost(baseline.Event{Host: "10.0.0.1", Metrics: map[string]float64{"connection_rate": sample}})
	}

	// a single wildly deviant metric reading should accumulate past 10 on its own
	result := l.EvaluateHost(baseline.Event{Host: "10.0.0.1", Metrics: map[string]float64{"connection_rate": 10000}})
	require.True(t, result.Anomaly)
	require.Contains(t, result.DeviantMetrics, "connection_rate")
}

func TestHostDeviationDoesNotFireWithinNormalRange(t *testing.T) {
	l := newLearner()
	for i := 0; i < 50; i++ {
		l.UpdateHost(baseline.Event{Host: "10.0.0.1", Metrics: map[string]float64{"connection_rate": 10 + float64(i%3)}})
	}

	result := l.EvaluateHost(baseline.Event{Host: "10.0.0.1", Metrics: map[string]float64{"connection_rate": 11}})
	require.False(t, result.Anomaly)
}

func TestHourlyRequiresMinimumSamples(t *testing.T) {
	l := newLearner()
	for i := 0; i < 5; i++ {
		l.UpdateHour(3, 100)
	}
	result := l.EvaluateHour(3, 99999)
	require.False(t, result.Anomaly, "fewer than HourlyMinSamples observations must never flag")
}

func TestHourlyNightThresholdIsStricterThanBusinessHours(t *testing.T) {
	night := newLearner()
	business := newLearner()

	for i := 0; i < 20; i++ {
		sample := 100 + float64(i%5)
		night.UpdateHour(3, sample)
		business.UpdateHour(10, sample)
	}

	nightResult := night.EvaluateHour(3, 107)
	businessResult := business.EvaluateHour(10, 107)

	require.True(t, nightResult.Anomaly, "night hours use z=2, a moderate deviation should flag")
	require.False(t, businessResult.Anomaly, "business hours use z=5, the same deviation should not flag")
}

func TestHourlyP95ReflectsRecentSamples(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 100; i++ {
		l.UpdateHour(12, float64(i))
	}

	p95, err := l.HourlyP95(12)
	require.NoError(t, err)
	require.InDelta(t, 95, p95, 5)
}

func TestHourlyP95EmptyHourReturnsZero(t *testing.T) {
	l := newLearner()
	p95, err := l.HourlyP95(0)
	require.NoError(t, err)
	require.Equal(t, float64(0), p95)
}
