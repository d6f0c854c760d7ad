package fusion_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/fusion"
	"github.com/lateralwatch/engine/model"
)

func businessHourClock() *clock.Frozen {
	return clock.NewFrozen(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))
}

func newEngine(clk clock.Clock) *fusion.Engine {
	return fusion.NewEngine(config.GetDefaultConfig().Fusion, clk)
}

func scenarioDDetections() model.Detections {
	var d model.Detections
	d.Set(model.DetectorZeekScan, true)
	d.Set(model.DetectorZeekAuth, true)
	d.Set(model.DetectorZeekExec, true)
	d.Set(model.DetectorZeekDPI, false)
	d.Set(model.DetectorZeekEncrypted, true)
	d.Set(model.DetectorZeekZeroday, false)
	d.Set(model.DetectorMLAnomaly, true)
	d.Set(model.DetectorGraphAnalysis, true)
	d.Set(model.DetectorThreatIntel, false)
	d.Set(model.DetectorBaselineDeviation, true)
	return d
}

func scenarioDScores() model.Scores {
	var s model.Scores
	s.Set(model.DetectorZeekScan, 0.85)
	s.Set(model.DetectorZeekAuth, 0.90)
	s.Set(model.DetectorZeekExec, 0.92)
	s.Set(model.DetectorZeekEncrypted, 0.75)
	s.Set(model.DetectorMLAnomaly, 0.88)
	s.Set(model.DetectorGraphAnalysis, 0.82)
	s.Set(model.DetectorBaselineDeviation, 0.78)
	return s
}

// Scenario D - full fusion: seven of ten detectors triggered.
func TestScenarioDFullFusion(t *testing.T) {
	e := newEngine(businessHourClock())

	decision := e.Decide(scenarioDDetections(), scenarioDScores(), "192.168.1.100", "10.0.9.9")

	require.Equal(t, 0.95, decision.Confidence, "seven triggered detectors -> confidence 0.95")
	require.GreaterOrEqual(t, decision.Score, 0.99, "strong multi-detector evidence should drive the posterior very high")
	require.Contains(t, []model.Action{model.ActionAlertSOCUrgent, model.ActionBlockImmediately}, decision.Action)
}

// Scenario E - off-hours VIP target with a repeat-offender source.
func TestScenarioEOffHoursVIPRepeatOffender(t *testing.T) {
	nightClock := clock.NewFrozen(time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC))

	cfg := config.GetDefaultConfig().Fusion
	cfg.VIPHosts = []string{"10.0.1.1"}
	e := fusion.NewEngine(cfg, nightClock)

	source := "192.168.1.200"

	// seed repeat-offender history: two prior low-stakes events from the
	// same source, so the third call below already meets the >=3 threshold.
	var weak model.Detections
	weak.Set(model.DetectorZeekScan, false)
	e.Decide(weak, model.Scores{}, source, "10.0.0.1")
	e.Decide(weak, model.Scores{}, source, "10.0.0.1")

	decision := e.Decide(scenarioDDetections(), scenarioDScores(), source, "10.0.1.1")

	require.True(t, decision.Context.RepeatOffender)
	require.Equal(t, "HIGH", decision.Context.TargetCriticality)
	require.True(t, decision.Context.OffHours)
	require.InDelta(t, 1.0, decision.Score, 1e-9)
	require.Equal(t, model.ActionBlockImmediately, decision.Action)
}

// Scenario F - ML disabled: ml_anomaly always false with score 0; posterior
// computed over the remaining detectors only.
func TestScenarioFMLDisabled(t *testing.T) {
	e := newEngine(businessHourClock())

	var d model.Detections
	d.Set(model.DetectorZeekScan, true)
	d.Set(model.DetectorMLAnomaly, false)

	var s model.Scores
	s.Set(model.DetectorZeekScan, 0.8)
	s.Set(model.DetectorMLAnomaly, 0.0)

	decision := e.Decide(d, s, "10.0.0.50", "10.0.0.60")
	require.GreaterOrEqual(t, decision.Score, 0.0)
}

func TestEmptyDetectionsYieldPriorPosterior(t *testing.T) {
	e := newEngine(businessHourClock())
	decision := e.Decide(model.Detections{}, model.Scores{}, "10.0.0.1", "10.0.0.2")

	require.InDelta(t, config.GetDefaultConfig().Fusion.Prior, decision.Score, 1e-9)
	require.Equal(t, model.ActionLogOnly, decision.Action)
	require.Equal(t, 0.20, decision.Confidence)
}

func TestConfidenceMatchesTriggeredCount(t *testing.T) {
	e := newEngine(businessHourClock())

	var d model.Detections
	d.Set(model.DetectorZeekScan, true)
	decision := e.Decide(d, model.Scores{}, "10.9.9.1", "10.9.9.2")
	require.Equal(t, 0.50, decision.Confidence)

	var d2 model.Detections
	d2.Set(model.DetectorZeekScan, true)
	d2.Set(model.DetectorZeekAuth, true)
	decision2 := e.Decide(d2, model.Scores{}, "10.9.9.3", "10.9.9.4")
	require.Equal(t, 0.70, decision2.Confidence)
}
