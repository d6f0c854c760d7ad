package store_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/lateralwatch/engine/baseline"
	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/graph"
	"github.com/lateralwatch/engine/store"
	"github.com/lateralwatch/engine/threatintel"
)

func TestSaveAllThenLoadAllRoundTrips(t *testing.T) {
	cfg := config.GetDefaultConfig()
	afs := afero.NewMemMapFs()
	clk := clock.NewFrozen(time.Now())
	s := store.New(afs, "/var/lib/engine")

	g := graph.New()
	g.AddConnection("10.0.0.1", "10.0.0.2", "smb", clk.Now())
	g.AddConnection("10.0.0.1", "10.0.0.3", "smb", clk.Now())

	bl := baseline.NewLearner(cfg.Baseline)
	bl.UpdateHost(baseline.Event{Host: "10.0.0.1", Metrics: map[string]float64{"connection_rate": 5}, Hour: 3})
	bl.UpdateHost(baseline.Event{Host: "10.0.0.1", Metrics: map[string]float64{"connection_rate": 7}, Hour: 3})
	bl.UpdateHour(3, 42)

	ti := threatintel.NewMatcher(cfg.ThreatIntel, clk)
	ti.AddIOC("ip", "203.0.113.9")
	ti.AddIOC("domain", "evil.example.com")

	require.NoError(t, s.SaveAll(g, bl, ti, clk))

	g2 := graph.New()
	bl2 := baseline.NewLearner(cfg.Baseline)
	ti2 := threatintel.NewMatcher(cfg.ThreatIntel, clk)
	require.NoError(t, s.LoadAll(g2, bl2, ti2))

	require.Equal(t, 3, g2.NodeCount())

	before := bl.EvaluateHost(baseline.Event{Host: "10.0.0.1", Metrics: map[string]float64{"connection_rate": 50}, Hour: 3})
	after := bl2.EvaluateHost(baseline.Event{Host: "10.0.0.1", Metrics: map[string]float64{"connection_rate": 50}, Hour: 3})
	require.Equal(t, before.Anomaly, after.Anomaly)
	require.InDelta(t, before.AccumulatedZ, after.AccumulatedZ, 1e-9)

	matched, _ := ti2.Detect(threatintel.Event{SourceIP: "203.0.113.9"})
	require.True(t, matched)
	_, enrichment := ti2.Detect(threatintel.Event{Domain: "evil.example.com"})
	require.True(t, enrichment.MatchedDomain)
}

func TestLoadAllOnColdStartIsNotAnError(t *testing.T) {
	cfg := config.GetDefaultConfig()
	afs := afero.NewMemMapFs()
	clk := clock.NewFrozen(time.Now())
	s := store.New(afs, "/var/lib/engine")

	g := graph.New()
	bl := baseline.NewLearner(cfg.Baseline)
	ti := threatintel.NewMatcher(cfg.ThreatIntel, clk)

	require.NoError(t, s.LoadAll(g, bl, ti))
	require.Equal(t, 0, g.NodeCount())
}
