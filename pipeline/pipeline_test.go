package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/lateralwatch/engine/alertsink"
	"github.com/lateralwatch/engine/anomaly"
	"github.com/lateralwatch/engine/baseline"
	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/fusion"
	"github.com/lateralwatch/engine/graph"
	"github.com/lateralwatch/engine/metrics"
	"github.com/lateralwatch/engine/model"
	"github.com/lateralwatch/engine/pipeline"
	"github.com/lateralwatch/engine/threatintel"
)

type recordingForwarder struct {
	mu        sync.Mutex
	delivered []model.Alert
}

func (f *recordingForwarder) Forward(_ context.Context, alert model.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, alert)
	return nil
}

func (f *recordingForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func buildPipeline(t *testing.T, clk clock.Clock) (*pipeline.Pipeline, *recordingForwarder) {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.AlertSink.BackoffInitial = time.Millisecond
	cfg.AlertSink.BackoffMax = 2 * time.Millisecond
	cfg.AlertSink.FlushDeadline = time.Second

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	forwarder := &recordingForwarder{}

	deps := pipeline.Dependencies{
		Graph:       graph.New(),
		Anomaly:     anomaly.NewDetector(),
		Baseline:    baseline.NewLearner(cfg.Baseline),
		ThreatIntel: threatintel.NewMatcher(cfg.ThreatIntel, clk),
		Fusion:      fusion.NewEngine(cfg.Fusion, clk),
		Assembler:   alertsink.NewAssembler(clk),
		Sink:        alertsink.NewSink(cfg.AlertSink, forwarder, reg),
		Metrics:     reg,
		Clock:       clk,
	}

	p := pipeline.New(cfg, deps)
	deps.ThreatIntel.AddIOC("ip", "192.168.1.10")
	return p, forwarder
}

func connRecord(source, dest string, ts float64) *model.Record {
	return &model.Record{
		Kind:       model.KindConn,
		Timestamp:  ts,
		SourceHost: source,
		DestHost:   dest,
		DestPort:   445,
		Service:    "smb",
	}
}

// A lateral-scan signal (20 distinct admin-port destinations) combined with
// a standing threat-intel IOC match on the source host crosses the
// two-detector fusion gate on the record that tips the scan threshold, and
// not before.
func TestPipelineEmitsAlertOnlyAfterTwoDetectorsFire(t *testing.T) {
	clk := clock.NewFrozen(time.Now())
	p, forwarder := buildPipeline(t, clk)
	p.Start()

	for i := 0; i < 20; i++ {
		dest := fmt.Sprintf("192.168.2.%d", i+1)
		p.Submit(connRecord("192.168.1.10", dest, float64(clk.Now().Unix())))
		if i < 19 {
			require.Equal(t, 0, forwarder.count(), "gate should not pass before the scan threshold is reached")
		}
	}

	p.Shutdown()
	require.Equal(t, 1, forwarder.count(), "the 20th record should cross both the scan threshold and the fusion gate")
}

func TestPipelineSkipsSingleWeakDetector(t *testing.T) {
	clk := clock.NewFrozen(time.Now())
	p, forwarder := buildPipeline(t, clk)
	p.Start()

	// a clean source with no IOC hit and no scan pattern: at most the
	// threat-intel/graph/baseline detectors are present and false, so the
	// gate never opens.
	for i := 0; i < 5; i++ {
		dest := fmt.Sprintf("192.168.3.%d", i+1)
		p.Submit(connRecord("192.168.9.9", dest, float64(clk.Now().Unix())))
	}

	p.Shutdown()
	require.Equal(t, 0, forwarder.count())
}
