package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/lateralwatch/engine/alertsink"
	"github.com/lateralwatch/engine/anomaly"
	"github.com/lateralwatch/engine/baseline"
	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/fusion"
	"github.com/lateralwatch/engine/graph"
	"github.com/lateralwatch/engine/logger"
	"github.com/lateralwatch/engine/metrics"
	"github.com/lateralwatch/engine/pipeline"
	"github.com/lateralwatch/engine/store"
	"github.com/lateralwatch/engine/threatintel"
)

// runningPipeline bundles a constructed Pipeline with the components a
// caller needs to persist or tear down around it.
type runningPipeline struct {
	Pipeline    *pipeline.Pipeline
	Graph       *graph.Graph
	Baseline    *baseline.Learner
	ThreatIntel *threatintel.Matcher
	Store       *store.Store
	cancelFeed  context.CancelFunc
}

// buildPipeline constructs every C2-C8 component from cfg, optionally
// restoring C3/C5/C6 state from afs at cfg.Env.StateDir, optionally loads
// an anomaly-detector artifact, starts the threat-intel feed refresher if
// feed URLs are configured, and returns the running Pipeline along with
// what's needed to persist state and shut down cleanly.
func buildPipeline(cfg config.Config, afs afero.Fs, clk clock.Clock, forwarder alertsink.Forwarder, reg *metrics.Registry, anomalyArtifact []byte, loadState bool) (*runningPipeline, error) {
	g := graph.New()
	bl := baseline.NewLearner(cfg.Baseline)
	ti := threatintel.NewMatcher(cfg.ThreatIntel, clk)
	st := store.New(afs, cfg.Env.StateDir)

	if loadState {
		if err := st.LoadAll(g, bl, ti); err != nil {
			return nil, err
		}
	}

	anomalyDet := anomaly.NewDetector()
	if len(anomalyArtifact) > 0 {
		if err := anomalyDet.LoadArtifact(anomalyArtifact); err != nil {
			return nil, err
		}
	}

	fusionEngine := fusion.NewEngine(cfg.Fusion, clk)
	assembler := alertsink.NewAssembler(clk)
	sink := alertsink.NewSink(cfg.AlertSink, forwarder, reg)

	deps := pipeline.Dependencies{
		Graph:       g,
		Anomaly:     anomalyDet,
		Baseline:    bl,
		ThreatIntel: ti,
		Fusion:      fusionEngine,
		Assembler:   assembler,
		Sink:        sink,
		Metrics:     reg,
		Clock:       clk,
	}

	ctx, cancel := context.WithCancel(context.Background())
	if len(cfg.ThreatIntel.FeedURLs) > 0 {
		refresher := threatintel.NewFeedRefresher(ti, cfg.ThreatIntel.FeedURLs, cfg.ThreatIntel.FeedRefreshInterval, cfg.ThreatIntel.FeedRefreshTimeout)
		go runFeedRefresher(ctx, refresher, cfg.ThreatIntel.FeedRefreshInterval)
	}

	p := pipeline.New(cfg, deps)

	return &runningPipeline{
		Pipeline:    p,
		Graph:       g,
		Baseline:    bl,
		ThreatIntel: ti,
		Store:       st,
		cancelFeed:  cancel,
	}, nil
}

// runFeedRefresher pulls the configured IOC feeds once, then again on
// every tick of interval, until ctx is cancelled.
func runFeedRefresher(ctx context.Context, refresher *threatintel.FeedRefresher, interval time.Duration) {
	log := logger.WithComponent("cmd")
	if err := refresher.RefreshOnce(ctx); err != nil {
		log.Warn().Err(err).Msg("initial ioc feed refresh failed")
	}

	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresher.RefreshOnce(ctx); err != nil {
				log.Warn().Err(err).Msg("ioc feed refresh failed")
			}
		}
	}
}

// shutdown drains the pipeline, stops the feed refresher, and persists
// state when persist is true.
func (rp *runningPipeline) shutdown(persist bool, clk clock.Clock) error {
	rp.Pipeline.Shutdown()
	rp.cancelFeed()

	if !persist {
		return nil
	}
	return rp.Store.SaveAll(rp.Graph, rp.Baseline, rp.ThreatIntel, clk)
}

func newMetricsRegistry() *metrics.Registry {
	return metrics.NewRegistry(prometheus.NewRegistry())
}

// buildForwarder resolves the --sink flag into a concrete C8 Forwarder.
// "stdout" (the default) writes one JSON line per alert to out; "clickhouse"
// opens a real connection using cfg.Env's credentials, grounded on the
// teacher's ConnectToDB dial options (database/db.go). The returned close
// function releases the ClickHouse connection, if one was opened; it is a
// no-op for the stdout sink.
func buildForwarder(ctx context.Context, sink string, cfg config.Config, out io.Writer) (alertsink.Forwarder, func(), error) {
	switch sink {
	case "", "stdout":
		return alertsink.NewStdoutForwarder(out), func() {}, nil
	case "clickhouse":
		conn, err := openClickHouse(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to clickhouse: %w", err)
		}
		forwarder := alertsink.NewClickHouseForwarder(conn, cfg.AlertSink.ClickHouseDatabase, cfg.AlertSink.ClickHouseTable)
		return forwarder, func() { _ = conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink %q: must be \"stdout\" or \"clickhouse\"", sink)
	}
}
