// Package pipeline wires the classifier, detectors, graph analyzer,
// anomaly/baseline learners, threat-intel matcher, and fusion engine into
// one running system (spec §5): consistent-hash worker lanes keyed by
// source host, a two-detector gate before fusion, and a graceful, deadline-
// bounded drain on shutdown. Grounded on the teacher's importer/
// importer.go channel fan-out and database/writer.go's drain-then-close
// shutdown sequencing.
package pipeline

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/serialx/hashring"

	"github.com/lateralwatch/engine/alertsink"
	"github.com/lateralwatch/engine/anomaly"
	"github.com/lateralwatch/engine/baseline"
	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/detect"
	"github.com/lateralwatch/engine/fusion"
	"github.com/lateralwatch/engine/graph"
	"github.com/lateralwatch/engine/logger"
	"github.com/lateralwatch/engine/metrics"
	"github.com/lateralwatch/engine/model"
	"github.com/lateralwatch/engine/threatintel"
)

// detectorForSignal maps a rule-based detection kind onto the fusion
// engine's fixed detector identities. The three zeek_dpi/zeek_encrypted/
// zeek_zeroday rows in the calibration table have no producer here: this
// spec's five log-kind handlers never claim deep-packet-inspection,
// encrypted-traffic, or zero-day coverage, so those detectors are simply
// never marked present, and the fusion posterior naturally skips them.
func detectorForSignal(kind model.DetectionKind) model.DetectorID {
	switch kind {
	case model.KindLateralScan, model.KindRDPHopping:
		return model.DetectorZeekScan
	case model.KindPassTheHash, model.KindSMBBruteforce:
		return model.DetectorZeekAuth
	case model.KindPSExec, model.KindWMIExecution:
		return model.DetectorZeekExec
	default:
		return model.DetectorZeekScan
	}
}

// Pipeline owns every stage and the lanes that drive them.
type Pipeline struct {
	cfg     config.Config
	metrics *metrics.Registry
	clock   clock.Clock

	tracker     []*detect.Tracker
	graph       *graph.Graph
	anomalyDet  *anomaly.Detector
	baseline    *baseline.Learner
	threatintel *threatintel.Matcher
	fusion      *fusion.Engine
	assembler   *alertsink.Assembler
	sink        *alertsink.Sink

	laneNames []string
	ring      *hashring.HashRing
	lanes     []chan *model.Record
	wg        sync.WaitGroup

	mu            sync.Mutex
	recordCount   int
	graphFindings map[string]graph.Finding
}

// Dependencies bundles the already-constructed components a Pipeline
// wires together; each is independently testable in its own package.
type Dependencies struct {
	Graph       *graph.Graph
	Anomaly     *anomaly.Detector
	Baseline    *baseline.Learner
	ThreatIntel *threatintel.Matcher
	Fusion      *fusion.Engine
	Assembler   *alertsink.Assembler
	Sink        *alertsink.Sink
	Metrics     *metrics.Registry
	Clock       clock.Clock
}

// New builds a Pipeline with one Tracker and one buffered channel per
// configured worker lane, and a consistent-hash ring mapping source hosts
// onto lane names so a given host's state always lives on the same lane
// (spec §5).
func New(cfg config.Config, deps Dependencies) *Pipeline {
	p := &Pipeline{
		cfg:           cfg,
		metrics:       deps.Metrics,
		clock:         deps.Clock,
		graph:         deps.Graph,
		anomalyDet:    deps.Anomaly,
		baseline:      deps.Baseline,
		threatintel:   deps.ThreatIntel,
		fusion:        deps.Fusion,
		assembler:     deps.Assembler,
		sink:          deps.Sink,
		graphFindings: make(map[string]graph.Finding),
	}

	n := cfg.Pipeline.WorkerLanes
	p.tracker = make([]*detect.Tracker, n)
	p.lanes = make([]chan *model.Record, n)
	p.laneNames = make([]string, n)
	for i := 0; i < n; i++ {
		p.tracker[i] = detect.NewTracker(cfg.Detectors)
		p.lanes[i] = make(chan *model.Record, cfg.Pipeline.LaneBufferSize)
		p.laneNames[i] = laneName(i)
	}
	p.ring = hashring.New(p.laneNames)

	return p
}

func laneName(i int) string {
	return "lane-" + strconv.Itoa(i)
}

func (p *Pipeline) laneIndex(sourceHost string) int {
	node, ok := p.ring.GetNode(sourceHost)
	if !ok {
		return 0
	}
	for i, name := range p.laneNames {
		if name == node {
			return i
		}
	}
	return 0
}

// Start launches one goroutine per worker lane.
func (p *Pipeline) Start() {
	for i := range p.lanes {
		p.wg.Add(1)
		go p.runLane(i)
	}
}

// Submit routes r onto its source host's lane. Must be called after
// Start and before Shutdown.
func (p *Pipeline) Submit(r *model.Record) {
	idx := p.laneIndex(r.SourceHost)
	p.lanes[idx] <- r
}

// Shutdown closes every lane, waits for in-flight records to drain up to
// cfg.Pipeline.ShutdownDeadline, then closes the alert sink.
func (p *Pipeline) Shutdown() {
	for _, lane := range p.lanes {
		close(lane)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.Pipeline.ShutdownDeadline):
		logger.WithComponent("pipeline").Warn().Msg("shutdown deadline exceeded, some lanes may not have drained")
	}

	p.sink.Close()
}

func (p *Pipeline) runLane(idx int) {
	defer p.wg.Done()
	tracker := p.tracker[idx]

	for r := range p.lanes[idx] {
		p.process(tracker, r)
	}
}

// process runs one record through every detector stage, applies the
// two-detector fusion gate (spec §12's supplemented feature from
// integrated_engine.py), and emits an alert when the gate passes.
func (p *Pipeline) process(tracker *detect.Tracker, r *model.Record) {
	var detections model.Detections
	var scores model.Scores

	for _, sig := range p.runRuleDetectors(tracker, r) {
		detections.Set(detectorForSignal(sig.Kind), true)
	}

	p.graph.AddConnection(r.SourceHost, r.DestHost, r.Service, p.timestamp(r))
	p.maybeRefreshGraphFindings()
	if p.hostHasGraphFinding(r.SourceHost) || p.hostHasGraphFinding(r.DestHost) {
		detections.Set(model.DetectorGraphAnalysis, true)
	} else {
		detections.Set(model.DetectorGraphAnalysis, false)
	}

	fv := model.FeatureVectorFromRecord(*r)
	if p.anomalyDet.Loaded() {
		result := p.anomalyDet.Score(fv)
		detections.Set(model.DetectorMLAnomaly, result.Anomaly)
		scores.Set(model.DetectorMLAnomaly, normalizeUnit(result.Score))
	}

	hour := (int(r.Timestamp) / 3600) % 24
	baselineEvent := baseline.Event{
		Host: r.SourceHost,
		Metrics: map[string]float64{
			"connection_rate":  fv.ConnectionRate,
			"avg_packet_size":  fv.AvgPacketSize,
			"session_duration": fv.SessionDuration,
		},
		Hour: hour,
	}
	baselineResult := p.baseline.EvaluateHost(baselineEvent)
	p.baseline.UpdateHost(baselineEvent)

	hourlyResult := p.baseline.EvaluateHour(hour, fv.ConnectionRate)
	p.baseline.UpdateHour(hour, fv.ConnectionRate)

	anomaly := baselineResult.Anomaly || hourlyResult.Anomaly
	detections.Set(model.DetectorBaselineDeviation, anomaly)
	if anomaly {
		var score float64
		if baselineResult.Anomaly {
			score = normalizeUnit(baselineResult.AccumulatedZ/p.cfg.Baseline.AccumulatedScoreThreshold - 1)
		}
		if hourlyResult.Anomaly {
			if hourly := normalizeUnit(hourlyResult.ZScore/hourlyResult.Threshold - 1); hourly > score {
				score = hourly
			}
		}
		scores.Set(model.DetectorBaselineDeviation, score)
	}

	tiEvent := threatintel.Event{
		SourceIP: r.SourceHost,
		DestIP:   r.DestHost,
		DestPort: r.DestPort,
	}
	matched, enrichment := p.threatintel.Detect(tiEvent)
	detections.Set(model.DetectorThreatIntel, matched)
	if enrichment.RiskScore > 0 {
		scores.Set(model.DetectorThreatIntel, normalizeUnit(enrichment.RiskScore/p.cfg.ThreatIntel.RiskScoreNormalizer))
	}

	if detections.Count() < p.cfg.Pipeline.MinDetectionsToFuse {
		p.metrics.IncFusionGateSkipped()
		return
	}

	decision := p.fusion.Decide(detections, scores, r.SourceHost, r.DestHost)
	p.metrics.IncDecision(string(decision.Action))

	event := alertsink.Event{
		Summary: model.EventSummary{
			Source:      r.SourceHost,
			Destination: r.DestHost,
			Type:        r.Kind,
			Description: describeDetections(detections),
		},
	}
	alert, ok := p.assembler.Assemble(decision, detections, event)
	if !ok {
		return
	}
	p.sink.Push(alert)
}

func (p *Pipeline) runRuleDetectors(tracker *detect.Tracker, r *model.Record) []*detect.Signal {
	var signals []*detect.Signal
	switch r.Kind {
	case model.KindConn:
		if sig := tracker.HandleConn(r); sig != nil {
			signals = append(signals, sig)
		}
	case model.KindNTLM:
		if sig := tracker.HandleNTLM(r); sig != nil {
			signals = append(signals, sig)
		}
	case model.KindSMBFiles, model.KindSMBMapping:
		signals = append(signals, tracker.HandleSMB(r)...)
	case model.KindDCERPC:
		if sig := tracker.HandleDCERPC(r); sig != nil {
			signals = append(signals, sig)
		}
	case model.KindRDP:
		if sig := tracker.HandleRDP(r); sig != nil {
			signals = append(signals, sig)
		}
	}
	return signals
}

func (p *Pipeline) timestamp(r *model.Record) time.Time {
	if r.Timestamp == 0 {
		return p.clock.Now()
	}
	return time.Unix(int64(r.Timestamp), 0)
}

// lateralProtocols are the services classifyChain treats as lateral-
// movement-capable when scoring a multi-hop chain (graph_analyzer.py
// checks for 'SMB'/'RDP' in an edge's protocol set; this module's Service
// field is lowercase, matching the ingest wire format and model.KindRDP).
var lateralProtocols = map[string]struct{}{"smb": {}, "rdp": {}}

// maybeRefreshGraphFindings recomputes all five spec §4.3 graph analyses
// every GraphAnalysisInterval records instead of on every record: a full
// graph snapshot and analysis pass is too costly to run per-event (spec's
// non-goal on real-time latency guarantees applies here).
func (p *Pipeline) maybeRefreshGraphFindings() {
	p.mu.Lock()
	p.recordCount++
	due := p.recordCount%p.cfg.Pipeline.GraphAnalysisInterval == 0
	p.mu.Unlock()

	if !due {
		return
	}

	snap := p.graph.Snapshot()
	findings := make(map[string]graph.Finding)
	for _, f := range snap.AnomalousFanout(p.cfg.Graph.FanoutThreshold) {
		findings[f.Host] = f
	}
	for _, f := range snap.PivotPoints(p.cfg.Graph.PivotBetweennessThreshold, p.cfg.Graph.PivotMinOutDegree) {
		findings[f.Host] = f
	}
	for _, f := range snap.MultiHopChains(p.cfg.Graph.MultiHopCutoff, p.cfg.Graph.MinHops, lateralProtocols) {
		findings[f.Host] = f
	}
	for _, f := range snap.RareCommunications(p.cfg.Graph.RareCommunicationThreshold, normalPathSet(p.cfg.Graph.NormalPaths)) {
		findings[f.Host] = f
	}
	cycles, truncated := snap.CircularPaths(p.cfg.Graph.CycleMaxLength, p.cfg.Graph.CycleMaxResults)
	for _, f := range cycles {
		findings[f.Host] = f
	}
	if truncated {
		logger.WithComponent("pipeline").Warn().Msg("circular path search truncated at graph.cycle_max_results")
	}

	p.mu.Lock()
	p.graphFindings = findings
	p.mu.Unlock()
}

// normalPathSet converts the configured "source->target" allowlist
// entries into the set RareCommunications expects, keyed via
// graph.EdgeKey so the lookup matches what the snapshot's edges use.
func normalPathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		source, target, ok := strings.Cut(p, "->")
		if !ok {
			continue
		}
		set[graph.EdgeKey(source, target)] = struct{}{}
	}
	return set
}

func (p *Pipeline) hostHasGraphFinding(host string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.graphFindings[host]
	return ok
}

func describeDetections(d model.Detections) string {
	var triggered []string
	for _, id := range model.AllDetectors() {
		if on, present := d.Get(id); present && on {
			triggered = append(triggered, id.String())
		}
	}
	if len(triggered) == 0 {
		return "no detectors triggered"
	}

	desc := triggered[0]
	for _, name := range triggered[1:] {
		desc += ", " + name
	}
	return desc + " triggered"
}

// normalizeUnit clamps x into [0, 1], mapping negative inputs to 0 and
// anything above 1 to 1.
func normalizeUnit(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
