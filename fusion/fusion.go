// Package fusion implements the Bayesian/voting decision-fusion engine
// (C7): a Bayesian posterior over the detection map, a weighted vote over
// the continuous score map, a 0.6/0.4 blend, an action ladder, a
// confidence function, and the three contextual multipliers. Grounded on
// original_source/analyzer/decision_engine.py's BayesianFusion and
// MultiLayerDecisionEngine, with the detector accuracy/weight table
// carried over as config.FusionConfig.DetectorAccuracy (fixed-enum style
// per spec §9 Design Notes rather than the original's open dictionaries).
package fusion

import (
	"sync"
	"time"

	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/model"
)

// alertHistoryEntry records one past decision for a source host, used by
// the repeat-offender contextual rule.
type alertHistoryEntry struct {
	at time.Time
}

// Engine is C7's decision fusion engine: stateless scoring plus a
// sliding-window alert-history store for the repeat-offender rule.
type Engine struct {
	cfg   config.FusionConfig
	clock clock.Clock

	mu      sync.Mutex
	history map[string][]alertHistoryEntry
}

// NewEngine returns an Engine configured with cfg's calibration table and
// thresholds, using clk for off-hours and alert-history bookkeeping.
func NewEngine(cfg config.FusionConfig, clk clock.Clock) *Engine {
	return &Engine{
		cfg:     cfg,
		clock:   clk,
		history: make(map[string][]alertHistoryEntry),
	}
}

// containsHost is a linear membership test against a configured host
// list; these lists rarely exceed a few dozen entries.
func containsHost(hosts []string, host string) bool {
	for _, h := range hosts {
		if h == host {
			return true
		}
	}
	return false
}

// Decide computes the fused decision for one event's detection and score
// maps, then applies the three contextual adjustments in spec order and
// derives the action from the adjusted score. sourceHost/destHost drive the
// contextual rules. Matching the original's process_event, this event is
// recorded into sourceHost's alert history before the repeat-offender
// count is taken, so a host's third-ever alert is itself the one that
// trips the rule.
func (e *Engine) Decide(detections model.Detections, scores model.Scores, sourceHost, destHost string) model.Decision {
	posterior := e.posterior(detections)
	finalScore := posterior

	if scores.Any() {
		vote := e.weightedVote(scores)
		finalScore = posterior*0.6 + vote*0.4
	}

	confidence := confidenceFor(detections.Count())

	e.recordHistory(sourceHost)
	isRepeatOffender := e.repeatOffenderCount(sourceHost) >= e.cfg.Contextual.RepeatOffenderThreshold
	targetCritical := containsHost(e.cfg.VIPHosts, destHost) || containsHost(e.cfg.CriticalServers, destHost)
	isOffHours := e.isOffHours()

	ctx := model.Context{
		RepeatOffender: isRepeatOffender,
		OffHours:       false,
	}
	if targetCritical {
		ctx.TargetCriticality = "HIGH"
	}

	if targetCritical {
		finalScore = min1(finalScore * e.cfg.Contextual.CriticalTargetMultiplier)
	}
	if isRepeatOffender {
		finalScore = min1(finalScore * e.cfg.Contextual.RepeatOffenderMultiplier)
	}
	if isOffHours && finalScore > e.cfg.Contextual.OffHoursScoreFloor {
		finalScore = min1(finalScore * e.cfg.Contextual.OffHoursMultiplier)
		ctx.OffHours = true
	}

	action := e.actionFor(finalScore)

	return model.Decision{
		Action:     action,
		Score:      finalScore,
		Confidence: confidence,
		Context:    ctx,
	}
}

// posterior computes the Bayesian posterior over every present detection,
// per spec §4.7's exact recurrence.
func (e *Engine) posterior(detections model.Detections) float64 {
	likelihood := 1.0
	evidence := 1.0
	prior := e.cfg.Prior

	for _, id := range model.AllDetectors() {
		triggered, present := detections.Get(id)
		if !present {
			continue
		}
		accuracy, ok := e.cfg.DetectorAccuracy[id.String()]
		if !ok {
			continue
		}

		if triggered {
			likelihood *= accuracy.TPR
			evidence *= accuracy.TPR*prior + accuracy.FPR*(1-prior)
		} else {
			likelihood *= 1 - accuracy.TPR
			evidence *= (1-accuracy.TPR)*prior + (1-accuracy.FPR)*(1-prior)
		}
	}

	if evidence == 0 {
		return 0
	}
	return likelihood * prior / evidence
}

// weightedVote computes Σ(weight·score)/Σweight over every present score
// with a configured weight.
func (e *Engine) weightedVote(scores model.Scores) float64 {
	var weightedSum, totalWeight float64

	for _, id := range model.AllDetectors() {
		score, present := scores.Get(id)
		if !present {
			continue
		}
		accuracy, ok := e.cfg.DetectorAccuracy[id.String()]
		if !ok {
			continue
		}
		weightedSum += score * accuracy.Weight
		totalWeight += accuracy.Weight
	}

	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// actionFor evaluates the action ladder top-down.
func (e *Engine) actionFor(score float64) model.Action {
	t := e.cfg.ActionThresholds
	switch {
	case score >= t.BlockImmediately:
		return model.ActionBlockImmediately
	case score >= t.AlertSOCUrgent:
		return model.ActionAlertSOCUrgent
	case score >= t.AlertSOCHigh:
		return model.ActionAlertSOCHigh
	case score >= t.AlertSOCNormal:
		return model.ActionAlertSOCNormal
	case score >= t.MonitorClosely:
		return model.ActionMonitorClosely
	default:
		return model.ActionLogOnly
	}
}

// confidenceFor maps the triggered-detector count to the coarse
// confidence levels from spec §4.7.
func confidenceFor(triggeredCount int) float64 {
	switch {
	case triggeredCount >= 5:
		return 0.95
	case triggeredCount >= 3:
		return 0.85
	case triggeredCount >= 2:
		return 0.70
	case triggeredCount == 1:
		return 0.50
	default:
		return 0.20
	}
}

// isOffHours reports whether the engine's clock is currently outside the
// configured business-hour window.
func (e *Engine) isOffHours() bool {
	hour := e.clock.Now().Hour()
	return hour < e.cfg.Contextual.BusinessHourStart || hour > e.cfg.Contextual.BusinessHourEnd
}

// repeatOffenderCount returns the number of alert-history entries for host
// within the configured sliding window, pruning expired entries as it
// goes.
func (e *Engine) repeatOffenderCount(host string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.clock.Now().Add(-e.cfg.AlertHistoryWindow)
	entries := e.history[host]

	kept := entries[:0]
	for _, entry := range entries {
		if entry.at.After(cutoff) {
			kept = append(kept, entry)
		}
	}
	e.history[host] = kept

	return len(kept)
}

func (e *Engine) recordHistory(host string) {
	if host == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history[host] = append(e.history[host], alertHistoryEntry{at: e.clock.Now()})
}

func min1(x float64) float64 {
	if x > 1.0 {
		return 1.0
	}
	return x
}
