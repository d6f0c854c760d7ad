// Package alertsink implements the alert sink (C8): it assembles the
// fusion engine's Decision into the wire Alert shape, deduplicates
// near-identical alerts, attaches the CRITICAL-severity investigation
// checklist, and delivers the result to an external collaborator through a
// bounded, retrying queue. Grounded on original_source/analyzer/
// decision_engine.py's generate_alert_report/_enrich_critical_alert for
// assembly, and on the teacher's database/writer.go BulkWriter for the
// queue/backpressure/retry shape.
package alertsink

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/model"
)

// recommendedSteps is the fixed triage checklist the original's
// _enrich_critical_alert attaches to every CRITICAL alert.
var recommendedSteps = []string{
	"Isolate the source IP address",
	"Inspect the process list on the affected host",
	"Collect a PCAP of the network traffic",
	"Review login logs on related hosts",
	"Scan affected systems for known indicators of compromise",
}

// Event carries the fields Assemble needs beyond the Decision itself: the
// human-readable summary and the extra detail the investigation checklist
// attaches for CRITICAL alerts.
type Event struct {
	Summary   model.EventSummary
	Protocols []string
	Files     []string
}

// Assembler turns a fusion Decision into a model.Alert, deduplicating
// repeats of the same (source, type) pair within the same wall-clock
// minute so a sustained attack doesn't flood the sink with near-identical
// rows.
type Assembler struct {
	clock clock.Clock

	mu   sync.Mutex
	seen map[string]int64
}

// NewAssembler returns an Assembler using clk for alert timestamps and
// dedup-window bucketing.
func NewAssembler(clk clock.Clock) *Assembler {
	return &Assembler{
		clock: clk,
		seen:  make(map[string]int64),
	}
}

func dedupKey(source, eventType string) string {
	return source + "\x00" + eventType
}

// Assemble builds the Alert for one decision. The second return value is
// false when this (source, type) pair already produced an alert within
// the current coarse minute, in which case the zero Alert is returned and
// the caller should skip delivery.
func (a *Assembler) Assemble(decision model.Decision, detections model.Detections, event Event) (model.Alert, bool) {
	now := a.clock.Now()
	minute := now.Unix() / 60

	key := dedupKey(event.Summary.Source, event.Summary.Type)

	a.mu.Lock()
	lastMinute, ok := a.seen[key]
	a.seen[key] = minute
	a.mu.Unlock()

	if ok && lastMinute == minute {
		return model.Alert{}, false
	}

	severity := decision.Action.Severity()

	alert := model.Alert{
		AlertID:           fmt.Sprintf("ALERT-%s", now.Format("20060102150405")) + "-" + uuid.NewString()[:8],
		Timestamp:         now,
		Severity:          severity,
		Confidence:        decision.Confidence,
		Score:             decision.Score,
		EventSummary:      event.Summary,
		Detections:        detections.Map(),
		Context:           decision.Context,
		RecommendedAction: decision.Action,
	}

	if severity == model.SeverityCritical {
		alert.Investigation = &model.Investigation{
			RecommendedSteps: recommendedSteps,
			Source:           event.Summary.Source,
			Destination:      event.Summary.Destination,
			Timestamp:        now.Format(time.RFC3339),
			Protocols:        event.Protocols,
			TransferredFiles: event.Files,
		}
	}

	return alert, true
}
