package model

import "time"

// Severity is the output alert's severity tier, derived from the fusion
// engine's chosen Action via the fixed mapping in spec §6.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Action is one rung of the fusion engine's action ladder (spec §4.7).
type Action string

const (
	ActionBlockImmediately Action = "BLOCK_IMMEDIATELY"
	ActionAlertSOCUrgent   Action = "ALERT_SOC_URGENT"
	ActionAlertSOCHigh     Action = "ALERT_SOC_HIGH"
	ActionAlertSOCNormal   Action = "ALERT_SOC_NORMAL"
	ActionMonitorClosely   Action = "MONITOR_CLOSELY"
	ActionLogOnly          Action = "LOG_ONLY"
)

// Severity returns the fixed action -> severity mapping from spec §6.
func (a Action) Severity() Severity {
	switch a {
	case ActionBlockImmediately, ActionAlertSOCUrgent:
		return SeverityCritical
	case ActionAlertSOCHigh:
		return SeverityHigh
	case ActionAlertSOCNormal:
		return SeverityMedium
	case ActionMonitorClosely:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// DetectionKind names a primitive alert kind emitted by C2/C3 (LATERAL_SCAN,
// PASS_THE_HASH, and so on).
type DetectionKind string

const (
	KindLateralScan    DetectionKind = "LATERAL_SCAN"
	KindPassTheHash    DetectionKind = "PASS_THE_HASH"
	KindPSExec         DetectionKind = "PSEXEC"
	KindSMBBruteforce  DetectionKind = "SMB_BRUTEFORCE"
	KindWMIExecution   DetectionKind = "WMI_EXECUTION"
	KindRDPHopping     DetectionKind = "RDP_HOPPING"
	KindAbnormalFanout DetectionKind = "ABNORMAL_FANOUT"
	KindMultiHopChain  DetectionKind = "MULTI_HOP_CHAIN"
	KindRareComm       DetectionKind = "RARE_COMMUNICATION"
	KindPivotPoint     DetectionKind = "PIVOT_POINT"
	KindCircularPath   DetectionKind = "CIRCULAR_PATH"
)

// EventSummary is the human-readable core of an alert (spec §6).
type EventSummary struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Context carries the contextual flags that informed the fusion engine's
// adjustments (spec §6).
type Context struct {
	RepeatOffender    bool   `json:"repeat_offender"`
	OffHours          bool   `json:"off_hours"`
	TargetCriticality string `json:"target_criticality"`
}

// Investigation is the triage checklist and IOC snapshot attached to
// CRITICAL alerts (spec §4.8, supplemented from original_source's
// _enrich_critical_alert).
type Investigation struct {
	RecommendedSteps []string `json:"recommended_steps"`
	Source           string   `json:"source"`
	Destination      string   `json:"destination"`
	Timestamp        string   `json:"timestamp"`
	Protocols        []string `json:"protocols"`
	TransferredFiles []string `json:"transferred_files,omitempty"`
}

// Alert is the sink's final output record (spec §6).
type Alert struct {
	AlertID           string          `json:"alert_id"`
	Timestamp         time.Time       `json:"timestamp"`
	Severity          Severity        `json:"severity"`
	Confidence        float64         `json:"confidence"`
	Score             float64         `json:"score"`
	EventSummary      EventSummary    `json:"event_summary"`
	Detections        map[string]bool `json:"detections"`
	Context           Context         `json:"context"`
	RecommendedAction Action          `json:"recommended_action"`
	Investigation     *Investigation  `json:"investigation,omitempty"`
}

// Decision is the fusion engine's output before alert assembly: the chosen
// action plus the score/confidence it was derived from.
type Decision struct {
	Action     Action
	Score      float64
	Confidence float64
	Context    Context
}
