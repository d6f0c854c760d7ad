package detect

import "github.com/lateralwatch/engine/model"

// Signal is one primitive detection emitted by a rule-based handler (C2).
// It is threshold-crossing-only: a handler emits at most one Signal of a
// given kind per pair/host per boundary crossing, per spec §4.2's firm
// invariant against repeated identical alerts.
type Signal struct {
	Kind        model.DetectionKind
	Severity    model.Severity
	SourceHost  string
	DestHost    string
	Description string
	Targets     []string
	Ports       []int
	HostCount   int
	HashDisplay string
	Endpoints   []string
	FailCount   int
}
