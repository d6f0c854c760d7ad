// Package model holds the types shared across every stage of the detection
// pipeline: the parsed input record, the fixed detector-identity enum, and
// the detection/score maps that flow from C2-C6 into the fusion engine. It
// exists so that ingest, detect, graph, anomaly, baseline, threatintel,
// fusion, and alertsink can all refer to the same vocabulary without
// import cycles, the way the teacher's zeektypes package gives its own
// importer/database boundary one shared record vocabulary.
package model

// Log-kind tags recognized by the record classifier (C1). Any other value
// in a record's _path field causes the record to be silently ignored.
const (
	KindConn       = "conn"
	KindNTLM       = "ntlm"
	KindSMBFiles   = "smb_files"
	KindSMBMapping = "smb_mapping"
	KindDCERPC     = "dce_rpc"
	KindRDP        = "rdp"
	KindSSL        = "ssl"
)

// Record is one classified, field-normalized observation. SourceHost and
// DestHost are the canonical address fields every downstream component
// reads (spec's open question on id.orig_h/id.resp_h vs dst_ip is resolved
// by normalizing here, at classify time).
type Record struct {
	Kind       string
	Timestamp  float64
	SourceHost string
	DestHost   string
	SourcePort int
	DestPort   int
	Service    string

	// kind-specific optional fields
	NTLMResponse string
	Path         string
	Status       string
	Endpoint     string
	Cookie       string
	Action       string
	OrigBytes    int64
	Duration     float64
}

// AdminInteresting reports whether port appears in the configured set of
// admin-interesting destination ports (22, 135, 139, 445, 3389, 5985, 5986).
func AdminInteresting(port int, adminPorts []int) bool {
	for _, p := range adminPorts {
		if p == port {
			return true
		}
	}
	return false
}
