// Package detect implements the rule-based detectors (C2): five stateful
// per-log handlers that track host/pair/hash activity across records and
// emit primitive detection signals. Grounded on original_source's
// detector.py for the exact thresholds and triggering semantics, recast
// into the teacher's stateful-tracker idiom (per-key map-of-state guarded
// by a mutex, as analysis/analysis.go's Analyzer does for its own
// in-memory accumulators).
package detect

import (
	"strings"
	"sync"
	"time"

	"github.com/lateralwatch/engine/config"
	"github.com/lateralwatch/engine/model"
	"github.com/lateralwatch/engine/util"
)

// Tracker owns all per-host, per-pair, and per-hash state for one worker
// lane. Per spec §5, all state mutations for a given source host happen on
// one lane, so a Tracker instance never needs cross-lane locking; the
// mutex here only guards against a lane's own goroutine and concurrent test
// access.
type Tracker struct {
	mu   sync.Mutex
	cfg  config.DetectorConfig
	host map[string]*hostActivityEntry
	pair map[string]*pairActivityEntry
	hash map[string]*ntlmHashEntry
}

// NewTracker returns an empty Tracker configured with cfg's thresholds.
func NewTracker(cfg config.DetectorConfig) *Tracker {
	return &Tracker{
		cfg:  cfg,
		host: make(map[string]*hostActivityEntry),
		pair: make(map[string]*pairActivityEntry),
		hash: make(map[string]*ntlmHashEntry),
	}
}

// Reset clears all tracked state. Used by tests and by an explicit
// operator-triggered reset; not called on the hot path.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host = make(map[string]*hostActivityEntry)
	t.pair = make(map[string]*pairActivityEntry)
	t.hash = make(map[string]*ntlmHashEntry)
}

// HandleConn implements the connection handler (spec §4.2.1): the
// lateral-scan rule.
func (t *Tracker) HandleConn(r *model.Record) *Signal {
	if !util.IsPrivateHost(r.SourceHost) || !util.IsPrivateHost(r.DestHost) {
		return nil
	}
	if !model.AdminInteresting(r.DestPort, t.cfg.AdminInterestingPorts) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.host[r.SourceHost]
	if !ok {
		entry = newHostActivityEntry()
		t.host[r.SourceHost] = entry
	}
	entry.destHosts[r.DestHost] = struct{}{}
	entry.ports[r.DestPort] = struct{}{}
	entry.lastSeen = time.Unix(int64(r.Timestamp), 0)

	count := len(entry.destHosts)
	if count < t.cfg.LateralScanThreshold || entry.scanAlerted {
		return nil
	}
	entry.scanAlerted = true

	return &Signal{
		Kind:       model.KindLateralScan,
		Severity:   model.SeverityHigh,
		SourceHost: r.SourceHost,
		HostCount:  count,
		Targets:    limitStrings(setKeys(entry.destHosts), t.cfg.LateralScanExampleSize),
		Ports:      intSetValues(entry.ports),
	}
}

// HandleNTLM implements the NTLM handler (spec §4.2.2): pass-the-hash
// detection via hash reuse across distinct hosts.
func (t *Tracker) HandleNTLM(r *model.Record) *Signal {
	if r.NTLMResponse == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.hash[r.NTLMResponse]
	if !ok {
		entry = newNTLMHashEntry()
		t.hash[r.NTLMResponse] = entry
	}
	entry.hosts[r.SourceHost] = struct{}{}

	count := len(entry.hosts)
	if count < t.cfg.PassTheHashHostCount || entry.pthAlerted {
		return nil
	}
	entry.pthAlerted = true

	return &Signal{
		Kind:        model.KindPassTheHash,
		Severity:    model.SeverityCritical,
		SourceHost:  r.SourceHost,
		HostCount:   count,
		Targets:     setKeys(entry.hosts),
		HashDisplay: truncatedHash(r.NTLMResponse),
	}
}

// HandleSMB implements the SMB handler's two independent rules (spec
// §4.2.3): PSExec via admin-share touches, and brute-force via repeated
// authentication failures.
func (t *Tracker) HandleSMB(r *model.Record) []*Signal {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := pairKey(r.SourceHost, r.DestHost)
	entry, ok := t.pair[key]
	if !ok {
		entry = newPairActivityEntry()
		t.pair[key] = entry
	}

	var signals []*Signal

	if r.Action == "FILE_OPEN" && containsAny(r.Path, t.cfg.AdminShares) {
		entry.adminShares[r.Path] = struct{}{}
		if len(entry.adminShares) >= t.cfg.PSExecShareCount && !entry.psexecAlerted {
			entry.psexecAlerted = true
			signals = append(signals, &Signal{
				Kind:       model.KindPSExec,
				Severity:   model.SeverityCritical,
				SourceHost: r.SourceHost,
				DestHost:   r.DestHost,
				Targets:    setKeys(entry.adminShares),
			})
		}
	}

	if r.Status != "" && r.Status != "STATUS_SUCCESS" {
		entry.failedAuthCount++
		if entry.failedAuthCount >= t.cfg.SMBBruteforceThreshold && !entry.bruteforceAlerted {
			entry.bruteforceAlerted = true
			signals = append(signals, &Signal{
				Kind:       model.KindSMBBruteforce,
				Severity:   model.SeverityCritical,
				SourceHost: r.SourceHost,
				DestHost:   r.DestHost,
				FailCount:  entry.failedAuthCount,
			})
		}
	}

	return signals
}

// HandleDCERPC implements the DCE/RPC handler (spec §4.2.4): WMI-execution
// detection via distinct WMI-related RPC endpoints.
func (t *Tracker) HandleDCERPC(r *model.Record) *Signal {
	if !containsAny(r.Endpoint, t.cfg.WMIEndpoints) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := pairKey(r.SourceHost, r.DestHost)
	entry, ok := t.pair[key]
	if !ok {
		entry = newPairActivityEntry()
		t.pair[key] = entry
	}
	entry.wmiEndpoints[r.Endpoint] = struct{}{}

	if len(entry.wmiEndpoints) < t.cfg.WMIEndpointCount || entry.wmiAlerted {
		return nil
	}
	entry.wmiAlerted = true

	return &Signal{
		Kind:       model.KindWMIExecution,
		Severity:   model.SeverityCritical,
		SourceHost: r.SourceHost,
		DestHost:   r.DestHost,
		Endpoints:  setKeys(entry.wmiEndpoints),
	}
}

// HandleRDP implements the RDP handler (spec §4.2.5): RDP-hopping
// detection via distinct RDP targets from one source.
func (t *Tracker) HandleRDP(r *model.Record) *Signal {
	if r.Cookie == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.host[r.SourceHost]
	if !ok {
		entry = newHostActivityEntry()
		t.host[r.SourceHost] = entry
	}
	entry.rdpTargets[r.DestHost] = struct{}{}

	count := len(entry.rdpTargets)
	if count < t.cfg.RDPHoppingThreshold || entry.rdpAlerted {
		return nil
	}
	entry.rdpAlerted = true

	return &Signal{
		Kind:       model.KindRDPHopping,
		Severity:   model.SeverityHigh,
		SourceHost: r.SourceHost,
		Targets:    limitStrings(setKeys(entry.rdpTargets), t.cfg.RDPExampleSize),
	}
}

// AdminDestinations returns the set of distinct admin-interesting
// destinations recorded for source, used by the testable-properties suite
// to assert it is a subset of C3's graph successors for the same host.
func (t *Tracker) AdminDestinations(source string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.host[source]
	if !ok {
		return nil
	}
	return setKeys(entry.destHosts)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func truncatedHash(hash string) string {
	const visible = 16
	if len(hash) <= visible {
		return hash
	}
	return hash[:visible] + "..."
}
