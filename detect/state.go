package detect

import "time"

// hostActivityEntry is the host-activity entry from spec §3, keyed by
// source host. Set cardinalities are monotonically non-decreasing within a
// session; Reset is the only operation that clears them.
type hostActivityEntry struct {
	destHosts     map[string]struct{}
	ports         map[int]struct{}
	rdpTargets    map[string]struct{}
	lastSeen      time.Time
	scanAlerted   bool
	rdpAlerted    bool
}

func newHostActivityEntry() *hostActivityEntry {
	return &hostActivityEntry{
		destHosts:  make(map[string]struct{}),
		ports:      make(map[int]struct{}),
		rdpTargets: make(map[string]struct{}),
	}
}

// pairActivityEntry is the pair-activity entry from spec §3, keyed by
// source->destination.
type pairActivityEntry struct {
	adminShares       map[string]struct{}
	wmiEndpoints      map[string]struct{}
	failedAuthCount   int
	psexecAlerted     bool
	bruteforceAlerted bool
	wmiAlerted        bool
}

func newPairActivityEntry() *pairActivityEntry {
	return &pairActivityEntry{
		adminShares:  make(map[string]struct{}),
		wmiEndpoints: make(map[string]struct{}),
	}
}

// ntlmHashEntry is the NTLM-hash entry from spec §3, keyed by response hash.
type ntlmHashEntry struct {
	hosts       map[string]struct{}
	pthAlerted  bool
}

func newNTLMHashEntry() *ntlmHashEntry {
	return &ntlmHashEntry{hosts: make(map[string]struct{})}
}

func pairKey(source, dest string) string {
	return source + "->" + dest
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}

func intSetValues(set map[int]struct{}) []int {
	values := make([]int, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	return values
}

func limitStrings(values []string, limit int) []string {
	if len(values) <= limit {
		return values
	}
	return values[:limit]
}
