package threatintel

import "encoding/json"

// exportedIOCs is the persisted-state wire shape for the locally-added IOC
// blacklists (spec §8's round-trip law). The built-in signature tables
// (JA3/user-agent/domain-pattern/port) are not persisted: they are
// compiled-in constants, not learned state.
type exportedIOCs struct {
	IPs     []string `json:"ips"`
	Domains []string `json:"domains"`
	Hashes  []string `json:"hashes"`
}

// Export serializes the matcher's locally-added IOC blacklists to JSON.
func (m *Matcher) Export() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc := exportedIOCs{
		IPs:     setKeys(m.maliciousIPs),
		Domains: setKeys(m.maliciousDomains),
		Hashes:  setKeys(m.maliciousHashes),
	}
	return json.Marshal(doc)
}

// Import replaces the matcher's locally-added IOC blacklists with the
// state encoded in data, as produced by Export. Built-in signature tables
// are untouched.
func (m *Matcher) Import(data []byte) error {
	var doc exportedIOCs
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.maliciousIPs = toSet(doc.IPs)
	m.maliciousDomains = toSet(doc.Domains)
	m.maliciousHashes = toSet(doc.Hashes)
	return nil
}

func setKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func toSet(values []string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}
