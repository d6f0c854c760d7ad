// Package threatintel implements the threat-intelligence matcher (C6): a
// set of local IOC blacklists plus built-in known-tool signature tables
// (JA3 fingerprints, suspicious user agents, suspicious domain patterns,
// C2 port numbers), a TTL-bounded lookup cache, and the risk-score
// enrichment/gate spec §4.6 and §12 name. Grounded on
// original_source/analyzer/threat_intel.py's ThreatIntelligence class,
// whose built-in signature tables (Metasploit/Trickbot/Dridex/Cobalt
// Strike JA3 hashes, scanner/exploit-tool user agents, DGA-like domain
// regexes, backdoor port numbers) are carried over verbatim as this
// package's defaults.
package threatintel

import (
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/config"
)

// ToolSignature names a known malicious tool identified by TLS
// fingerprint.
type ToolSignature struct {
	Name     string
	Kind     string
	Severity string
}

// Enrichment is C6's per-event output (spec §4.6): the categories that
// matched plus the summed risk score.
type Enrichment struct {
	MatchedSourceIP bool
	MatchedDestIP   bool
	MatchedDomain   bool
	MatchedHash     bool
	MatchedJA3      *ToolSignature
	MatchedUA       string
	MatchedPort     string
	RiskScore       float64
}

// Event is the subset of a record C6 enriches against.
type Event struct {
	SourceIP  string
	DestIP    string
	Domain    string
	FileHash  string
	JA3       string
	UserAgent string
	DestPort  int
}

// cacheEntry memoizes one lookup result against the clock at which it was
// computed, so repeated lookups within CacheTTL skip recomputation (spec
// §3's "ML model artifact... absence disables C4" sibling note: the cache
// here guards repeated IOC membership tests, not network calls, since this
// package has no live feed on the hot path).
type cacheEntry struct {
	enrichment Enrichment
	computedAt time.Time
}

// shardCount is the number of lock stripes backing Matcher's lookup cache.
// Sized well above typical GOMAXPROCS so concurrent worker lanes rarely
// contend on the same stripe.
const shardCount = 32

type shard struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// Matcher is C6's IOC matcher: local blacklists, built-in signature
// tables, and a TTL-bounded lookup cache striped across shardCount locks.
type Matcher struct {
	cfg   config.ThreatIntelConfig
	clock clock.Clock

	mu               sync.RWMutex
	maliciousIPs     map[string]struct{}
	maliciousDomains map[string]struct{}
	maliciousHashes  map[string]struct{}

	ja3Signatures   map[string]ToolSignature
	userAgentTokens map[string]string
	domainPatterns  []*regexp.Regexp
	c2Ports         map[int]string

	shards [shardCount]*shard
}

// NewMatcher returns a Matcher seeded with the built-in signature tables
// and an empty IOC blacklist, using clk for cache-TTL bookkeeping.
func NewMatcher(cfg config.ThreatIntelConfig, clk clock.Clock) *Matcher {
	m := &Matcher{
		cfg:              cfg,
		clock:            clk,
		maliciousIPs:     make(map[string]struct{}),
		maliciousDomains: make(map[string]struct{}),
		maliciousHashes:  make(map[string]struct{}),
		ja3Signatures:    builtinJA3Signatures(),
		userAgentTokens:  builtinUserAgentTokens(),
		domainPatterns:   builtinDomainPatterns(),
		c2Ports:          builtinC2Ports(),
	}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]cacheEntry)}
	}
	return m
}

// AddIOC records value as a known-malicious indicator of kind ("ip",
// "domain", or "hash").
func (m *Matcher) AddIOC(kind, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case "ip":
		m.maliciousIPs[value] = struct{}{}
	case "domain":
		m.maliciousDomains[value] = struct{}{}
	case "hash":
		m.maliciousHashes[value] = struct{}{}
	}
}

func (m *Matcher) shardFor(key string) *shard {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return m.shards[h%shardCount]
}

// Enrich computes the risk-score enrichment for event, per spec §4.6's
// additive weights, using the TTL cache to skip recomputation for an
// identical event key seen within CacheTTL.
func (m *Matcher) Enrich(event Event) Enrichment {
	key := cacheKey(event)
	sh := m.shardFor(key)

	now := m.clock.Now()

	sh.mu.Lock()
	if entry, ok := sh.entries[key]; ok && now.Sub(entry.computedAt) < m.cfg.CacheTTL {
		sh.mu.Unlock()
		return entry.enrichment
	}
	sh.mu.Unlock()

	enrichment := m.compute(event)

	sh.mu.Lock()
	sh.entries[key] = cacheEntry{enrichment: enrichment, computedAt: now}
	sh.mu.Unlock()

	return enrichment
}

func cacheKey(e Event) string {
	return e.SourceIP + "\x00" + e.DestIP + "\x00" + e.Domain + "\x00" + e.FileHash + "\x00" + e.JA3 + "\x00" + e.UserAgent + "\x00" + strconv.Itoa(e.DestPort)
}

func (m *Matcher) compute(event Event) Enrichment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var e Enrichment

	if event.SourceIP != "" {
		if _, ok := m.maliciousIPs[event.SourceIP]; ok {
			e.MatchedSourceIP = true
			e.RiskScore += m.cfg.Weights.MaliciousSourceIP
		}
	}
	if event.DestIP != "" {
		if _, ok := m.maliciousIPs[event.DestIP]; ok {
			e.MatchedDestIP = true
			e.RiskScore += m.cfg.Weights.MaliciousDestIP
		}
	}
	if event.Domain != "" {
		if _, ok := m.maliciousDomains[event.Domain]; ok {
			e.MatchedDomain = true
			e.RiskScore += m.cfg.Weights.MaliciousDomain
		} else {
			for _, pattern := range m.domainPatterns {
				if pattern.MatchString(event.Domain) {
					e.MatchedDomain = true
					e.RiskScore += m.cfg.Weights.MaliciousDomain
					break
				}
			}
		}
	}
	if event.FileHash != "" {
		if _, ok := m.maliciousHashes[event.FileHash]; ok {
			e.MatchedHash = true
			e.RiskScore += m.cfg.Weights.MaliciousHash
		}
	}
	if event.JA3 != "" {
		if sig, ok := m.ja3Signatures[event.JA3]; ok {
			sigCopy := sig
			e.MatchedJA3 = &sigCopy
			e.RiskScore += m.cfg.Weights.KnownToolTLSFingerprint
		}
	}
	if event.UserAgent != "" {
		if category, matched := matchUserAgent(event.UserAgent, m.userAgentTokens); matched {
			e.MatchedUA = category
			e.RiskScore += m.cfg.Weights.SuspiciousUserAgent
		}
	}
	if event.DestPort != 0 {
		if sig, ok := m.c2Ports[event.DestPort]; ok {
			e.MatchedPort = sig
			e.RiskScore += m.cfg.Weights.SuspiciousPort
		}
	}

	return e
}

// Detect reports whether event crosses the threat-intel boolean gate
// (spec §12: risk_score > RiskScoreGate), the exact rule the pipeline
// treats as C6's contribution to the detection map.
func (m *Matcher) Detect(event Event) (bool, Enrichment) {
	e := m.Enrich(event)
	return e.RiskScore > m.cfg.RiskScoreGate, e
}
