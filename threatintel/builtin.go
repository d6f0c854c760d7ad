package threatintel

import (
	"regexp"
	"strings"
)

// builtinJA3Signatures is the fixed table of known-malicious TLS client
// fingerprints, carried over verbatim from
// original_source/analyzer/threat_intel.py's load_builtin_iocs.
func builtinJA3Signatures() map[string]ToolSignature {
	return map[string]ToolSignature{
		"a0e9f5d64349fb13191bc781f81f42e1": {Name: "Metasploit", Kind: "C2_Framework", Severity: "CRITICAL"},
		"6734f37431670b3ab4292b8f60f29984": {Name: "Trickbot", Kind: "Banking_Trojan", Severity: "CRITICAL"},
		"72a589da586844d7f0818ce684948eea": {Name: "Dridex", Kind: "Banking_Trojan", Severity: "CRITICAL"},
		"51c64c77e60f3980eea90869b68c58a8": {Name: "Cobalt Strike", Kind: "C2_Framework", Severity: "CRITICAL"},
	}
}

// builtinUserAgentTokens is the fixed table of user-agent substrings that
// flag automated tooling.
func builtinUserAgentTokens() map[string]string {
	return map[string]string{
		"python-requests": "Automated_Script",
		"curl":            "Command_Line_Tool",
		"metasploit":      "Exploitation_Framework",
		"nmap":            "Network_Scanner",
		"sqlmap":          "SQL_Injection_Tool",
		"masscan":         "Port_Scanner",
	}
}

// matchUserAgent reports the first token in tokens whose substring
// appears (case-insensitively) in ua.
func matchUserAgent(ua string, tokens map[string]string) (category string, matched bool) {
	lowered := strings.ToLower(ua)
	for token, cat := range tokens {
		if strings.Contains(lowered, strings.ToLower(token)) {
			return cat, true
		}
	}
	return "", false
}

// builtinDomainPatterns is the fixed table of DGA/suspicious-domain
// regular expressions.
func builtinDomainPatterns() []*regexp.Regexp {
	patterns := []string{
		`[a-z0-9]{20,}\.com$`,
		`[a-z0-9]{15,}\.(ru|cn|tk)$`,
		`.*-[0-9]{8,}\..*`,
		`.*\.(bit|onion)$`,
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// builtinC2Ports is the fixed table of well-known backdoor/C2 port
// numbers.
func builtinC2Ports() map[int]string {
	return map[int]string{
		4444:  "Metasploit_Default",
		5555:  "Common_Backdoor",
		6666:  "Common_Backdoor",
		7777:  "Common_Backdoor",
		8888:  "Common_Proxy",
		9999:  "Common_Backdoor",
		1337:  "Leet_Port",
		31337: "Back_Orifice",
	}
}
