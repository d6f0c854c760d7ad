// Package util holds small helpers shared across the detection pipeline:
// RFC-1918 membership checks and an afero-backed file-read helper.
package util

import (
	"encoding/json"
	"fmt"
	"net"
)

// Subnet wraps net.IPNet so it can be unmarshalled directly from a config
// file entry such as "10.0.0.0/8" or a bare IP address.
type Subnet struct {
	*net.IPNet
}

// UnmarshalJSON parses a CIDR or bare-IP string into a Subnet.
func (s *Subnet) UnmarshalJSON(bytes []byte) error {
	var raw string
	if err := json.Unmarshal(bytes, &raw); err != nil {
		return err
	}
	subnet, err := ParseSubnet(raw)
	if err != nil {
		return err
	}
	*s = subnet
	return nil
}

// MarshalJSON renders the Subnet back to CIDR notation.
func (s Subnet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseSubnet parses a CIDR range or a single IP address (treated as a /32
// or /128) into a Subnet.
func ParseSubnet(raw string) (Subnet, error) {
	if _, block, err := net.ParseCIDR(raw); err == nil {
		return Subnet{block}, nil
	}

	ip := net.ParseIP(raw)
	if ip == nil {
		return Subnet{}, fmt.Errorf("invalid subnet or IP address: %q", raw)
	}

	mask := net.CIDRMask(32, 32)
	if ip.To4() == nil {
		mask = net.CIDRMask(128, 128)
	}
	return Subnet{&net.IPNet{IP: ip, Mask: mask}}, nil
}

// ParseSubnets parses a list of CIDR ranges or bare IP addresses.
func ParseSubnets(raw []string) ([]Subnet, error) {
	subnets := make([]Subnet, 0, len(raw))
	for _, entry := range raw {
		subnet, err := ParseSubnet(entry)
		if err != nil {
			return nil, err
		}
		subnets = append(subnets, subnet)
	}
	return subnets, nil
}

// ContainsIP reports whether any subnet in the list contains ip.
func ContainsIP(subnets []Subnet, ip net.IP) bool {
	for _, block := range subnets {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// rfc1918Blocks are the three private IPv4 ranges named explicitly in
// spec.md §6 ("Private-address discrimination"). IPv6 unique-local and
// loopback/link-local ranges are deliberately excluded: the spec scopes
// "internal" to RFC-1918 only.
var rfc1918Blocks = mustParseSubnets([]string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
})

func mustParseSubnets(raw []string) []Subnet {
	subnets, err := ParseSubnets(raw)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in RFC-1918 subnet table: %v", err))
	}
	return subnets
}

// IsPrivate reports whether ip falls within one of the RFC-1918 ranges.
// Non-IPv4 addresses are never private under this spec's definition.
func IsPrivate(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return ContainsIP(rfc1918Blocks, v4)
}

// IsPrivateHost parses host and reports whether it is an RFC-1918 address.
// An unparseable host is never private.
func IsPrivateHost(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return IsPrivate(ip)
}
