// Package graph implements the communication-graph analyzer (C3): a
// directed graph of host-to-host flows with five structural analyses and
// an attack-path summary. Grounded on original_source/graph_analyzer.py
// (networkx-based) reimplemented without a graph library — none appears
// anywhere in the example pack — and structured around the teacher's
// single-writer/multi-reader separation (database/tables.go) per spec §9's
// "immutable-snapshot" design note: writes serialize through AddConnection,
// analyses operate on a Snapshot copied out under a brief read lock.
package graph

import (
	"sort"
	"sync"
	"time"
)

// Edge is one aggregated host-to-host flow (spec §3): count, the union of
// protocols observed, and first-/last-seen timestamps. An edge exists iff
// count >= 1.
type Edge struct {
	Source    string
	Target    string
	Count     int64
	Protocols map[string]struct{}
	FirstSeen time.Time
	LastSeen  time.Time
}

// ProtocolList returns the edge's protocol set as a sorted slice.
func (e *Edge) ProtocolList() []string {
	out := make([]string, 0, len(e.Protocols))
	for p := range e.Protocols {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Graph is the mutable, concurrency-safe communication graph. All writes
// serialize through AddConnection; analyses never touch Graph directly —
// they take a Snapshot.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]struct{}
	edges map[string]*Edge // keyed by source+"\x00"+target
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		edges: make(map[string]*Edge),
	}
}

func edgeKey(source, target string) string {
	return source + "\x00" + target
}

// EdgeKey is the exported form of edgeKey, for callers building the
// normalPaths allowlist RareCommunications expects.
func EdgeKey(source, target string) string {
	return edgeKey(source, target)
}

// AddConnection merges one observed flow into the graph: it creates the
// edge on first observation (setting first-seen), and otherwise increments
// count, adds the protocol, and advances last-seen.
func (g *Graph) AddConnection(source, target, protocol string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes[source] = struct{}{}
	g.nodes[target] = struct{}{}

	key := edgeKey(source, target)
	edge, ok := g.edges[key]
	if !ok {
		edge = &Edge{
			Source:    source,
			Target:    target,
			Protocols: make(map[string]struct{}),
			FirstSeen: at,
			LastSeen:  at,
		}
		g.edges[key] = edge
	}

	edge.Count++
	if protocol != "" {
		edge.Protocols[protocol] = struct{}{}
	}
	if at.After(edge.LastSeen) {
		edge.LastSeen = at
	}
}

// NodeCount returns the number of distinct hosts currently in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Snapshot is an immutable, point-in-time copy of the graph's nodes and
// edges. Every analysis takes one of these instead of reading Graph
// directly, so long-running analyses never block writers and never observe
// a half-mutated edge.
type Snapshot struct {
	Nodes []string
	Edges []Edge

	successors   map[string][]Edge
	predecessors map[string][]Edge
}

// Snapshot copies the current node and edge sets under a brief read lock.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &Snapshot{
		Nodes:        make([]string, 0, len(g.nodes)),
		Edges:        make([]Edge, 0, len(g.edges)),
		successors:   make(map[string][]Edge),
		predecessors: make(map[string][]Edge),
	}
	for n := range g.nodes {
		snap.Nodes = append(snap.Nodes, n)
	}
	sort.Strings(snap.Nodes)

	for _, e := range g.edges {
		cp := Edge{
			Source:    e.Source,
			Target:    e.Target,
			Count:     e.Count,
			Protocols: make(map[string]struct{}, len(e.Protocols)),
			FirstSeen: e.FirstSeen,
			LastSeen:  e.LastSeen,
		}
		for p := range e.Protocols {
			cp.Protocols[p] = struct{}{}
		}
		snap.Edges = append(snap.Edges, cp)
		snap.successors[cp.Source] = append(snap.successors[cp.Source], cp)
		snap.predecessors[cp.Target] = append(snap.predecessors[cp.Target], cp)
	}

	return snap
}

// OutDegree returns the number of distinct successor nodes of host.
func (s *Snapshot) OutDegree(host string) int {
	return len(s.successors[host])
}

// InDegree returns the number of distinct predecessor nodes of host.
func (s *Snapshot) InDegree(host string) int {
	return len(s.predecessors[host])
}

// Successors returns host's outgoing edges.
func (s *Snapshot) Successors(host string) []Edge {
	return s.successors[host]
}

// Predecessors returns host's incoming edges.
func (s *Snapshot) Predecessors(host string) []Edge {
	return s.predecessors[host]
}

