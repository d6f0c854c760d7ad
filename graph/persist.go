package graph

import (
	"encoding/json"
	"time"
)

// exportedEdge is the persisted-state wire shape for one edge (spec §6):
// source, target, protocol list, count, and ISO-8601 first-/last-seen.
type exportedEdge struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Protocols []string  `json:"protocols"`
	Count     int64     `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// exportedGraph is the persisted-state wire shape for the whole graph.
type exportedGraph struct {
	Timestamp time.Time      `json:"timestamp"`
	Nodes     []string       `json:"nodes"`
	Edges     []exportedEdge `json:"edges"`
}

// Export serializes the graph's current state to JSON, matching the
// persisted-state schema (spec §6). Grounded on the teacher's
// amalgamation pattern of writing a single snapshot document per run.
func (g *Graph) Export(at time.Time) ([]byte, error) {
	snap := g.Snapshot()

	doc := exportedGraph{
		Timestamp: at,
		Nodes:     snap.Nodes,
		Edges:     make([]exportedEdge, 0, len(snap.Edges)),
	}
	for _, e := range snap.Edges {
		doc.Edges = append(doc.Edges, exportedEdge{
			Source:    e.Source,
			Target:    e.Target,
			Protocols: e.ProtocolList(),
			Count:     e.Count,
			FirstSeen: e.FirstSeen,
			LastSeen:  e.LastSeen,
		})
	}

	return json.Marshal(doc)
}

// Import replaces the graph's contents with the state encoded in data,
// as produced by Export. Existing state is discarded.
func (g *Graph) Import(data []byte) error {
	var doc exportedGraph
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]struct{}, len(doc.Nodes))
	for _, n := range doc.Nodes {
		g.nodes[n] = struct{}{}
	}

	g.edges = make(map[string]*Edge, len(doc.Edges))
	for _, e := range doc.Edges {
		edge := &Edge{
			Source:    e.Source,
			Target:    e.Target,
			Count:     e.Count,
			Protocols: make(map[string]struct{}, len(e.Protocols)),
			FirstSeen: e.FirstSeen,
			LastSeen:  e.LastSeen,
		}
		for _, p := range e.Protocols {
			edge.Protocols[p] = struct{}{}
		}
		g.edges[edgeKey(e.Source, e.Target)] = edge
	}

	return nil
}
