package graph

import (
	"sort"

	"github.com/lateralwatch/engine/model"
	"github.com/lateralwatch/engine/util"
)

// Finding is one structural anomaly surfaced by an analysis (spec §4.3).
type Finding struct {
	Kind     model.DetectionKind
	Severity model.Severity
	Host     string
	Score    float64
	Detail   string
}

// AnomalousFanout emits ABNORMAL_FANOUT for every node whose out-degree
// exceeds threshold.
func (s *Snapshot) AnomalousFanout(threshold int) []Finding {
	var findings []Finding
	for _, host := range s.Nodes {
		outDegree := s.OutDegree(host)
		if outDegree <= threshold {
			continue
		}
		severity := model.SeverityMedium
		if outDegree > 2*threshold {
			severity = model.SeverityHigh
		}
		score := float64(outDegree) / float64(threshold)
		if score > 1.0 {
			score = 1.0
		}
		findings = append(findings, Finding{
			Kind: model.KindAbnormalFanout, Severity: severity, Host: host, Score: score,
		})
	}
	return findings
}

// chainEdge is one hop in a multi-hop chain, paired with its traversed edge
// for scoring.
type chainEdge struct {
	host string
	edge Edge
}

// MultiHopChains enumerates the shortest-path tree rooted at each node up
// to cutoff hops (BFS), and classifies every discovered path of length >=
// minHops.
func (s *Snapshot) MultiHopChains(cutoff, minHops int, smbRDPProtocols map[string]struct{}) []Finding {
	var findings []Finding
	for _, root := range s.Nodes {
		paths := s.shortestPathTree(root, cutoff)
		for _, path := range paths {
			if len(path) < minHops {
				continue
			}
			findings = append(findings, classifyChain(path, smbRDPProtocols))
		}
	}
	return findings
}

// shortestPathTree runs BFS from root up to cutoff hops and returns, for
// every node reached, the sequence of edges on its shortest path from root.
func (s *Snapshot) shortestPathTree(root string, cutoff int) [][]chainEdge {
	type frontierEntry struct {
		host string
		path []chainEdge
	}

	visited := map[string]bool{root: true}
	queue := []frontierEntry{{host: root}}
	var results [][]chainEdge

	for len(queue) > 0 && len(queue[0].path) < cutoff {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range s.Successors(current.host) {
			if visited[edge.Target] {
				continue
			}
			visited[edge.Target] = true
			path := append(append([]chainEdge{}, current.path...), chainEdge{host: edge.Target, edge: edge})
			results = append(results, path)
			queue = append(queue, frontierEntry{host: edge.Target, path: path})
		}
	}
	return results
}

func classifyChain(path []chainEdge, smbRDPProtocols map[string]struct{}) Finding {
	score := 10.0 * float64(len(path))
	internalInteriorCount := 0

	for i, hop := range path {
		if hop.edge.Count == 1 {
			score += 5
		}
		for proto := range hop.edge.Protocols {
			if _, ok := smbRDPProtocols[proto]; ok {
				score += 10
				break
			}
		}
		// interior nodes exclude the final hop's destination (the chain's end)
		if i < len(path)-1 && util.IsPrivateHost(hop.host) {
			internalInteriorCount++
		}
	}

	severity := model.SeverityLow
	abnormal := internalInteriorCount >= 2
	if abnormal {
		severity = model.SeverityHigh
	}

	return Finding{
		Kind:     model.KindMultiHopChain,
		Severity: severity,
		Host:     path[len(path)-1].host,
		Score:    score,
		Detail:   chainDescription(path, abnormal),
	}
}

func chainDescription(path []chainEdge, abnormal bool) string {
	if abnormal {
		return "abnormal multi-hop chain through internal hosts"
	}
	return "multi-hop chain"
}

// RareCommunications emits RARE_COMMUNICATION for every edge not present in
// normalPaths whose rarity exceeds threshold.
func (s *Snapshot) RareCommunications(threshold float64, normalPaths map[string]struct{}) []Finding {
	total := len(s.Edges)
	if total == 0 {
		return nil
	}

	var findings []Finding
	for _, edge := range s.Edges {
		if _, allowed := normalPaths[edgeKey(edge.Source, edge.Target)]; allowed {
			continue
		}
		rarity := 1.0 - float64(edge.Count)/float64(total)
		if rarity <= threshold {
			continue
		}
		findings = append(findings, Finding{
			Kind:     model.KindRareComm,
			Severity: model.SeverityMedium,
			Host:     edge.Source,
			Score:    rarity,
			Detail:   edge.Target,
		})
	}
	return findings
}

// PivotPoints emits PIVOT_POINT for every node with in-degree >= 1,
// out-degree >= minOutDegree, and betweenness centrality exceeding
// threshold.
func (s *Snapshot) PivotPoints(threshold float64, minOutDegree int) []Finding {
	betweenness := s.Betweenness()

	var findings []Finding
	for _, host := range s.Nodes {
		if s.InDegree(host) < 1 || s.OutDegree(host) < minOutDegree {
			continue
		}
		score := betweenness[host]
		if score <= threshold {
			continue
		}
		severity := model.SeverityHigh
		if s.OutDegree(host) > 5 {
			severity = model.SeverityCritical
		}
		findings = append(findings, Finding{
			Kind: model.KindPivotPoint, Severity: severity, Host: host, Score: score,
		})
	}
	return findings
}

// CircularPaths emits CIRCULAR_PATH for every simple cycle of length >= 3,
// capped at maxLength hops and maxResults total findings. truncated reports
// whether the cap was hit.
func (s *Snapshot) CircularPaths(maxLength, maxResults int) (findings []Finding, truncated bool) {
	cycles, truncated := s.simpleCycles(maxLength, maxResults)
	for _, cycle := range cycles {
		if len(cycle) < 3 {
			continue
		}
		findings = append(findings, Finding{
			Kind:     model.KindCircularPath,
			Severity: model.SeverityMedium,
			Host:     cycle[0],
			Score:    5.0 * float64(len(cycle)),
			Detail:   cycleDetail(cycle),
		})
	}
	return findings, truncated
}

func cycleDetail(cycle []string) string {
	out := ""
	for i, h := range cycle {
		if i > 0 {
			out += "->"
		}
		out += h
	}
	return out
}

// AttackPathSummary reports, for attacker, its direct successors, the
// count and max depth of its transitive descendants, the union of
// protocols on its adjacent edges, and the subset of those descendants that
// are also flagged pivot points (spec §12 supplement: the original's
// get_attack_path_summary left pivot_hosts permanently empty; this
// completes it since the pivot-point analysis already has the data).
type AttackPathSummary struct {
	Attacker         string
	DirectSuccessors []string
	DescendantCount  int
	MaxDepth         int
	Protocols        []string
	PivotHosts       []string
}

func (s *Snapshot) AttackPathSummary(attacker string, pivotThreshold float64, pivotMinOutDegree int) AttackPathSummary {
	direct := s.Successors(attacker)
	directHosts := make([]string, 0, len(direct))
	protocolSet := make(map[string]struct{})
	for _, e := range direct {
		directHosts = append(directHosts, e.Target)
		for p := range e.Protocols {
			protocolSet[p] = struct{}{}
		}
	}
	for _, e := range s.Predecessors(attacker) {
		for p := range e.Protocols {
			protocolSet[p] = struct{}{}
		}
	}
	sort.Strings(directHosts)

	descendants, maxDepth := s.descendants(attacker)

	pivots := s.PivotPoints(pivotThreshold, pivotMinOutDegree)
	pivotSet := make(map[string]struct{}, len(pivots))
	for _, p := range pivots {
		pivotSet[p.Host] = struct{}{}
	}

	var pivotHosts []string
	for d := range descendants {
		if _, ok := pivotSet[d]; ok {
			pivotHosts = append(pivotHosts, d)
		}
	}
	sort.Strings(pivotHosts)

	protocols := make([]string, 0, len(protocolSet))
	for p := range protocolSet {
		protocols = append(protocols, p)
	}
	sort.Strings(protocols)

	return AttackPathSummary{
		Attacker:         attacker,
		DirectSuccessors: directHosts,
		DescendantCount:  len(descendants),
		MaxDepth:         maxDepth,
		Protocols:        protocols,
		PivotHosts:       pivotHosts,
	}
}

// descendants returns the set of every node transitively reachable from
// root (excluding root itself) and the maximum shortest-path depth to any
// of them.
func (s *Snapshot) descendants(root string) (map[string]struct{}, int) {
	visited := map[string]struct{}{root: {}}
	frontier := []string{root}
	depth := 0
	maxDepth := 0
	descendants := make(map[string]struct{})

	for len(frontier) > 0 {
		var next []string
		for _, host := range frontier {
			for _, e := range s.Successors(host) {
				if _, seen := visited[e.Target]; seen {
					continue
				}
				visited[e.Target] = struct{}{}
				descendants[e.Target] = struct{}{}
				next = append(next, e.Target)
			}
		}
		if len(next) > 0 {
			depth++
			maxDepth = depth
		}
		frontier = next
	}

	return descendants, maxDepth
}
