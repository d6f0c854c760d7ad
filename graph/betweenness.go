package graph

// Betweenness computes normalized betweenness centrality for every node in
// the snapshot using Brandes' algorithm, treating the graph as unweighted
// and directed. Cost is O(V*E), matching the budget spec §9 sets for this
// analysis. Grounded on original_source/graph_analyzer.py's use of
// networkx.betweenness_centrality, reimplemented by hand since no graph
// library appears anywhere in the example pack.
func (s *Snapshot) Betweenness() map[string]float64 {
	centrality := make(map[string]float64, len(s.Nodes))
	for _, n := range s.Nodes {
		centrality[n] = 0
	}

	n := len(s.Nodes)
	if n < 3 {
		return centrality
	}

	for _, source := range s.Nodes {
		stack, predecessors, sigma, dist := s.brandesBFS(source)

		delta := make(map[string]float64, len(s.Nodes))
		for _, v := range s.Nodes {
			delta[v] = 0
		}

		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range predecessors[w] {
				if sigma[w] == 0 {
					continue
				}
				delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
			}
			if w != source {
				centrality[w] += delta[w]
			}
		}

		_ = dist
	}

	// normalize for a directed graph: divide by (n-1)(n-2)
	norm := float64((n - 1) * (n - 2))
	if norm > 0 {
		for k := range centrality {
			centrality[k] /= norm
		}
	}

	return centrality
}

// brandesBFS runs one single-source shortest-path accumulation pass of
// Brandes' algorithm from source, returning the visitation order, the
// predecessor lists on shortest paths, the path-count (sigma), and the
// distance map.
func (s *Snapshot) brandesBFS(source string) (stack []string, predecessors map[string][]string, sigma map[string]float64, dist map[string]int) {
	predecessors = make(map[string][]string, len(s.Nodes))
	sigma = make(map[string]float64, len(s.Nodes))
	dist = make(map[string]int, len(s.Nodes))

	for _, v := range s.Nodes {
		sigma[v] = 0
		dist[v] = -1
	}
	sigma[source] = 1
	dist[source] = 0

	queue := []string{source}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		stack = append(stack, v)

		for _, edge := range s.Successors(v) {
			w := edge.Target
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				predecessors[w] = append(predecessors[w], v)
			}
		}
	}

	return stack, predecessors, sigma, dist
}
