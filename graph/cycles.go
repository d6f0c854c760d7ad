package graph

import "sort"

// simpleCycles enumerates simple cycles via bounded DFS from each node,
// capped at maxLength hops and maxResults total cycles found. truncated
// reports whether the cap was hit before exhausting the search, so callers
// can report the truncation explicitly rather than silently under-report.
//
// This is a depth-bounded variant of Johnson's algorithm's DFS step rather
// than the full algorithm: for this spec's scale (single-pipeline internal
// host graphs capped well below the size where Johnson's blocking
// optimization matters) a plain bounded DFS with a capped result budget
// is the simpler-and-sufficient choice.
func (s *Snapshot) simpleCycles(maxLength, maxResults int) (cycles [][]string, truncated bool) {
	sortedNodes := append([]string{}, s.Nodes...)
	sort.Strings(sortedNodes)

	seen := make(map[string]bool)

	for _, root := range sortedNodes {
		if len(cycles) >= maxResults {
			truncated = true
			break
		}

		path := []string{root}
		onPath := map[string]bool{root: true}

		var dfs func(current string) bool // returns true if caller should stop (cap hit)
		dfs = func(current string) bool {
			for _, edge := range s.Successors(current) {
				next := edge.Target
				if next == root && len(path) >= 3 {
					cycle := append([]string{}, path...)
					key := canonicalCycleKey(cycle)
					if !seen[key] {
						seen[key] = true
						cycles = append(cycles, cycle)
						if len(cycles) >= maxResults {
							return true
						}
					}
					continue
				}
				if onPath[next] || len(path) >= maxLength {
					continue
				}
				path = append(path, next)
				onPath[next] = true
				stop := dfs(next)
				onPath[next] = false
				path = path[:len(path)-1]
				if stop {
					return true
				}
			}
			return false
		}

		if dfs(root) {
			truncated = true
			break
		}
	}

	return cycles, truncated
}

// canonicalCycleKey rotates a cycle to start at its lexicographically
// smallest node so the same cycle discovered from different starting
// points dedupes to one entry.
func canonicalCycleKey(cycle []string) string {
	minIdx := 0
	for i, h := range cycle {
		if h < cycle[minIdx] {
			minIdx = i
		}
	}
	key := ""
	for i := 0; i < len(cycle); i++ {
		key += cycle[(minIdx+i)%len(cycle)] + "\x00"
	}
	return key
}
