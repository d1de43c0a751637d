package graph

import "github.com/tutu-network/cascade/internal/domain"

// WouldCreateCycle reports whether adding pred → succ would close a loop,
// i.e. whether pred is already reachable from succ over forward edges.
// Iterative DFS with a visited set: O(V+E), no recursion.
//
// AddEdge calls it for every edge added at runtime, and plan import adds
// its edges through AddEdge. Build trusts stored edges and skips it; the
// health checker audits those with a topological sort.
func WouldCreateCycle(g *Graph, pred, succ domain.TaskID) bool {
	if pred == succ {
		return true
	}
	visited := map[domain.TaskID]bool{succ: true}
	stack := []domain.TaskID{succ}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.forward[id] {
			next := e.SuccessorID
			if next == pred {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
