// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graph

import "sort"

func sortStrings(s []string) { sort.Strings(s) }

// Path is a resolved answer path: node ids in order plus the edges between
// consecutive ids, reported with their original direction.
type Path struct {
	Nodes []string
	Edges []Edge
}

// ShortestPath finds the minimum-hop path over the undirected projection of
// the graph connecting any source to any sink. Pairs where source == sink
// are skipped. Ties are broken by (1) smallest total hops, (2) lexicographic
// node-id sequence. Returns nil when no distinct pair is connected.
func (g *Graph) ShortestPath(sources, sinks []string) *Path {
	srcs := g.presentSorted(sources)
	snks := g.presentSorted(sinks)
	if len(srcs) == 0 || len(snks) == 0 {
		return nil
	}

	var best []string
	for _, src := range srcs {
		distS := g.bfs(src)
		for _, snk := range snks {
			if snk == src {
				continue
			}
			hops, ok := distS[snk]
			if !ok {
				continue
			}
			if best != nil && hops > len(best)-1 {
				continue
			}
			path := g.lexSmallestPath(src, snk, distS, hops)
			if path == nil {
				continue
			}
			if best == nil || len(path) < len(best) || (len(path) == len(best) && lessSeq(path, best)) {
				best = path
			}
		}
	}
	if best == nil {
		return nil
	}
	return g.pathWithEdges(best)
}

// presentSorted filters ids to those in the graph and sorts them, so the
// pair iteration order (and with it tie-breaking) is deterministic.
func (g *Graph) presentSorted(ids []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if g.HasNode(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// bfs returns hop distances from start over the undirected projection.
func (g *Graph) bfs(start string) map[string]int {
	dist := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.undirectedNeighbors(cur) {
			if _, visited := dist[next]; !visited {
				dist[next] = dist[cur] + 1
				queue = append(queue, next)
			}
		}
	}
	return dist
}

// lexSmallestPath reconstructs the lexicographically smallest shortest path
// from src to snk. It walks forward greedily: at hop i it takes the smallest
// neighbor that is at distance i from the source and can still reach the
// sink within the remaining hops.
func (g *Graph) lexSmallestPath(src, snk string, distS map[string]int, hops int) []string {
	distT := g.bfs(snk)
	if d, ok := distT[src]; !ok || d != hops {
		return nil
	}
	path := make([]string, 0, hops+1)
	path = append(path, src)
	cur := src
	for i := 1; i <= hops; i++ {
		advanced := false
		for _, next := range g.undirectedNeighbors(cur) { // sorted lexicographically
			if distS[next] == i && distT[next] == hops-i {
				path = append(path, next)
				cur = next
				advanced = true
				break
			}
		}
		if !advanced {
			return nil
		}
	}
	return path
}

// lessSeq reports whether a is lexicographically smaller than b as an id
// sequence. Both must have equal length.
func lessSeq(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// pathWithEdges pairs consecutive path nodes with their connecting edges,
// preserving each edge's original direction.
func (g *Graph) pathWithEdges(ids []string) *Path {
	p := &Path{Nodes: ids}
	for i := 0; i+1 < len(ids); i++ {
		if e, ok := g.EdgeBetween(ids[i], ids[i+1]); ok {
			p.Edges = append(p.Edges, e)
		}
	}
	return p
}
