// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import "github.com/kraklabs/repograph/pkg/graph"

// Annotate computes the derived per-node metrics in place: loc from the line
// span, call fan-in and fan-out from the edge list, and a floor of 1 for both
// loc and cyclomatic complexity (extraction leaves them below the floor when
// the body could not be analyzed or the file is empty).
func Annotate(g *graph.Graph) {
	for _, n := range g.Nodes() {
		n.LOC = n.EndLine - n.StartLine + 1
		if n.LOC < 1 {
			n.LOC = 1
		}
		if n.Cyclomatic < 1 {
			n.Cyclomatic = 1
		}
		n.NumCallsIn = 0
		n.NumCallsOut = 0
	}
	for _, e := range g.Edges() {
		if e.Type != graph.EdgeCall {
			continue
		}
		if src := g.Node(e.Source); src != nil {
			src.NumCallsOut++
		}
		if dst := g.Node(e.Target); dst != nil {
			dst.NumCallsIn++
		}
	}
}
