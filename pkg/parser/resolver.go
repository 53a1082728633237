// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import (
	"log/slog"
	"path"
	"strings"

	"github.com/kraklabs/repograph/pkg/graph"
)

// resolver turns per-file extraction results into a connected graph: it owns
// the name and qualified-name indexes and maps textual references to edges.
type resolver struct {
	logger *slog.Logger
	g      *graph.Graph
	byQual map[string][]string // "Recv.name" -> node ids
	byStem map[string][]string // file basename without extension -> file node ids
}

// resolve builds the program graph from extraction results. Unresolved
// references are dropped; references with multiple candidates fan out into
// one edge per candidate marked ambiguous, unless exactly one candidate
// shares the caller's file.
func resolve(results []*FileResult, logger *slog.Logger) *graph.Graph {
	r := &resolver{
		logger: logger,
		g:      graph.New(),
		byQual: make(map[string][]string),
		byStem: make(map[string][]string),
	}
	for _, res := range results {
		for _, d := range res.Decls {
			if err := r.g.AddNode(d.Node); err != nil {
				r.logger.Warn("parser.resolve.node_rejected", "id", d.Node.ID, "error", err)
				continue
			}
			if d.Qualname != "" {
				r.byQual[d.Qualname] = append(r.byQual[d.Qualname], d.Node.ID)
			}
			if d.Node.Kind == graph.KindFile {
				stem := strings.TrimSuffix(d.Node.Name, path.Ext(d.Node.Name))
				r.byStem[stem] = append(r.byStem[stem], d.Node.ID)
			}
		}
	}
	for _, res := range results {
		for _, c := range res.Calls {
			r.resolveCall(c)
		}
		for _, imp := range res.Imports {
			r.resolveImport(imp)
		}
	}
	return r.g
}

// resolveCall maps one call reference to call edges. Resolution order:
// unqualified name first, then receiver-qualified name.
func (r *resolver) resolveCall(c CallRef) {
	src := r.g.Node(c.SourceID)
	if src == nil {
		return
	}
	candidates := r.callables(r.g.NodesByName(c.Name))
	if len(candidates) == 0 && c.Qualifier != "" {
		candidates = r.callables(r.byQual[c.Qualifier+"."+c.Name])
	}
	switch len(candidates) {
	case 0:
		return
	case 1:
		// A unique match may be the caller itself: direct recursion is an
		// explicit self reference and keeps its edge.
		r.addEdge(graph.Edge{Source: c.SourceID, Target: candidates[0], Type: graph.EdgeCall})
		return
	}

	// Multi-candidate: drop the caller itself, then prefer a unique
	// same-file definition; otherwise fan out as ambiguous.
	var others []string
	for _, id := range candidates {
		if id != c.SourceID {
			others = append(others, id)
		}
	}
	if len(others) == 1 {
		r.addEdge(graph.Edge{Source: c.SourceID, Target: others[0], Type: graph.EdgeCall})
		return
	}
	var sameFile []string
	for _, id := range others {
		if n := r.g.Node(id); n != nil && n.File == src.File {
			sameFile = append(sameFile, id)
		}
	}
	if len(sameFile) == 1 {
		r.addEdge(graph.Edge{Source: c.SourceID, Target: sameFile[0], Type: graph.EdgeCall})
		return
	}
	for _, id := range others {
		r.addEdge(graph.Edge{Source: c.SourceID, Target: id, Type: graph.EdgeCall, Ambiguous: true})
	}
}

// resolveImport maps one import reference to import edges from the importing
// file node. Both symbol names and module stems are consulted.
func (r *resolver) resolveImport(imp ImportRef) {
	seen := make(map[string]struct{})
	var candidates []string
	for _, id := range r.g.NodesByName(imp.Name) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			candidates = append(candidates, id)
		}
	}
	for _, id := range r.byStem[imp.Name] {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			candidates = append(candidates, id)
		}
	}
	var targets []string
	for _, id := range candidates {
		if id != imp.FileID {
			targets = append(targets, id)
		}
	}
	switch len(targets) {
	case 0:
	case 1:
		r.addEdge(graph.Edge{Source: imp.FileID, Target: targets[0], Type: graph.EdgeImport})
	default:
		for _, id := range targets {
			r.addEdge(graph.Edge{Source: imp.FileID, Target: id, Type: graph.EdgeImport, Ambiguous: true})
		}
	}
}

// callables filters candidate ids to function and class nodes.
func (r *resolver) callables(ids []string) []string {
	var out []string
	for _, id := range ids {
		if n := r.g.Node(id); n != nil && (n.Kind == graph.KindFunction || n.Kind == graph.KindClass) {
			out = append(out, id)
		}
	}
	return out
}

func (r *resolver) addEdge(e graph.Edge) {
	if err := r.g.AddEdge(e); err != nil {
		r.logger.Warn("parser.resolve.edge_rejected", "source", e.Source, "target", e.Target, "error", err)
	}
}
