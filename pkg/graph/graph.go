// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package graph holds the typed program graph extracted from a repository.
//
// Nodes are top-level program units (functions, classes, files); edges are
// directed call/import relations between them. The graph is built once by the
// parser, annotated in place, and immutable afterwards. The on-disk JSON
// (graph.json) is the authoritative handoff to external consumers.
package graph

import (
	"encoding/json"
	"fmt"
)

// Node kinds.
const (
	KindFunction = "function"
	KindClass    = "class"
	KindFile     = "file"
)

// Edge types.
const (
	EdgeCall   = "call"
	EdgeImport = "import"
)

// Node represents a top-level program unit.
//
// The canonical id is "<kind>:<qualname>:<relpath>:<start_line>" and is
// unique within a repository snapshot. Label always equals Name and exists
// for downstream consumers that key on it.
type Node struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Code      string `json:"code"`
	Doc       string `json:"doc"`
	Language  string `json:"language"`

	// Derived metrics, set once by the annotator.
	LOC         int `json:"loc"`
	Cyclomatic  int `json:"cyclomatic"`
	NumCallsIn  int `json:"num_calls_in"`
	NumCallsOut int `json:"num_calls_out"`
}

// NodeID builds the canonical node identifier.
func NodeID(kind, qualname, relpath string, startLine int) string {
	return fmt.Sprintf("%s:%s:%s:%d", kind, qualname, relpath, startLine)
}

// Edge is a directed relation between two node ids.
//
// Ambiguous marks edges whose textual call/import reference mapped to more
// than one candidate node.
type Edge struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Type      string `json:"type"`
	Ambiguous bool   `json:"ambiguous"`
}

// edgeJSON tolerates the legacy {from,to} key shape on read. New artifacts
// always use {source,target}.
type edgeJSON struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	From      string `json:"from"`
	To        string `json:"to"`
	Type      string `json:"type"`
	Ambiguous bool   `json:"ambiguous"`
}

// UnmarshalJSON converts legacy edge keys to the canonical shape.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var raw edgeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Source = raw.Source
	if e.Source == "" {
		e.Source = raw.From
	}
	e.Target = raw.Target
	if e.Target == "" {
		e.Target = raw.To
	}
	e.Type = raw.Type
	if e.Type == "" {
		e.Type = EdgeCall
	}
	e.Ambiguous = raw.Ambiguous
	return nil
}

// Metadata describes a serialized graph.
type Metadata struct {
	NodeCount     int    `json:"node_count"`
	EdgeCount     int    `json:"edge_count"`
	GeneratedBy   string `json:"generated_by"`
	SchemaVersion string `json:"schema_version"`
}

// SchemaVersion of the graph.json format produced by this package.
const SchemaVersion = "1.0"

// GeneratedBy identifies the producer in graph.json metadata.
const GeneratedBy = "repograph parser"

// Graph is the in-memory program graph: node storage keyed by id plus
// parallel successor/predecessor index lists. Node records never hold
// in-language pointers to each other; all references go through ids.
type Graph struct {
	nodes   []*Node
	edges   []Edge
	byID    map[string]*Node
	byName  map[string][]string // name -> node ids, insertion order
	succ    map[string][]int    // node id -> indices into edges (outgoing)
	pred    map[string][]int    // node id -> indices into edges (incoming)
	edgeSet map[string]struct{} // dedup key source|target|type
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		byID:    make(map[string]*Node),
		byName:  make(map[string][]string),
		succ:    make(map[string][]int),
		pred:    make(map[string][]int),
		edgeSet: make(map[string]struct{}),
	}
}

// AddNode inserts a node. Duplicate ids are rejected.
func (g *Graph) AddNode(n *Node) error {
	if n.ID == "" {
		return fmt.Errorf("node has empty id")
	}
	if _, exists := g.byID[n.ID]; exists {
		return fmt.Errorf("duplicate node id %q", n.ID)
	}
	if n.Label == "" {
		n.Label = n.Name
	}
	g.nodes = append(g.nodes, n)
	g.byID[n.ID] = n
	g.byName[n.Name] = append(g.byName[n.Name], n.ID)
	return nil
}

// AddEdge inserts an edge. Both endpoints must resolve to existing nodes;
// duplicate (source, target, type) triples are collapsed silently.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.byID[e.Source]; !ok {
		return fmt.Errorf("edge source %q not in graph", e.Source)
	}
	if _, ok := g.byID[e.Target]; !ok {
		return fmt.Errorf("edge target %q not in graph", e.Target)
	}
	key := e.Source + "|" + e.Target + "|" + e.Type
	if _, dup := g.edgeSet[key]; dup {
		return nil
	}
	g.edgeSet[key] = struct{}{}
	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.succ[e.Source] = append(g.succ[e.Source], idx)
	g.pred[e.Target] = append(g.pred[e.Target], idx)
	return nil
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.byID[id]
}

// HasNode reports whether id exists in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.byID[id]
	return ok
}

// Nodes returns all nodes in insertion order. The slice is shared; callers
// must not mutate it.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// NodesByName returns the ids of all nodes sharing the given name, in
// insertion order. This is the resolver's secondary index.
func (g *Graph) NodesByName(name string) []string {
	return g.byName[name]
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Direction selects which neighbors to enumerate.
type Direction string

const (
	DirIn   Direction = "in"
	DirOut  Direction = "out"
	DirBoth Direction = "both"
)

// Neighbors returns adjacent node ids in edge-insertion order, for
// deterministic output. For DirBoth, outgoing neighbors precede incoming
// ones and duplicates are removed.
func (g *Graph) Neighbors(id string, dir Direction) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(nid string) {
		if _, dup := seen[nid]; !dup {
			seen[nid] = struct{}{}
			out = append(out, nid)
		}
	}
	if dir == DirOut || dir == DirBoth {
		for _, idx := range g.succ[id] {
			add(g.edges[idx].Target)
		}
	}
	if dir == DirIn || dir == DirBoth {
		for _, idx := range g.pred[id] {
			add(g.edges[idx].Source)
		}
	}
	return out
}

// EdgeBetween returns the first edge connecting a and b, honoring the
// original direction: a->b is preferred, b->a is consulted second. The
// boolean reports whether any such edge exists.
func (g *Graph) EdgeBetween(a, b string) (Edge, bool) {
	for _, idx := range g.succ[a] {
		if g.edges[idx].Target == b {
			return g.edges[idx], true
		}
	}
	for _, idx := range g.succ[b] {
		if g.edges[idx].Target == a {
			return g.edges[idx], true
		}
	}
	return Edge{}, false
}

// undirectedNeighbors enumerates neighbors ignoring edge direction, sorted
// lexicographically for deterministic path-finding.
func (g *Graph) undirectedNeighbors(id string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, idx := range g.succ[id] {
		t := g.edges[idx].Target
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, idx := range g.pred[id] {
		s := g.edges[idx].Source
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sortStrings(out)
	return out
}
