// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	rgerr "github.com/kraklabs/repograph/internal/errors"
)

// fileDocument is the on-disk graph.json shape.
type fileDocument struct {
	Nodes    []*Node  `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Metadata Metadata `json:"metadata"`
}

// Snippet is the code excerpt shape handed to query consumers.
type Snippet struct {
	NodeID    string `json:"node_id"`
	Code      string `json:"code"`
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Doc       string `json:"doc"`
}

// Store owns the in-memory graph and its on-disk form. The graph is
// read-mostly: Load and Set take an exclusive lock, all read operations take
// a shared lock. The store exclusively owns graph.json once written.
type Store struct {
	mu    sync.RWMutex
	graph *Graph
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{graph: New()}
}

// Set replaces the held graph.
func (s *Store) Set(g *Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = g
}

// Nodes returns the held graph's nodes in insertion order. Callers must not
// mutate the returned slice.
func (s *Store) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Nodes()
}

// Edges returns the held graph's edges in insertion order. Callers must not
// mutate the returned slice.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Edges()
}

// IsLoaded reports whether a non-empty graph is held.
func (s *Store) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph != nil && s.graph.NodeCount() > 0
}

// Load reads graph.json from path and replaces the held graph. Edges whose
// endpoints are missing from the node list are rejected.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rgerr.Newf(rgerr.KindNotFound, "graph file not found: %s", path)
		}
		return rgerr.Wrap(rgerr.KindInternal, "read graph file", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return rgerr.Wrap(rgerr.KindInternal, "decode graph file", err)
	}
	g := New()
	for _, n := range doc.Nodes {
		if err := g.AddNode(n); err != nil {
			return rgerr.Wrap(rgerr.KindInternal, "load node", err)
		}
	}
	for _, e := range doc.Edges {
		if err := g.AddEdge(e); err != nil {
			return rgerr.Wrap(rgerr.KindInternal, "load edge", err)
		}
	}
	s.Set(g)
	return nil
}

// Save writes the held graph to path atomically (write-to-temp + rename).
func (s *Store) Save(path string) error {
	s.mu.RLock()
	doc := fileDocument{
		Nodes: s.graph.Nodes(),
		Edges: s.graph.Edges(),
		Metadata: Metadata{
			NodeCount:     s.graph.NodeCount(),
			EdgeCount:     s.graph.EdgeCount(),
			GeneratedBy:   GeneratedBy,
			SchemaVersion: SchemaVersion,
		},
	}
	if doc.Edges == nil {
		doc.Edges = []Edge{}
	}
	if doc.Nodes == nil {
		doc.Nodes = []*Node{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return rgerr.Wrap(rgerr.KindInternal, "encode graph", err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rgerr.Wrap(rgerr.KindInternal, "create directory", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return rgerr.Wrap(rgerr.KindInternal, "create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return rgerr.Wrap(rgerr.KindInternal, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return rgerr.Wrap(rgerr.KindInternal, "close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return rgerr.Wrap(rgerr.KindInternal, "rename temp file", err)
	}
	return nil
}

// Node returns a node by id under a shared lock, or nil.
func (s *Store) Node(id string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Node(id)
}

// HasNode reports whether id exists.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.HasNode(id)
}

// Neighbors enumerates adjacent ids in edge-insertion order.
func (s *Store) Neighbors(id string, dir Direction) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Neighbors(id, dir)
}

// ShortestPath delegates to Graph.ShortestPath under a shared lock.
func (s *Store) ShortestPath(sources, sinks []string) *Path {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.ShortestPath(sources, sinks)
}

// Snippets assembles snippets for the given ids, in order. Unknown ids get
// a placeholder so path positions stay aligned.
func (s *Store) Snippets(ids []string) []Snippet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snippets := make([]Snippet, 0, len(ids))
	for _, id := range ids {
		n := s.graph.Node(id)
		if n == nil {
			snippets = append(snippets, Snippet{
				NodeID: id,
				Code:   "# code not available",
				File:   "unknown",
			})
			continue
		}
		snippets = append(snippets, Snippet{
			NodeID:    n.ID,
			Code:      n.Code,
			File:      n.File,
			StartLine: n.StartLine,
			EndLine:   n.EndLine,
			Doc:       n.Doc,
		})
	}
	return snippets
}

// Counts returns (nodes, edges).
func (s *Store) Counts() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.NodeCount(), s.graph.EdgeCount()
}

// Stats summarizes the held graph for job results.
func (s *Store) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make(map[string]struct{})
	functions, classes := 0, 0
	for _, n := range s.graph.Nodes() {
		files[n.File] = struct{}{}
		switch n.Kind {
		case KindFunction:
			functions++
		case KindClass:
			classes++
		}
	}
	return map[string]any{
		"files_processed": len(files),
		"functions_found": functions,
		"classes_found":   classes,
		"total_nodes":     s.graph.NodeCount(),
		"total_edges":     s.graph.EdgeCount(),
	}
}

// String implements fmt.Stringer for logging.
func (s *Store) String() string {
	n, e := s.Counts()
	return fmt.Sprintf("graph(%d nodes, %d edges)", n, e)
}
