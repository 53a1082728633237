// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkNode(id, name string) *Node {
	return &Node{ID: id, Name: name, Kind: KindFunction, File: "a.py", StartLine: 1, EndLine: 2}
}

func TestAddNodeDuplicate(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(mkNode("function:a:a.py:1", "a")))
	err := g.AddNode(mkNode("function:a:a.py:1", "a"))
	assert.Error(t, err)
	assert.Equal(t, 1, g.NodeCount())
}

func TestAddNodeSetsLabel(t *testing.T) {
	g := New()
	n := mkNode("function:a:a.py:1", "a")
	require.NoError(t, g.AddNode(n))
	assert.Equal(t, "a", n.Label)
}

func TestAddEdgeRequiresEndpoints(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(mkNode("function:a:a.py:1", "a")))
	err := g.AddEdge(Edge{Source: "function:a:a.py:1", Target: "function:missing:x.py:1", Type: EdgeCall})
	assert.Error(t, err)
	assert.Equal(t, 0, g.EdgeCount())
}

func TestAddEdgeCollapsesDuplicates(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(mkNode("function:a:a.py:1", "a")))
	require.NoError(t, g.AddNode(mkNode("function:b:b.py:1", "b")))
	e := Edge{Source: "function:a:a.py:1", Target: "function:b:b.py:1", Type: EdgeCall}
	require.NoError(t, g.AddEdge(e))
	require.NoError(t, g.AddEdge(e))
	assert.Equal(t, 1, g.EdgeCount())

	// Same endpoints, different type: kept.
	e.Type = EdgeImport
	require.NoError(t, g.AddEdge(e))
	assert.Equal(t, 2, g.EdgeCount())
}

func TestEdgeLegacyKeys(t *testing.T) {
	var e Edge
	require.NoError(t, json.Unmarshal([]byte(`{"from":"x","to":"y","type":"call"}`), &e))
	assert.Equal(t, "x", e.Source)
	assert.Equal(t, "y", e.Target)

	// Canonical keys win when both are present.
	require.NoError(t, json.Unmarshal([]byte(`{"source":"a","target":"b","from":"x","to":"y","type":"import","ambiguous":true}`), &e))
	assert.Equal(t, "a", e.Source)
	assert.Equal(t, "b", e.Target)
	assert.True(t, e.Ambiguous)
}

func TestNeighborsInsertionOrder(t *testing.T) {
	g := New()
	for _, id := range []string{"n1", "n2", "n3", "n4"} {
		require.NoError(t, g.AddNode(&Node{ID: id, Name: id, Kind: KindFunction}))
	}
	require.NoError(t, g.AddEdge(Edge{Source: "n1", Target: "n3", Type: EdgeCall}))
	require.NoError(t, g.AddEdge(Edge{Source: "n1", Target: "n2", Type: EdgeCall}))
	require.NoError(t, g.AddEdge(Edge{Source: "n4", Target: "n1", Type: EdgeCall}))

	assert.Equal(t, []string{"n3", "n2"}, g.Neighbors("n1", DirOut))
	assert.Equal(t, []string{"n4"}, g.Neighbors("n1", DirIn))
	assert.Equal(t, []string{"n3", "n2", "n4"}, g.Neighbors("n1", DirBoth))
}

func TestNodesByName(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{ID: "function:foo:a.py:1", Name: "foo", Kind: KindFunction}))
	require.NoError(t, g.AddNode(&Node{ID: "function:foo:b.py:1", Name: "foo", Kind: KindFunction}))
	assert.Equal(t, []string{"function:foo:a.py:1", "function:foo:b.py:1"}, g.NodesByName("foo"))
	assert.Empty(t, g.NodesByName("bar"))
}
