// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package index coordinates the graph-to-vector pipeline: render documents,
// embed them, ensure the target collection, upsert points, and journal the
// outcome.
package index

import (
	"context"
	"log/slog"
	"strings"
	"time"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/pkg/embed"
	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/qdrant"
)

// Per-phase timeouts.
const (
	embedTimeout  = 600 * time.Second
	upsertTimeout = 300 * time.Second
)

// payloadSnippetCap bounds the code snippet stored in point payloads.
const payloadSnippetCap = 500

// Options configures one index run.
type Options struct {
	// Collection is the target collection name.
	Collection string
	// GraphPath is the graph.json to load. Empty uses the store's current
	// graph.
	GraphPath string
	// Recreate drops any existing collection of the same name first.
	Recreate bool
}

// Result summarizes a completed index run.
type Result struct {
	Collection  string `json:"collection"`
	PointsCount int    `json:"points_count"`
	VectorSize  int    `json:"vector_size"`
	Model       string `json:"model"`
}

// Coordinator drives index runs. It owns no long-lived state beyond its
// collaborators and is safe for concurrent runs on distinct collections.
type Coordinator struct {
	store    *graph.Store
	embedder *embed.Embedder
	client   *qdrant.Client
	journal  *Journal
	logger   *slog.Logger
	onStage  func(stage string)
}

// NewCoordinator wires an index coordinator.
func NewCoordinator(store *graph.Store, embedder *embed.Embedder, client *qdrant.Client, journal *Journal, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    store,
		embedder: embedder,
		client:   client,
		journal:  journal,
		logger:   logger,
	}
}

// SetStageCallback registers a hook invoked when a run enters the embedding
// and upsert phases. Used by job records for staged progress.
func (c *Coordinator) SetStageCallback(fn func(stage string)) {
	c.onStage = fn
}

func (c *Coordinator) stage(name string) {
	if c.onStage != nil {
		c.onStage(name)
	}
}

// Run executes one index run. The journal is written only after a successful
// upsert; a failed upsert that wrote some batches records a partial status.
func (c *Coordinator) Run(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	result, err := c.run(ctx, opts)
	recordTotalDuration(time.Since(started))
	if err != nil {
		recordRunFailed()
		return nil, err
	}
	recordRunCompleted()
	return result, nil
}

func (c *Coordinator) run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Collection == "" {
		return nil, rgerr.New(rgerr.KindInvalidInput, "collection name is required")
	}
	if opts.GraphPath != "" {
		if err := c.store.Load(opts.GraphPath); err != nil {
			return nil, err
		}
	}
	if !c.store.IsLoaded() {
		return nil, rgerr.New(rgerr.KindInvalidInput, "no graph loaded; parse first or pass a graph path")
	}

	nodes := c.store.Nodes()
	docs := embed.MakeDocuments(nodes)
	recordNodesIndexed(len(nodes))
	c.logger.Info("index.run.start", "collection", opts.Collection, "nodes", len(nodes), "model", c.embedder.Model())

	c.stage("generating_embeddings")
	embedStart := time.Now()
	embedCtx, cancelEmbed := context.WithTimeout(ctx, embedTimeout)
	vectors, err := c.embedder.EmbedDocs(embedCtx, docs)
	cancelEmbed()
	recordEmbedDuration(time.Since(embedStart))
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, rgerr.New(rgerr.KindInvalidInput, "graph produced no documents to index")
	}
	vectorSize := len(vectors[0])

	if err := qdrant.WithRetry(ctx, c.logger, func() error {
		return c.client.EnsureCollection(ctx, opts.Collection, vectorSize, opts.Recreate)
	}); err != nil {
		return nil, err
	}

	points := make([]qdrant.Point, len(nodes))
	pointToNode := make(map[uint64]string, len(nodes))
	for i, n := range nodes {
		id := uint64(i + 1) // dense positive ids, monotonic within the collection
		points[i] = qdrant.Point{ID: id, Vector: vectors[i], Payload: nodePayload(n)}
		pointToNode[id] = n.ID
	}

	c.stage("indexing")
	upsertStart := time.Now()
	upsertCtx, cancelUpsert := context.WithTimeout(ctx, upsertTimeout)
	var written int
	err = qdrant.WithRetry(upsertCtx, c.logger, func() error {
		var upsertErr error
		written, upsertErr = c.client.Upsert(upsertCtx, opts.Collection, points)
		return upsertErr
	})
	cancelUpsert()
	recordUpsertDuration(time.Since(upsertStart))
	recordPointsWritten(written)
	if err != nil {
		status := StatusFailed
		if written > 0 {
			status = StatusPartial
		}
		if jerr := c.journal.WriteStatus(c.status(opts.Collection, vectorSize, written, status)); jerr != nil {
			c.logger.Error("index.journal.write_failed", "error", jerr)
		}
		return nil, err
	}

	if err := c.journal.WriteMap(pointToNode); err != nil {
		return nil, err
	}
	if err := c.journal.WriteStatus(c.status(opts.Collection, vectorSize, written, StatusCompleted)); err != nil {
		return nil, err
	}

	c.logger.Info("index.run.done", "collection", opts.Collection, "points", written, "vector_size", vectorSize)
	return &Result{
		Collection:  opts.Collection,
		PointsCount: written,
		VectorSize:  vectorSize,
		Model:       c.embedder.Model(),
	}, nil
}

func (c *Coordinator) status(collection string, vectorSize, points int, status string) Status {
	return Status{
		Collection:  collection,
		Model:       c.embedder.Model(),
		VectorSize:  vectorSize,
		Distance:    qdrant.Distance,
		PointsCount: points,
		IndexedAt:   time.Now().UTC().Format(time.RFC3339),
		Status:      status,
	}
}

// nodePayload maps a graph node to the point payload stored alongside its
// vector.
func nodePayload(n *graph.Node) qdrant.Payload {
	snippet := n.Code
	if len(snippet) > payloadSnippetCap {
		snippet = snippet[:payloadSnippetCap] + "..."
	}
	return qdrant.Payload{
		NodeID:      n.ID,
		Name:        n.Name,
		File:        n.File,
		StartLine:   n.StartLine,
		EndLine:     n.EndLine,
		Snippet:     snippet,
		Doc:         n.Doc,
		LOC:         n.LOC,
		Cyclomatic:  n.Cyclomatic,
		NumCallsIn:  n.NumCallsIn,
		NumCallsOut: n.NumCallsOut,
		NodeType:    nodeType(n),
	}
}

func nodeType(n *graph.Node) string {
	if n.Kind != "" {
		return n.Kind
	}
	if strings.HasPrefix(n.ID, "class:") {
		return graph.KindClass
	}
	return graph.KindFunction
}
