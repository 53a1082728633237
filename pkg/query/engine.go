// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package query answers semantic questions over an indexed repository:
// vector search for relevant nodes, path finding over the code graph, and
// snippet plus summary assembly.
package query

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/pkg/embed"
	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/index"
	"github.com/kraklabs/repograph/pkg/qdrant"
)

const (
	// queryTimeout bounds one search or analyze end to end.
	queryTimeout = 30 * time.Second

	// hitSnippetCap bounds the snippet carried on a search hit.
	hitSnippetCap = 200

	defaultTopK = 10
)

// Keyword-scan weights used when the ANN structure is still building. The
// rule is frozen: a hit scores the sum of the weights whose field contains
// the query, capped at 1.
const (
	weightSnippet = 0.8
	weightDoc     = 0.7
	weightNodeID  = 0.6
	weightFile    = 0.4
)

// Hit is one search result.
type Hit struct {
	NodeID    string  `json:"node_id"`
	Score     float32 `json:"score"`
	Snippet   string  `json:"snippet"`
	File      string  `json:"file"`
	StartLine int     `json:"start_line"`
}

// Answer is the full analyze result: the connecting path, its snippets, and
// a structured summary.
type Answer struct {
	AnswerPath []string        `json:"answer_path"`
	PathEdges  []graph.Edge    `json:"path_edges"`
	Snippets   []graph.Snippet `json:"snippets"`
	Summary    *Summary        `json:"summary"`
}

// Engine implements search and analyze over a graph store and a vector
// index. The summarizer collaborator is optional; the structured summary is
// always produced locally.
type Engine struct {
	store      *graph.Store
	embedder   *embed.Embedder
	client     *qdrant.Client
	journal    *index.Journal
	summarizer Summarizer
	logger     *slog.Logger
}

// NewEngine wires a query engine.
func NewEngine(store *graph.Store, embedder *embed.Embedder, client *qdrant.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, embedder: embedder, client: client, logger: logger}
}

// SetJournal attaches the index journal used to translate hits whose payload
// lacks a node id.
func (e *Engine) SetJournal(j *index.Journal) { e.journal = j }

// SetSummarizer attaches an external summarizer. Summarizer failures are
// logged and swallowed.
func (e *Engine) SetSummarizer(s Summarizer) { e.summarizer = s }

// Search embeds the query and runs a vector search on the collection. While
// the index is still building it degrades to a keyword scan over the stored
// payloads.
func (e *Engine) Search(ctx context.Context, query string, k int, collection string) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, rgerr.New(rgerr.KindInvalidInput, "query must not be empty")
	}
	if k <= 0 {
		k = defaultTopK
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	started := time.Now()

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	// Connection failures get the bounded back-off; a not-ready index falls
	// through to the keyword scan immediately.
	var raw []qdrant.Hit
	err = qdrant.WithRetryUnavailable(ctx, e.logger, func() error {
		var serr error
		raw, serr = e.client.Search(ctx, collection, vector, k)
		return serr
	})
	if err != nil {
		if rgerr.IsKind(err, rgerr.KindIndexNotReady) {
			e.logger.Warn("query.search.fallback", "collection", collection, "error", err)
			recordFallback()
			return e.keywordScan(ctx, query, k, collection)
		}
		return nil, err
	}

	hits := make([]Hit, 0, len(raw))
	var idMap map[uint64]string
	for _, h := range raw {
		nodeID := h.Payload.NodeID
		if nodeID == "" {
			if idMap == nil {
				idMap = e.loadPointMap()
			}
			if mapped, ok := idMap[h.ID]; ok {
				nodeID = mapped
			} else {
				nodeID = strconv.FormatUint(h.ID, 10)
			}
		}
		hits = append(hits, Hit{
			NodeID:    nodeID,
			Score:     h.Score,
			Snippet:   capString(h.Payload.Snippet, hitSnippetCap),
			File:      h.Payload.File,
			StartLine: h.Payload.StartLine,
		})
	}
	recordSearch(time.Since(started))
	e.logger.Debug("query.search.done", "collection", collection, "hits", len(hits))
	return hits, nil
}

// Analyze searches, connects the hits through the code graph, and assembles
// snippets and a structured summary for the connecting path.
func (e *Engine) Analyze(ctx context.Context, query string, k int, collection string) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	started := time.Now()
	defer func() { recordAnalyze(time.Since(started)) }()

	hits, err := e.Search(ctx, query, k, collection)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return emptyAnswer(query), nil
	}

	var ids []string
	for _, h := range hits {
		if e.store.HasNode(h.NodeID) {
			ids = append(ids, h.NodeID)
		}
	}
	if len(ids) == 0 {
		e.logger.Warn("query.analyze.no_graph_nodes", "collection", collection, "hits", len(hits))
		return emptyAnswer(query), nil
	}

	pathNodes := ids
	pathEdges := make([]graph.Edge, 0)
	if len(ids) > 1 {
		if p := e.store.ShortestPath(ids, ids); p != nil {
			pathNodes = p.Nodes
			pathEdges = append(pathEdges, p.Edges...)
		}
		// Disconnected hits keep relevance order with no edges.
	} else {
		pathNodes = ids[:1]
	}

	snippets := e.store.Snippets(pathNodes)
	summary := buildSummary(query, hits, snippets)
	if e.summarizer != nil {
		if oneLiner, serr := e.summarizer.Summarize(ctx, query, snippets); serr != nil {
			e.logger.Warn("query.summarize.failed", "error", serr)
		} else if oneLiner != "" {
			summary.OneLiner = oneLiner
		}
	}

	return &Answer{
		AnswerPath: pathNodes,
		PathEdges:  pathEdges,
		Snippets:   snippets,
		Summary:    summary,
	}, nil
}

// keywordScan scores every stored payload against the query with the frozen
// substring weights and returns the top k.
func (e *Engine) keywordScan(ctx context.Context, query string, k int, collection string) ([]Hit, error) {
	var records []qdrant.Record
	err := qdrant.WithRetryUnavailable(ctx, e.logger, func() error {
		var serr error
		records, serr = e.client.Scroll(ctx, collection, 0)
		return serr
	})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)

	hits := make([]Hit, 0)
	for _, r := range records {
		var score float32
		if strings.Contains(strings.ToLower(r.Payload.Snippet), needle) {
			score += weightSnippet
		}
		if strings.Contains(strings.ToLower(r.Payload.Doc), needle) {
			score += weightDoc
		}
		if strings.Contains(strings.ToLower(r.Payload.NodeID), needle) {
			score += weightNodeID
		}
		if strings.Contains(strings.ToLower(r.Payload.File), needle) {
			score += weightFile
		}
		if score == 0 {
			continue
		}
		if score > 1 {
			score = 1
		}
		hits = append(hits, Hit{
			NodeID:    r.Payload.NodeID,
			Score:     score,
			Snippet:   capString(r.Payload.Snippet, hitSnippetCap),
			File:      r.Payload.File,
			StartLine: r.Payload.StartLine,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].NodeID < hits[j].NodeID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	e.logger.Info("query.search.fallback_done", "collection", collection, "scanned", len(records), "hits", len(hits))
	return hits, nil
}

// loadPointMap reads the journal's point map, tolerating absence.
func (e *Engine) loadPointMap() map[uint64]string {
	if e.journal == nil {
		return map[uint64]string{}
	}
	m, err := e.journal.ReadMap()
	if err != nil {
		e.logger.Warn("query.point_map.unavailable", "error", err)
		return map[uint64]string{}
	}
	return m
}

func capString(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
