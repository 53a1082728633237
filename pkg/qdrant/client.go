// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package qdrant is a narrow synchronous REST client for the Qdrant vector
// index. It covers exactly the surface the indexing and query paths need:
// collection lifecycle, batched upsert, search, scroll, and counts.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	rgerr "github.com/kraklabs/repograph/internal/errors"
)

// Distance is the similarity metric used for all collections.
const Distance = "Cosine"

// upsertBatchSize bounds points per upsert request.
const upsertBatchSize = 100

// Payload carries the node fields needed to render a search result without
// loading the graph.
type Payload struct {
	NodeID      string `json:"node_id"`
	Name        string `json:"name"`
	File        string `json:"file"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	Snippet     string `json:"snippet"`
	Doc         string `json:"doc"`
	LOC         int    `json:"loc"`
	Cyclomatic  int    `json:"cyclomatic"`
	NumCallsIn  int    `json:"num_calls_in"`
	NumCallsOut int    `json:"num_calls_out"`
	NodeType    string `json:"node_type"`
}

// Point is one vector with its payload, keyed by a dense positive id.
type Point struct {
	ID      uint64    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// Hit is one search result, ordered by descending score.
type Hit struct {
	ID      uint64  `json:"id"`
	Score   float32 `json:"score"`
	Payload Payload `json:"payload"`
}

// Record is one scrolled point (no score).
type Record struct {
	ID      uint64  `json:"id"`
	Payload Payload `json:"payload"`
}

// CollectionInfo summarizes one collection's state.
type CollectionInfo struct {
	Name        string
	Status      string
	PointsCount int
}

// Client talks to a Qdrant server over its REST API. Safe for concurrent
// use; the embedded http.Client pools connections.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			// Upserts of large batches dominate; tighter bounds come from
			// the per-call context.
			Timeout: 300 * time.Second,
		},
		logger: logger,
	}
}

// EnsureCollection creates the collection with the given vector size and
// cosine distance. With recreate, any existing collection of the same name
// is deleted first; without it, an existing collection is left untouched.
func (c *Client) EnsureCollection(ctx context.Context, name string, vectorSize int, recreate bool) error {
	if recreate {
		if err := c.DeleteCollection(ctx, name); err != nil && !rgerr.IsKind(err, rgerr.KindNotFound) {
			return err
		}
	} else {
		if _, err := c.CollectionInfo(ctx, name); err == nil {
			return nil
		} else if !rgerr.IsKind(err, rgerr.KindNotFound) {
			return err
		}
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": Distance,
		},
	}
	c.logger.Info("qdrant.collection.create", "collection", name, "vector_size", vectorSize, "recreate", recreate)
	return c.do(ctx, http.MethodPut, "/collections/"+name, body, nil)
}

// DeleteCollection removes the collection.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil)
}

// Upsert writes points in batches and returns the total written. Idempotent
// on point id.
func (c *Client) Upsert(ctx context.Context, name string, points []Point) (int, error) {
	written := 0
	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]
		body := map[string]any{"points": batch}
		if err := c.do(ctx, http.MethodPut, "/collections/"+name+"/points?wait=true", body, nil); err != nil {
			return written, err
		}
		written += len(batch)
		c.logger.Debug("index.upsert.batch", "collection", name, "batch_start", start, "batch_size", len(batch))
	}
	return written, nil
}

// Search returns the k nearest points by cosine similarity, descending.
func (c *Client) Search(ctx context.Context, name string, vector []float32, k int) ([]Hit, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var out struct {
		Result []Hit `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+name+"/points/search", body, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Scroll pages through all points of a collection, payloads included.
func (c *Client) Scroll(ctx context.Context, name string, pageSize int) ([]Record, error) {
	if pageSize <= 0 {
		pageSize = 256
	}
	var records []Record
	var offset any
	for {
		body := map[string]any{
			"limit":        pageSize,
			"with_payload": true,
		}
		if offset != nil {
			body["offset"] = offset
		}
		var out struct {
			Result struct {
				Points         []Record `json:"points"`
				NextPageOffset any      `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := c.do(ctx, http.MethodPost, "/collections/"+name+"/points/scroll", body, &out); err != nil {
			return nil, err
		}
		records = append(records, out.Result.Points...)
		if out.Result.NextPageOffset == nil {
			return records, nil
		}
		offset = out.Result.NextPageOffset
	}
}

// Count returns the exact number of points in the collection.
func (c *Client) Count(ctx context.Context, name string) (int, error) {
	var out struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+name+"/points/count", map[string]any{"exact": true}, &out); err != nil {
		return 0, err
	}
	return out.Result.Count, nil
}

// CollectionInfo returns the status and point count of one collection.
func (c *Client) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	var out struct {
		Result struct {
			Status      string `json:"status"`
			PointsCount int    `json:"points_count"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections/"+name, nil, &out); err != nil {
		return nil, err
	}
	return &CollectionInfo{Name: name, Status: out.Result.Status, PointsCount: out.Result.PointsCount}, nil
}

// ListCollections returns the names of all collections.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var out struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections", nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Result.Collections))
	for _, col := range out.Result.Collections {
		names = append(names, col.Name)
	}
	return names, nil
}

// Ready reports whether the collection's index is built. A missing
// collection is not ready.
func (c *Client) Ready(ctx context.Context, name string) (bool, error) {
	info, err := c.CollectionInfo(ctx, name)
	if err != nil {
		if rgerr.IsKind(err, rgerr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return info.Status == "green", nil
}

// do executes one request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return rgerr.Wrap(rgerr.KindInternal, "marshal request", err)
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return rgerr.Wrap(rgerr.KindInternal, "create request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return rgerr.Wrap(rgerr.KindIndexUnavailable,
			fmt.Sprintf("qdrant unreachable at %s", c.BaseURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return rgerr.Wrap(rgerr.KindIndexUnavailable, "read qdrant response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.classify(resp.StatusCode, respBody, method+" "+path)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return rgerr.Wrap(rgerr.KindInternal, "parse qdrant response", err)
		}
	}
	return nil
}

// classify maps an error response to the failure taxonomy: 404 is NotFound,
// 5xx and 429 are IndexUnavailable, bodies mentioning an unbuilt index are
// IndexNotReady, anything else is Internal.
func (c *Client) classify(status int, body []byte, op string) error {
	msg := strings.TrimSpace(string(body))
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusNotFound:
		return rgerr.Newf(rgerr.KindNotFound, "qdrant %s: not found: %s", op, msg)
	case strings.Contains(lower, "not ready") || strings.Contains(lower, "optimizing") || strings.Contains(lower, "indexing"):
		return rgerr.Newf(rgerr.KindIndexNotReady, "qdrant %s: index not ready: %s", op, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return rgerr.Newf(rgerr.KindIndexUnavailable, "qdrant %s: status %d: %s", op, status, msg)
	default:
		return rgerr.Newf(rgerr.KindInternal, "qdrant %s: status %d: %s", op, status, msg)
	}
}
