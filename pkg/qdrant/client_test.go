// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rgerr "github.com/kraklabs/repograph/internal/errors"
)

func TestEnsureCollectionCreates(t *testing.T) {
	var created bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/code":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Collection code not found"}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/code":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			vectors := body["vectors"].(map[string]any)
			assert.Equal(t, float64(384), vectors["size"])
			assert.Equal(t, "Cosine", vectors["distance"])
			created = true
			_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	require.NoError(t, c.EnsureCollection(context.Background(), "code", 384, false))
	assert.True(t, created)
}

func TestEnsureCollectionExistingIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"result":{"status":"green","points_count":10}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	require.NoError(t, c.EnsureCollection(context.Background(), "code", 384, false))
}

func TestEnsureCollectionRecreateDeletesFirst(t *testing.T) {
	var deleted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			deleted = true
			_, _ = w.Write([]byte(`{"result":true}`))
		case http.MethodPut:
			assert.True(t, deleted, "delete must precede create")
			_, _ = w.Write([]byte(`{"result":true}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	require.NoError(t, c.EnsureCollection(context.Background(), "code", 8, true))
}

func TestUpsertBatches(t *testing.T) {
	var requests int32
	var total int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/code/points", r.URL.Path)
		var body struct {
			Points []Point `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		atomic.AddInt32(&requests, 1)
		atomic.AddInt32(&total, int32(len(body.Points)))
		assert.LessOrEqual(t, len(body.Points), 100)
		_, _ = w.Write([]byte(`{"result":{"status":"acknowledged"}}`))
	}))
	defer srv.Close()

	points := make([]Point, 250)
	for i := range points {
		points[i] = Point{ID: uint64(i + 1), Vector: []float32{1, 0}}
	}
	c := NewClient(srv.URL, nil)
	written, err := c.Upsert(context.Background(), "code", points)
	require.NoError(t, err)
	assert.Equal(t, 250, written)
	assert.Equal(t, int32(3), requests, "250 points upsert in batches of 100")
	assert.Equal(t, int32(250), total)
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/code/points/search", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":[
			{"id":2,"score":0.97,"payload":{"node_id":"function:a:a.py:1","snippet":"def a(): pass"}},
			{"id":5,"score":0.81,"payload":{"node_id":"function:b:b.py:1"}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	hits, err := c.Search(context.Background(), "code", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "function:a:a.py:1", hits[0].Payload.NodeID)
	assert.InDelta(t, 0.97, hits[0].Score, 1e-6)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestScrollPaginates(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			_, _ = w.Write([]byte(`{"result":{"points":[{"id":1,"payload":{"node_id":"x"}}],"next_page_offset":2}}`))
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(2), body["offset"])
		_, _ = w.Write([]byte(`{"result":{"points":[{"id":2,"payload":{"node_id":"y"}}],"next_page_offset":null}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	records, err := c.Scroll(context.Background(), "code", 1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "x", records[0].Payload.NodeID)
	assert.Equal(t, "y", records[1].Payload.NodeID)
}

func TestCountAndInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/code/points/count" {
			_, _ = w.Write([]byte(`{"result":{"count":42}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{"status":"green","points_count":42}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	count, err := c.Count(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, 42, count)

	info, err := c.CollectionInfo(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "green", info.Status)
	assert.Equal(t, 42, info.PointsCount)

	ready, err := c.Ready(context.Background(), "code")
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestListCollections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":{"collections":[{"name":"code"},{"name":"docs"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	names, err := c.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "docs"}, names)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   rgerr.Kind
	}{
		{http.StatusNotFound, `{"status":{"error":"Collection missing"}}`, rgerr.KindNotFound},
		{http.StatusServiceUnavailable, "overloaded", rgerr.KindIndexUnavailable},
		{http.StatusBadRequest, `{"status":{"error":"index not ready yet"}}`, rgerr.KindIndexNotReady},
		{http.StatusBadRequest, `{"status":{"error":"bad vector size"}}`, rgerr.KindInternal},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		c := NewClient(srv.URL, nil)
		_, err := c.Search(context.Background(), "code", []float32{1}, 1)
		require.Error(t, err)
		assert.Equal(t, tc.kind, rgerr.KindOf(err), "status %d body %s", tc.status, tc.body)
		srv.Close()
	}
}

func TestConnectionErrorIsIndexUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, nil)
	_, err := c.Search(context.Background(), "code", []float32{1}, 1)
	require.Error(t, err)
	assert.Equal(t, rgerr.KindIndexUnavailable, rgerr.KindOf(err))
}
