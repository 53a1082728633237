// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repograph/pkg/job"
	"github.com/kraklabs/repograph/pkg/qdrant"
)

// fakeQdrant is an in-memory stand-in for the vector index, close enough to
// the REST surface for end-to-end service tests.
type fakeQdrant struct {
	mu     sync.Mutex
	points map[string][]qdrant.Point
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{points: make(map[string][]qdrant.Point)}
}

func (f *fakeQdrant) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		names := make([]map[string]any, 0, len(f.points))
		for name := range f.points {
			names = append(names, map[string]any{"name": name})
		}
		writeJSON(w, 200, map[string]any{"result": map[string]any{"collections": names}})
	})
	mux.HandleFunc("GET /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		pts, ok := f.points[r.PathValue("name")]
		if !ok {
			writeJSON(w, 404, map[string]any{"status": map[string]any{"error": "not found"}})
			return
		}
		writeJSON(w, 200, map[string]any{"result": map[string]any{"status": "green", "points_count": len(pts)}})
	})
	mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		name := r.PathValue("name")
		if _, ok := f.points[name]; !ok {
			f.points[name] = nil
		}
		writeJSON(w, 200, map[string]any{"result": true})
	})
	mux.HandleFunc("DELETE /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.points, r.PathValue("name"))
		writeJSON(w, 200, map[string]any{"result": true})
	})
	mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []qdrant.Point `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, 400, map[string]any{"status": map[string]any{"error": err.Error()}})
			return
		}
		f.mu.Lock()
		name := r.PathValue("name")
		existing := f.points[name]
		for _, p := range body.Points {
			replaced := false
			for i := range existing {
				if existing[i].ID == p.ID {
					existing[i] = p
					replaced = true
					break
				}
			}
			if !replaced {
				existing = append(existing, p)
			}
		}
		f.points[name] = existing
		f.mu.Unlock()
		writeJSON(w, 200, map[string]any{"result": map[string]any{"status": "acknowledged"}})
	})
	mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		pts := f.points[r.PathValue("name")]
		f.mu.Unlock()
		hits := make([]map[string]any, 0)
		for _, p := range pts {
			if len(hits) == body.Limit {
				break
			}
			hits = append(hits, map[string]any{
				"id":      p.ID,
				"score":   cosine(body.Vector, p.Vector),
				"payload": p.Payload,
			})
		}
		writeJSON(w, 200, map[string]any{"result": hits})
	})
	mux.HandleFunc("POST /collections/{name}/points/scroll", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		pts := f.points[r.PathValue("name")]
		f.mu.Unlock()
		records := make([]map[string]any, 0, len(pts))
		for _, p := range pts {
			records = append(records, map[string]any{"id": p.ID, "payload": p.Payload})
		}
		writeJSON(w, 200, map[string]any{"result": map[string]any{"points": records, "next_page_offset": nil}})
	})
	return mux
}

func cosine(a, b []float32) float32 {
	var sum float32
	for i := range a {
		if i < len(b) {
			sum += a[i] * b[i]
		}
	}
	return sum
}

func writeRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	main := `def transfer(amount):
    """Moves money between accounts."""
    return audit(amount)


def audit(amount):
    """Records the transfer."""
    return amount
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pay.py"), []byte(main), 0o644))
	return dir
}

func newTestService(t *testing.T) (*Service, *fakeQdrant) {
	t.Helper()
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	s, err := New(Config{
		DataDir:           t.TempDir(),
		QdrantURL:         srv.URL,
		DefaultCollection: "code",
		EmbedProvider:     "mock",
		EmbedWorkers:      2,
		JobWorkers:        2,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, fake
}

func waitForJob(t *testing.T, s *Service, id string) job.Snapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := s.Status(id)
		require.NoError(t, err)
		if snap.State.Terminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never finished", id)
	return job.Snapshot{}
}

func TestParseJobProducesGraph(t *testing.T) {
	s, _ := newTestService(t)

	id, err := s.Parse(ParseRequest{RepoPath: writeRepo(t)})
	require.NoError(t, err)

	snap := waitForJob(t, s, id)
	require.Equal(t, job.StateCompleted, snap.State)
	assert.Equal(t, 1, snap.Result["files_processed"])
	assert.Equal(t, 2, snap.Result["functions_found"])

	graphPath, _ := snap.Result["graph_path"].(string)
	_, err = os.Stat(graphPath)
	require.NoError(t, err)
	assert.True(t, s.Store().IsLoaded())
}

func TestParseRequiresExactlyOneSource(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.Parse(ParseRequest{})
	require.Error(t, err)
	_, err = s.Parse(ParseRequest{RepoURL: "https://host/repo.git", RepoPath: "/tmp/x"})
	require.Error(t, err)
}

func TestParseAndIndexThenSearch(t *testing.T) {
	s, fake := newTestService(t)

	id, err := s.ParseAndIndex(ParseAndIndexRequest{RepoPath: writeRepo(t), Collection: "code"})
	require.NoError(t, err)

	snap := waitForJob(t, s, id)
	require.Equal(t, job.StateCompleted, snap.State, "job error: %+v", snap.Error)
	assert.Equal(t, "completed", snap.Progress)

	indexResult, ok := snap.Result["index"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, indexResult["points_count"], "one point per extracted function")

	fake.mu.Lock()
	stored := len(fake.points["code"])
	fake.mu.Unlock()
	assert.Equal(t, 2, stored)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "moves money", TopK: 2})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "code", resp.Collection)
	assert.LessOrEqual(t, resp.TotalResults, 2)

	analysis, err := s.Analyze(context.Background(), AnalyzeRequest{Query: "transfer audit", TopK: 3})
	require.NoError(t, err)
	assert.True(t, analysis.Success)
	assert.NotNil(t, analysis.Summary)
	assert.Nil(t, analysis.Graph)
	assert.GreaterOrEqual(t, analysis.ProcessingTime, 0.0)

	full, err := s.Analyze(context.Background(), AnalyzeRequest{Query: "transfer audit", TopK: 3, IncludeFullGraph: true})
	require.NoError(t, err)
	require.NotNil(t, full.Graph)
	assert.Len(t, full.Graph.Nodes, 2)
}

func TestReindexKeepsPointCount(t *testing.T) {
	s, fake := newTestService(t)
	repo := writeRepo(t)

	id, err := s.ParseAndIndex(ParseAndIndexRequest{RepoPath: repo, Collection: "code"})
	require.NoError(t, err)
	snap := waitForJob(t, s, id)
	require.Equal(t, job.StateCompleted, snap.State, "job error: %+v", snap.Error)

	id, err = s.ParseAndIndex(ParseAndIndexRequest{RepoPath: repo, Collection: "code"})
	require.NoError(t, err)
	snap = waitForJob(t, s, id)
	require.Equal(t, job.StateCompleted, snap.State, "job error: %+v", snap.Error)

	indexResult, ok := snap.Result["index"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, indexResult["points_count"], "second run reuses the same point ids")

	fake.mu.Lock()
	stored := len(fake.points["code"])
	fake.mu.Unlock()
	assert.Equal(t, 2, stored, "re-upserting the same ids must not grow the collection")
}

func TestIndexWithoutGraphFails(t *testing.T) {
	s, _ := newTestService(t)

	id, err := s.Index(IndexRequest{Collection: "code"})
	require.NoError(t, err)
	snap := waitForJob(t, s, id)
	require.Equal(t, job.StateFailed, snap.State)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "InvalidInput", snap.Error.Kind)
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	s, _ := newTestService(t)
	handler := NewHandler(s)

	body := strings.NewReader(`{"repo_path":"` + writeRepo(t) + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/parse", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.True(t, accepted.Success)
	require.NotEmpty(t, accepted.JobID)

	waitForJob(t, s, accepted.JobID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+accepted.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var statusResp struct {
		Success bool         `json:"success"`
		Job     job.Snapshot `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statusResp))
	assert.Equal(t, job.StateCompleted, statusResp.Job.State)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/jobs/"+accepted.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+accepted.JobID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPErrorEnvelope(t *testing.T) {
	s, _ := newTestService(t)
	handler := NewHandler(s)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"  "}`))
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "InvalidInput", resp.Error.Kind)
	assert.NotEmpty(t, resp.Error.Message)
}

func TestHTTPMalformedBody(t *testing.T) {
	s, _ := newTestService(t)
	handler := NewHandler(s)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/parse", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestService(t)
	handler := NewHandler(s)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, "repograph", report.Service)
	assert.NotEmpty(t, report.Environment.Model)
	assert.NotEmpty(t, report.Timestamp)
}

func TestListJobsEndpoint(t *testing.T) {
	s, _ := newTestService(t)
	handler := NewHandler(s)

	id, err := s.Parse(ParseRequest{RepoPath: writeRepo(t)})
	require.NoError(t, err)
	waitForJob(t, s, id)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success   bool                    `json:"success"`
		Total     int                     `json:"total"`
		Active    int                     `json:"active"`
		Completed int                     `json:"completed"`
		Failed    int                     `json:"failed"`
		Jobs      map[string]job.Snapshot `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Completed)
	assert.Equal(t, 0, resp.Failed)
	require.Contains(t, resp.Jobs, id)
	assert.Equal(t, job.StateCompleted, resp.Jobs[id].State)
}

func TestListCollectionsEndpoint(t *testing.T) {
	s, fake := newTestService(t)
	fake.mu.Lock()
	fake.points["code"] = []qdrant.Point{{ID: 1, Vector: []float32{1}}}
	fake.mu.Unlock()

	handler := NewHandler(s)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/collections", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success     bool                `json:"success"`
		Collections []CollectionSummary `json:"collections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Collections, 1)
	assert.Equal(t, "code", resp.Collections[0].Name)
	assert.Equal(t, 1, resp.Collections[0].PointsCount)
}
