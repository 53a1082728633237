// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package query

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/pkg/embed"
	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/qdrant"
)

const (
	aID = "function:a:a.py:1"
	bID = "function:b:b.py:1"
)

func testStore(t *testing.T) *graph.Store {
	t.Helper()
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{
		ID: aID, Label: "a", Name: "a", Kind: graph.KindFunction,
		File: "a.py", StartLine: 1, EndLine: 2,
		Code: "def a():\n    b()", Doc: "Entry point.", Language: "python",
	}))
	require.NoError(t, g.AddNode(&graph.Node{
		ID: bID, Label: "b", Name: "b", Kind: graph.KindFunction,
		File: "b.py", StartLine: 1, EndLine: 2,
		Code: "def b():\n    return 1", Language: "python",
	}))
	require.NoError(t, g.AddEdge(graph.Edge{Source: aID, Target: bID, Type: graph.EdgeCall}))
	store := graph.NewStore()
	store.Set(g)
	return store
}

func newTestEngine(t *testing.T, store *graph.Store, qdrantURL string) *Engine {
	t.Helper()
	embedder := embed.New(embed.NewMockProvider(8, "mock-model", nil), 1, nil)
	return NewEngine(store, embedder, qdrant.NewClient(qdrantURL, nil), nil)
}

func searchResponse(hits ...string) string {
	out := `{"result":[`
	for i, h := range hits {
		if i > 0 {
			out += ","
		}
		out += h
	}
	return out + `]}`
}

func TestSearchMapsPayloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/code/points/search", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(2), body["limit"])
		assert.Len(t, body["vector"].([]any), 8)
		fmt.Fprint(w, searchResponse(
			`{"id":1,"score":0.9,"payload":{"node_id":"function:a:a.py:1","snippet":"def a(): b()","file":"a.py","start_line":1}}`,
			`{"id":2,"score":0.5,"payload":{"node_id":"function:b:b.py:1","snippet":"def b(): return 1","file":"b.py","start_line":1}}`,
		))
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	hits, err := e.Search(context.Background(), "what does a do", 2, "code")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, aID, hits[0].NodeID)
	assert.Equal(t, "a.py", hits[0].File)
	assert.Equal(t, 1, hits[0].StartLine)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchEmptyQueryIsInvalid(t *testing.T) {
	e := newTestEngine(t, testStore(t), "http://127.0.0.1:1")
	_, err := e.Search(context.Background(), "   ", 5, "code")
	assert.Equal(t, rgerr.KindInvalidInput, rgerr.KindOf(err))
}

func TestSearchCapsSnippet(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse(
			`{"id":1,"score":0.9,"payload":{"node_id":"x","snippet":"`+long+`"}}`,
		))
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	hits, err := e.Search(context.Background(), "q", 1, "code")
	require.NoError(t, err)
	assert.Len(t, hits[0].Snippet, 200)
}

func TestSearchRetriesUnavailableIndex(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":{"error":"connection refused"}}`)
			return
		}
		fmt.Fprint(w, searchResponse(
			`{"id":1,"score":0.9,"payload":{"node_id":"function:a:a.py:1","snippet":"def a(): b()","file":"a.py","start_line":1}}`,
		))
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	hits, err := e.Search(context.Background(), "what does a do", 1, "code")
	require.NoError(t, err, "an unavailable index must be retried before failing")
	require.Len(t, hits, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchKeywordFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/code/points/search":
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"status":{"error":"index not ready, still optimizing"}}`)
		case "/collections/code/points/scroll":
			fmt.Fprint(w, `{"result":{"points":[
				{"id":1,"payload":{"node_id":"function:transfer:pay.py:1","snippet":"def transfer(): pass","doc":"Moves money.","file":"pay.py","start_line":1}},
				{"id":2,"payload":{"node_id":"function:audit:audit.py:1","snippet":"def audit(): pass","doc":"","file":"audit.py","start_line":1}},
				{"id":3,"payload":{"node_id":"function:other:other.py:1","snippet":"def other(): pass","doc":"","file":"other.py","start_line":1}}
			],"next_page_offset":null}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	hits, err := e.Search(context.Background(), "transfer", 5, "code")
	require.NoError(t, err)
	require.Len(t, hits, 1, "only the payload containing the query matches")
	// snippet 0.8 + node id 0.6 exceed the cap, so the score clamps to 1.
	assert.Equal(t, float32(1), hits[0].Score)
	assert.Equal(t, "function:transfer:pay.py:1", hits[0].NodeID)
	assert.GreaterOrEqual(t, hits[0].Score, float32(0))
	assert.LessOrEqual(t, hits[0].Score, float32(1))
}

func TestSearchKeywordFallbackScoringAndOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/code/points/search" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"status":{"error":"not ready"}}`)
			return
		}
		// "auth" appears only in the doc of one point and only in the file
		// path of the other, so the doc weight must win.
		fmt.Fprint(w, `{"result":{"points":[
			{"id":1,"payload":{"node_id":"function:login:a.py:1","snippet":"def login(): pass","doc":"Handles auth.","file":"a.py"}},
			{"id":2,"payload":{"node_id":"function:check:b.py:1","snippet":"def check(): pass","doc":"","file":"auth/b.py"}}
		],"next_page_offset":null}}`)
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	hits, err := e.Search(context.Background(), "auth", 5, "code")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "function:login:a.py:1", hits[0].NodeID)
	assert.InDelta(t, 0.7, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.4, hits[1].Score, 1e-6)
}

func TestSearchOtherErrorsPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status":{"error":"collection missing"}}`)
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	_, err := e.Search(context.Background(), "q", 1, "code")
	assert.Equal(t, rgerr.KindNotFound, rgerr.KindOf(err))
}

func TestAnalyzeConnectedHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse(
			`{"id":1,"score":0.9,"payload":{"node_id":"function:a:a.py:1","snippet":"def a(): b()","file":"a.py","start_line":1}}`,
			`{"id":2,"score":0.5,"payload":{"node_id":"function:b:b.py:1","snippet":"def b(): return 1","file":"b.py","start_line":1}}`,
		))
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	answer, err := e.Analyze(context.Background(), "how does a call b", 2, "code")
	require.NoError(t, err)

	assert.Equal(t, []string{aID, bID}, answer.AnswerPath)
	require.Len(t, answer.PathEdges, 1)
	assert.Equal(t, aID, answer.PathEdges[0].Source)
	assert.Equal(t, bID, answer.PathEdges[0].Target)
	assert.Equal(t, graph.EdgeCall, answer.PathEdges[0].Type)

	require.Len(t, answer.Snippets, 2)
	assert.Equal(t, aID, answer.Snippets[0].NodeID)
	assert.Equal(t, "def a():\n    b()", answer.Snippets[0].Code)

	require.NotNil(t, answer.Summary)
	assert.Contains(t, answer.Summary.OneLiner, "2 code components across 2 files")
	require.Len(t, answer.Summary.Steps, 2)
	assert.Contains(t, answer.Summary.Steps[0], "1. a in a.py")
	require.Len(t, answer.Summary.NodeRefs, 2)
	assert.Equal(t, "def a():", answer.Summary.NodeRefs[0].ExcerptLine)
	assert.Len(t, answer.Summary.Caveats, 3)
}

func TestAnalyzeDeterministic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse(
			`{"id":1,"score":0.9,"payload":{"node_id":"function:a:a.py:1","file":"a.py","start_line":1}}`,
			`{"id":2,"score":0.5,"payload":{"node_id":"function:b:b.py:1","file":"b.py","start_line":1}}`,
		))
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	first, err := e.Analyze(context.Background(), "q", 2, "code")
	require.NoError(t, err)
	second, err := e.Analyze(context.Background(), "q", 2, "code")
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestAnalyzeSingleHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse(
			`{"id":1,"score":0.9,"payload":{"node_id":"function:b:b.py:1","file":"b.py","start_line":1}}`,
		))
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	answer, err := e.Analyze(context.Background(), "what does b return", 1, "code")
	require.NoError(t, err)
	assert.Equal(t, []string{bID}, answer.AnswerPath)
	assert.Empty(t, answer.PathEdges)
	require.Len(t, answer.Snippets, 1)
}

func TestAnalyzeNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse())
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	answer, err := e.Analyze(context.Background(), "nothing matches", 5, "code")
	require.NoError(t, err)
	assert.Empty(t, answer.AnswerPath)
	assert.NotNil(t, answer.AnswerPath, "slices stay non-nil for stable JSON")
	assert.Contains(t, answer.Summary.OneLiner, "No relevant code found")
	assert.Equal(t, []string{"No matching code components found"}, answer.Summary.Caveats)
}

func TestAnalyzeHitsMissingFromGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse(
			`{"id":1,"score":0.9,"payload":{"node_id":"function:gone:gone.py:1","file":"gone.py"}}`,
		))
	}))
	defer srv.Close()

	e := newTestEngine(t, testStore(t), srv.URL)
	answer, err := e.Analyze(context.Background(), "stale index", 1, "code")
	require.NoError(t, err)
	assert.Empty(t, answer.AnswerPath)
	assert.Contains(t, answer.Summary.OneLiner, "No relevant code found")
}

func TestAnalyzeSummarizerOverridesOneLiner(t *testing.T) {
	qsrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse(
			`{"id":1,"score":0.9,"payload":{"node_id":"function:b:b.py:1","file":"b.py","start_line":1}}`,
		))
	}))
	defer qsrv.Close()

	ssrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/summarize", r.URL.Path)
		var body summarizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what does b return", body.Question)
		require.Len(t, body.Snippets, 1)
		fmt.Fprint(w, `{"one_liner":"b returns the constant 1"}`)
	}))
	defer ssrv.Close()

	e := newTestEngine(t, testStore(t), qsrv.URL)
	e.SetSummarizer(NewHTTPSummarizer(ssrv.URL, nil))
	answer, err := e.Analyze(context.Background(), "what does b return", 1, "code")
	require.NoError(t, err)
	assert.Equal(t, "b returns the constant 1", answer.Summary.OneLiner)
	assert.Len(t, answer.Summary.Steps, 1, "structured form is still emitted")
}

func TestAnalyzeSummarizerFailureIsSwallowed(t *testing.T) {
	qsrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse(
			`{"id":1,"score":0.9,"payload":{"node_id":"function:b:b.py:1","file":"b.py","start_line":1}}`,
		))
	}))
	defer qsrv.Close()

	ssrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ssrv.Close()

	e := newTestEngine(t, testStore(t), qsrv.URL)
	e.SetSummarizer(NewHTTPSummarizer(ssrv.URL, nil))
	answer, err := e.Analyze(context.Background(), "q", 1, "code")
	require.NoError(t, err)
	assert.Contains(t, answer.Summary.OneLiner, "1 code components")
}

func TestExcerptLineSkipsBlankLines(t *testing.T) {
	assert.Equal(t, "def b():", excerptLine("\n\ndef b():\n    return 1"))
	assert.Equal(t, "", excerptLine("\n  \n"))
	long := ""
	for i := 0; i < 10; i++ {
		long += "abcdefgh"
	}
	assert.Len(t, excerptLine(long), summaryExcerptCap+3)
}
