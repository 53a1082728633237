// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package service is the protocol-agnostic operation surface of repograph.
// It owns the collaborators (parser, graph store, embedder, index client,
// job registry) and exposes the operations the HTTP binding and the CLI call.
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/pkg/embed"
	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/index"
	"github.com/kraklabs/repograph/pkg/job"
	"github.com/kraklabs/repograph/pkg/parser"
	"github.com/kraklabs/repograph/pkg/qdrant"
	"github.com/kraklabs/repograph/pkg/query"
	"github.com/kraklabs/repograph/pkg/repo"
)

// GraphFileName is the default graph artifact inside the data directory.
const GraphFileName = "graph.json"

// Config carries the service wiring knobs.
type Config struct {
	DataDir           string
	QdrantURL         string
	DefaultCollection string
	EmbedProvider     string
	EmbedWorkers      int
	JobWorkers        int
	SummarizerURL     string
}

// Service wires the pipeline components behind named operations.
type Service struct {
	cfg      Config
	store    *graph.Store
	parser   *parser.Parser
	embedder *embed.Embedder
	client   *qdrant.Client
	journal  *index.Journal
	engine   *query.Engine
	fetcher  *repo.Fetcher
	jobs     *job.Registry
	logger   *slog.Logger
}

// New builds a service. The embedding provider is resolved from cfg (mock,
// ollama, openai); environment variables fill in provider details.
func New(cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.QdrantURL == "" {
		cfg.QdrantURL = "http://localhost:6333"
	}
	if cfg.DefaultCollection == "" {
		cfg.DefaultCollection = "repograph"
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, rgerr.Wrap(rgerr.KindInternal, "create data dir", err)
	}

	provider, err := embed.NewProvider(cfg.EmbedProvider, logger)
	if err != nil {
		return nil, err
	}

	store := graph.NewStore()
	embedder := embed.New(provider, cfg.EmbedWorkers, logger)
	client := qdrant.NewClient(cfg.QdrantURL, logger)
	journal := index.NewJournal(cfg.DataDir, logger)

	engine := query.NewEngine(store, embedder, client, logger)
	engine.SetJournal(journal)
	if cfg.SummarizerURL != "" {
		engine.SetSummarizer(query.NewHTTPSummarizer(cfg.SummarizerURL, logger))
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		parser:   parser.New(logger),
		embedder: embedder,
		client:   client,
		journal:  journal,
		engine:   engine,
		fetcher:  repo.NewFetcher(logger),
		jobs:     job.NewRegistry(cfg.JobWorkers, logger),
		logger:   logger,
	}

	// Pick up a graph from a previous run so queries work across restarts.
	graphPath := s.GraphPath()
	if _, err := os.Stat(graphPath); err == nil {
		if err := store.Load(graphPath); err != nil {
			logger.Warn("service.graph.load_failed", "path", graphPath, "error", err)
		} else {
			logger.Info("service.graph.loaded", "path", graphPath, "graph", store)
		}
	}
	return s, nil
}

// GraphPath returns the default graph artifact location.
func (s *Service) GraphPath() string {
	return filepath.Join(s.cfg.DataDir, GraphFileName)
}

// Store exposes the graph store for CLI consumers.
func (s *Service) Store() *graph.Store { return s.store }

// Close releases job workers and cloned checkouts.
func (s *Service) Close() {
	s.jobs.Close()
	if err := s.fetcher.Close(); err != nil {
		s.logger.Warn("service.cleanup.failed", "error", err)
	}
}

// ParseRequest selects the repository to parse. Exactly one of RepoURL or
// RepoPath must be set.
type ParseRequest struct {
	RepoURL    string `json:"repo_url,omitempty"`
	RepoPath   string `json:"repo_path,omitempty"`
	Branch     string `json:"branch,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

func (r ParseRequest) validate() error {
	if (r.RepoURL == "") == (r.RepoPath == "") {
		return rgerr.New(rgerr.KindInvalidInput, "exactly one of repo_url or repo_path is required")
	}
	return nil
}

// IndexRequest selects the collection and graph to index.
type IndexRequest struct {
	Collection string `json:"collection_name,omitempty"`
	GraphPath  string `json:"graph_path,omitempty"`
	Recreate   bool   `json:"recreate_collection,omitempty"`
}

// ParseAndIndexRequest runs the full pipeline in one job.
type ParseAndIndexRequest struct {
	RepoURL    string `json:"repo_url,omitempty"`
	RepoPath   string `json:"repo_path,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Collection string `json:"collection_name,omitempty"`
	Recreate   bool   `json:"recreate_collection,omitempty"`
}

// Parse submits a parse job and returns its id.
func (s *Service) Parse(req ParseRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return s.jobs.Submit("parse", func(ctx context.Context, update func(string)) (map[string]any, error) {
		return s.runParse(ctx, req, update)
	})
}

// Index submits an index job and returns its id.
func (s *Service) Index(req IndexRequest) (string, error) {
	return s.jobs.Submit("index", func(ctx context.Context, update func(string)) (map[string]any, error) {
		return s.runIndex(ctx, req, update)
	})
}

// ParseAndIndex submits the combined pipeline job and returns its id.
func (s *Service) ParseAndIndex(req ParseAndIndexRequest) (string, error) {
	if err := (ParseRequest{RepoURL: req.RepoURL, RepoPath: req.RepoPath}).validate(); err != nil {
		return "", err
	}
	return s.jobs.Submit("parse_and_index", func(ctx context.Context, update func(string)) (map[string]any, error) {
		parseResult, err := s.runParse(ctx, ParseRequest{
			RepoURL:  req.RepoURL,
			RepoPath: req.RepoPath,
			Branch:   req.Branch,
		}, update)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		indexResult, err := s.runIndex(ctx, IndexRequest{
			Collection: req.Collection,
			Recreate:   req.Recreate,
		}, update)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"parse": parseResult,
			"index": indexResult,
		}, nil
	})
}

func (s *Service) runParse(ctx context.Context, req ParseRequest, update func(string)) (map[string]any, error) {
	repoPath := req.RepoPath
	if req.RepoURL != "" {
		update("cloning_repository")
		cloned, err := s.fetcher.Fetch(ctx, req.RepoURL, req.Branch)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := os.RemoveAll(cloned); err != nil {
				s.logger.Warn("service.clone.cleanup_failed", "dir", cloned, "error", err)
			}
		}()
		repoPath = cloned
	}

	update("parsing_repository")
	g, stats, err := s.parser.Parse(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	s.store.Set(g)

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = s.GraphPath()
	}
	if err := s.store.Save(outputPath); err != nil {
		return nil, err
	}

	return map[string]any{
		"graph_path":      outputPath,
		"files_processed": stats.FilesProcessed,
		"files_failed":    stats.FilesFailed,
		"functions_found": stats.FunctionsFound,
		"classes_found":   stats.ClassesFound,
		"total_nodes":     stats.NodeCount,
		"total_edges":     stats.EdgeCount,
	}, nil
}

func (s *Service) runIndex(ctx context.Context, req IndexRequest, update func(string)) (map[string]any, error) {
	collection := req.Collection
	if collection == "" {
		collection = s.cfg.DefaultCollection
	}
	// One coordinator per run so concurrent index jobs keep their own
	// stage callbacks.
	coord := index.NewCoordinator(s.store, s.embedder, s.client, s.journal, s.logger)
	coord.SetStageCallback(update)
	result, err := coord.Run(ctx, index.Options{
		Collection: collection,
		GraphPath:  req.GraphPath,
		Recreate:   req.Recreate,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"collection":   result.Collection,
		"points_count": result.PointsCount,
		"vector_size":  result.VectorSize,
		"model":        result.Model,
	}, nil
}

// SearchRequest is a synchronous search call.
type SearchRequest struct {
	Query      string `json:"query"`
	TopK       int    `json:"top_k,omitempty"`
	Collection string `json:"collection_name,omitempty"`
}

// SearchResponse is the search envelope.
type SearchResponse struct {
	Success      bool        `json:"success"`
	Results      []query.Hit `json:"results"`
	Query        string      `json:"query"`
	TotalResults int         `json:"total_results"`
	Collection   string      `json:"collection_name"`
}

// Search runs a synchronous semantic search.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	collection := req.Collection
	if collection == "" {
		collection = s.cfg.DefaultCollection
	}
	hits, err := s.engine.Search(ctx, req.Query, req.TopK, collection)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []query.Hit{}
	}
	return &SearchResponse{
		Success:      true,
		Results:      hits,
		Query:        req.Query,
		TotalResults: len(hits),
		Collection:   collection,
	}, nil
}

// AnalyzeRequest is a synchronous analyze call.
type AnalyzeRequest struct {
	Query            string `json:"query"`
	TopK             int    `json:"top_k,omitempty"`
	Collection       string `json:"collection_name,omitempty"`
	IncludeFullGraph bool   `json:"include_full_graph,omitempty"`
}

// GraphPayload is the full graph attached to analyze responses on request.
type GraphPayload struct {
	Nodes []*graph.Node `json:"nodes"`
	Edges []graph.Edge  `json:"edges"`
}

// AnalyzeResponse is the analyze envelope.
type AnalyzeResponse struct {
	Success        bool            `json:"success"`
	Query          string          `json:"query"`
	AnswerPath     []string        `json:"answer_path"`
	PathEdges      []graph.Edge    `json:"path_edges"`
	Snippets       []graph.Snippet `json:"snippets"`
	Summary        *query.Summary  `json:"summary"`
	Graph          *GraphPayload   `json:"graph,omitempty"`
	ProcessingTime float64         `json:"processing_time"`
}

// Analyze runs a synchronous full analysis.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	collection := req.Collection
	if collection == "" {
		collection = s.cfg.DefaultCollection
	}
	started := time.Now()
	answer, err := s.engine.Analyze(ctx, req.Query, req.TopK, collection)
	if err != nil {
		return nil, err
	}
	resp := &AnalyzeResponse{
		Success:        true,
		Query:          req.Query,
		AnswerPath:     answer.AnswerPath,
		PathEdges:      answer.PathEdges,
		Snippets:       answer.Snippets,
		Summary:        answer.Summary,
		ProcessingTime: time.Since(started).Seconds(),
	}
	if req.IncludeFullGraph {
		resp.Graph = &GraphPayload{Nodes: s.store.Nodes(), Edges: s.store.Edges()}
	}
	return resp, nil
}

// Status returns one job's snapshot.
func (s *Service) Status(jobID string) (job.Snapshot, error) {
	return s.jobs.Snapshot(jobID)
}

// ListJobs returns all jobs plus per-state totals.
func (s *Service) ListJobs() ([]job.Snapshot, map[job.State]int) {
	return s.jobs.List()
}

// CancelJob requests cancellation of a job.
func (s *Service) CancelJob(jobID string) error {
	return s.jobs.Cancel(jobID)
}

// DeleteJob removes a terminal job record.
func (s *Service) DeleteJob(jobID string) error {
	return s.jobs.Delete(jobID)
}

// CollectionSummary describes one external collection.
type CollectionSummary struct {
	Name        string `json:"name"`
	Status      string `json:"status,omitempty"`
	PointsCount int    `json:"points_count,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ListCollections reports the external index state.
func (s *Service) ListCollections(ctx context.Context) ([]CollectionSummary, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CollectionSummary, 0, len(names))
	for _, name := range names {
		info, err := s.client.CollectionInfo(ctx, name)
		if err != nil {
			out = append(out, CollectionSummary{Name: name, Error: err.Error()})
			continue
		}
		out = append(out, CollectionSummary{Name: name, Status: info.Status, PointsCount: info.PointsCount})
	}
	return out, nil
}

// HealthReport is the health operation's payload.
type HealthReport struct {
	Status      string            `json:"status"`
	Service     string            `json:"service"`
	Timestamp   string            `json:"timestamp"`
	ActiveJobs  int               `json:"active_jobs"`
	Environment HealthEnvironment `json:"environment"`
}

// HealthEnvironment describes the service's runtime wiring.
type HealthEnvironment struct {
	QdrantURL   string `json:"qdrant_url"`
	Model       string `json:"model"`
	GraphLoaded bool   `json:"graph_loaded"`
}

// Health reports the service's environment and activity.
func (s *Service) Health() HealthReport {
	return HealthReport{
		Status:     "healthy",
		Service:    "repograph",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		ActiveJobs: s.jobs.ActiveCount(),
		Environment: HealthEnvironment{
			QdrantURL:   s.cfg.QdrantURL,
			Model:       s.embedder.Model(),
			GraphLoaded: s.store.IsLoaded(),
		},
	}
}
