// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/internal/output"
	"github.com/kraklabs/repograph/internal/ui"
	"github.com/kraklabs/repograph/pkg/embed"
	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/index"
	"github.com/kraklabs/repograph/pkg/qdrant"
	"github.com/kraklabs/repograph/pkg/query"
)

// newQueryEngine wires a query engine for the search/analyze commands. The
// graph is loaded when present; search works without it, analyze requires it.
func newQueryEngine(cfg *Config, logger *slog.Logger) (*query.Engine, *graph.Store, error) {
	exportEmbeddingEnv(cfg)
	provider, err := embed.NewProvider(cfg.Embedding.Provider, logger)
	if err != nil {
		return nil, nil, err
	}
	embedder := embed.New(provider, cfg.Embedding.Workers, logger)
	client := qdrant.NewClient(cfg.QdrantURL, logger)

	store := graph.NewStore()
	graphPath := filepath.Join(cfg.DataDir, "graph.json")
	if _, err := os.Stat(graphPath); err == nil {
		if err := store.Load(graphPath); err != nil {
			logger.Warn("query.graph.load_failed", "path", graphPath, "error", err)
		}
	}

	engine := query.NewEngine(store, embedder, client, logger)
	engine.SetJournal(index.NewJournal(cfg.DataDir, logger))
	if cfg.SummarizerURL != "" {
		engine.SetSummarizer(query.NewHTTPSummarizer(cfg.SummarizerURL, logger))
	}
	return engine, store, nil
}

// runSearch executes the 'search' command.
func runSearch(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	topK := fs.Int("top-k", 5, "Number of results")
	collection := fs.String("collection", "", "Collection name (overrides config)")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph search <query> [options]

Semantic search over an indexed collection. While the index is still
building, results fall back to a keyword scan over the stored payloads.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		fatal(globals, rgerr.New(rgerr.KindInvalidInput, "search requires exactly one query string"))
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fatal(globals, rgerr.Wrap(rgerr.KindInvalidInput, "load config", err))
	}
	logger := newLogger(globals, *debug)
	ctx, cancel := signalContext(logger)
	defer cancel()

	engine, _, err := newQueryEngine(cfg, logger)
	if err != nil {
		fatal(globals, err)
	}

	name := *collection
	if name == "" {
		name = cfg.Collection
	}
	hits, err := engine.Search(ctx, fs.Arg(0), *topK, name)
	if err != nil {
		fatal(globals, err)
	}

	if globals.JSON {
		_ = output.JSON(map[string]any{
			"query":         fs.Arg(0),
			"results":       hits,
			"total_results": len(hits),
		})
		return
	}

	if len(hits) == 0 {
		ui.Warning("No results")
		return
	}
	for i, h := range hits {
		_, _ = ui.Bold.Printf("%d. %s", i+1, h.NodeID)
		fmt.Printf("  (score %.3f)\n", h.Score)
		_, _ = ui.Dim.Printf("   %s:%d\n", h.File, h.StartLine)
		if h.Snippet != "" {
			fmt.Printf("   %s\n", h.Snippet)
		}
	}
}

// runAnalyze executes the 'analyze' command.
func runAnalyze(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	topK := fs.Int("top-k", 5, "Number of search hits to connect")
	collection := fs.String("collection", "", "Collection name (overrides config)")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph analyze <query> [options]

Searches, connects the hits through the code graph, and prints the answer
path with code snippets and a structured summary.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		fatal(globals, rgerr.New(rgerr.KindInvalidInput, "analyze requires exactly one query string"))
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fatal(globals, rgerr.Wrap(rgerr.KindInvalidInput, "load config", err))
	}
	logger := newLogger(globals, *debug)
	ctx, cancel := signalContext(logger)
	defer cancel()

	engine, store, err := newQueryEngine(cfg, logger)
	if err != nil {
		fatal(globals, err)
	}
	if !store.IsLoaded() {
		fatal(globals, rgerr.New(rgerr.KindInvalidInput, "no graph found; run 'repograph parse' first"))
	}

	name := *collection
	if name == "" {
		name = cfg.Collection
	}
	answer, err := engine.Analyze(ctx, fs.Arg(0), *topK, name)
	if err != nil {
		fatal(globals, err)
	}

	if globals.JSON {
		_ = output.JSON(answer)
		return
	}

	if len(answer.AnswerPath) == 0 {
		ui.Warning(answer.Summary.OneLiner)
		return
	}
	_, _ = ui.Bold.Println("Answer path:")
	for _, id := range answer.AnswerPath {
		fmt.Printf("  %s\n", id)
	}
	if len(answer.PathEdges) > 0 {
		_, _ = ui.Bold.Println("Edges:")
		for _, e := range answer.PathEdges {
			fmt.Printf("  %s -[%s]-> %s\n", e.Source, e.Type, e.Target)
		}
	}
	_, _ = ui.Bold.Println("Summary:")
	fmt.Printf("  %s\n", answer.Summary.OneLiner)
	for _, step := range answer.Summary.Steps {
		_, _ = ui.Dim.Printf("  %s\n", step)
	}
}
