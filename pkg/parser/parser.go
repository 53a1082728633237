// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package parser walks a repository tree, extracts function/class/file nodes
// per language with tree-sitter, resolves textual call and import references
// into edges, and annotates the resulting graph with size and complexity
// metrics.
package parser

import (
	"context"
	"log/slog"
	"os"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/pkg/graph"
)

// ProgressCallback is called to report progress during parsing.
//
// current and total are file counts; phase is "parsing".
type ProgressCallback func(current, total int64, phase string)

// Stats summarizes one parse run.
type Stats struct {
	FilesProcessed int `json:"files_processed"`
	FilesFailed    int `json:"files_failed"`
	FunctionsFound int `json:"functions_found"`
	ClassesFound   int `json:"classes_found"`
	NodeCount      int `json:"node_count"`
	EdgeCount      int `json:"edge_count"`
}

// Parser is the repository-to-graph pipeline front end.
type Parser struct {
	logger     *slog.Logger
	extractors map[string]LanguageExtractor
	onProgress ProgressCallback
}

// New creates a parser with all supported language extractors registered.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:     logger,
		extractors: newExtractors(logger),
	}
}

// SetProgressCallback sets an optional callback for progress reporting.
func (p *Parser) SetProgressCallback(cb ProgressCallback) {
	p.onProgress = cb
}

// Parse walks repoPath, extracts all supported files, resolves references,
// and returns the annotated graph. Individual file failures are logged and
// skipped; Parse fails only when the tree yielded candidate files and none of
// them parsed.
func (p *Parser) Parse(ctx context.Context, repoPath string) (*graph.Graph, *Stats, error) {
	if info, err := os.Stat(repoPath); err != nil || !info.IsDir() {
		return nil, nil, rgerr.Newf(rgerr.KindInvalidInput, "repository path not found: %s", repoPath)
	}

	files, err := NewWalker(repoPath, p.logger).Walk()
	if err != nil {
		return nil, nil, err
	}
	p.logger.Info("parser.walk.done", "path", repoPath, "files", len(files))

	stats := &Stats{}
	results := make([]*FileResult, 0, len(files))
	for i, f := range files {
		select {
		case <-ctx.Done():
			return nil, nil, rgerr.Wrap(rgerr.KindTimeout, "parse cancelled", ctx.Err())
		default:
		}
		res, err := p.parseFile(f)
		if err != nil {
			stats.FilesFailed++
			p.logger.Warn("parser.file.failed", "path", f.RelPath, "language", f.Language, "error", err)
			continue
		}
		stats.FilesProcessed++
		results = append(results, res)
		if p.onProgress != nil {
			p.onProgress(int64(i+1), int64(len(files)), "parsing")
		}
	}

	if stats.FilesProcessed == 0 && len(files) > 0 {
		return nil, nil, rgerr.Newf(rgerr.KindParseFailed, "no files parsed (%d failed)", stats.FilesFailed)
	}

	g := resolve(results, p.logger)
	Annotate(g)

	for _, n := range g.Nodes() {
		switch n.Kind {
		case graph.KindFunction:
			stats.FunctionsFound++
		case graph.KindClass:
			stats.ClassesFound++
		}
	}
	stats.NodeCount = g.NodeCount()
	stats.EdgeCount = g.EdgeCount()

	p.logger.Info("parser.parse.done",
		"files_processed", stats.FilesProcessed,
		"files_failed", stats.FilesFailed,
		"nodes", stats.NodeCount,
		"edges", stats.EdgeCount,
	)
	return g, stats, nil
}

// ParseToFile parses repoPath and persists the graph to outputPath.
func (p *Parser) ParseToFile(ctx context.Context, repoPath, outputPath string) (*Stats, error) {
	g, stats, err := p.Parse(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	store := graph.NewStore()
	store.Set(g)
	if err := store.Save(outputPath); err != nil {
		return nil, err
	}
	p.logger.Info("parser.graph.saved", "path", outputPath)
	return stats, nil
}

func (p *Parser) parseFile(f FileInfo) (*FileResult, error) {
	ext, ok := p.extractors[f.Language]
	if !ok {
		return nil, rgerr.Newf(rgerr.KindParseFailed, "no extractor for language %q", f.Language)
	}
	content, err := os.ReadFile(f.FullPath)
	if err != nil {
		return nil, err
	}
	return ext.Extract(content, f.RelPath)
}
