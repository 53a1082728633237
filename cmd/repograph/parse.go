// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/internal/output"
	"github.com/kraklabs/repograph/internal/ui"
	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/parser"
	"github.com/kraklabs/repograph/pkg/repo"
)

// isRepoURL reports whether source should be cloned rather than read.
func isRepoURL(source string) bool {
	for _, prefix := range []string{"https://", "http://", "git@", "ssh://", "file://"} {
		if strings.HasPrefix(source, prefix) {
			return true
		}
	}
	return false
}

// runParse executes the 'parse' command: walk a repository, extract
// functions, classes and files, resolve call/import edges, and write
// graph.json.
func runParse(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	outputPath := fs.String("output", "", "Graph output path (default: <data_dir>/graph.json)")
	branch := fs.String("branch", "", "Branch to clone (git URLs only)")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph parse <repo-url-or-path> [options]

Parses Python, JavaScript, TypeScript and Go sources into a code graph.
Git URLs are shallow-cloned to a temp directory and cleaned up afterwards.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		fatal(globals, rgerr.New(rgerr.KindInvalidInput, "parse requires exactly one repository URL or path"))
	}
	source := fs.Arg(0)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fatal(globals, rgerr.Wrap(rgerr.KindInvalidInput, "load config", err))
	}
	logger := newLogger(globals, *debug)
	ctx, cancel := signalContext(logger)
	defer cancel()

	repoPath := source
	if isRepoURL(source) {
		fetcher := repo.NewFetcher(logger)
		defer func() {
			if err := fetcher.Close(); err != nil {
				logger.Warn("parse.cleanup.failed", "error", err)
			}
		}()
		cloned, err := fetcher.Fetch(ctx, source, *branch)
		if err != nil {
			fatal(globals, err)
		}
		repoPath = cloned
	}

	p := parser.New(logger)
	p.SetProgressCallback(trackProgress(NewProgressConfig(globals)))

	out := *outputPath
	if out == "" {
		out = filepath.Join(cfg.DataDir, "graph.json")
	}

	g, stats, err := p.Parse(ctx, repoPath)
	if err != nil {
		fatal(globals, err)
	}
	store := graph.NewStore()
	store.Set(g)
	if err := store.Save(out); err != nil {
		fatal(globals, err)
	}

	if globals.JSON {
		_ = output.JSON(map[string]any{
			"graph_path": out,
			"stats":      stats,
		})
		return
	}

	ui.Successf("Parsed %d files (%d failed)", stats.FilesProcessed, stats.FilesFailed)
	fmt.Printf("  Functions: %d\n", stats.FunctionsFound)
	fmt.Printf("  Classes:   %d\n", stats.ClassesFound)
	fmt.Printf("  Nodes:     %d\n", stats.NodeCount)
	fmt.Printf("  Edges:     %d\n", stats.EdgeCount)
	_, _ = ui.Dim.Printf("  Graph written to %s\n", out)
}
