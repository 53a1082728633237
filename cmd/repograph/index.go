// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/internal/output"
	"github.com/kraklabs/repograph/internal/ui"
	"github.com/kraklabs/repograph/pkg/embed"
	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/index"
	"github.com/kraklabs/repograph/pkg/qdrant"
)

// runIndex executes the 'index' command: embed every graph node and upsert
// the vectors into Qdrant, then journal the run.
func runIndex(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	collection := fs.String("collection", "", "Collection name (overrides config)")
	graphPath := fs.String("graph", "", "Graph file to index (default: <data_dir>/graph.json)")
	recreate := fs.Bool("recreate", false, "Drop and recreate the collection first")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph index [options]

Embeds the parsed graph and writes the vectors to Qdrant. The point-to-node
map and run status are journaled next to graph.json.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fatal(globals, rgerr.Wrap(rgerr.KindInvalidInput, "load config", err))
	}
	exportEmbeddingEnv(cfg)
	logger := newLogger(globals, *debug)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "error", err)
			}
		}()
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	provider, err := embed.NewProvider(cfg.Embedding.Provider, logger)
	if err != nil {
		fatal(globals, err)
	}
	embedder := embed.New(provider, cfg.Embedding.Workers, logger)
	embedder.SetProgressCallback(trackProgress(NewProgressConfig(globals)))

	store := graph.NewStore()
	client := qdrant.NewClient(cfg.QdrantURL, logger)
	journal := index.NewJournal(cfg.DataDir, logger)
	coord := index.NewCoordinator(store, embedder, client, journal, logger)

	name := *collection
	if name == "" {
		name = cfg.Collection
	}
	gp := *graphPath
	if gp == "" {
		gp = filepath.Join(cfg.DataDir, "graph.json")
	}

	result, err := coord.Run(ctx, index.Options{
		Collection: name,
		GraphPath:  gp,
		Recreate:   *recreate,
	})
	if err != nil {
		fatal(globals, err)
	}

	if globals.JSON {
		_ = output.JSON(result)
		return
	}
	ui.Successf("Indexed %d points into %q", result.PointsCount, result.Collection)
	fmt.Printf("  Model:       %s\n", result.Model)
	fmt.Printf("  Vector size: %d\n", result.VectorSize)
	_, _ = ui.Dim.Printf("  Journal written to %s\n", cfg.DataDir)
}
