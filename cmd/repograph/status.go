// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/internal/output"
	"github.com/kraklabs/repograph/internal/ui"
	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/index"
	"github.com/kraklabs/repograph/pkg/qdrant"
)

// runStatus executes the 'status' command: report the local graph, the
// latest index run from the journal, and the live collection state.
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	collection := fs.String("collection", "", "Collection name (overrides config)")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph status [options]

Shows the parsed graph, the last index run recorded in the journal, and
the collection state reported by Qdrant.

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
	logger := newLogger(globals, *debug)
	ctx, cancel := signalContext(logger)
	defer cancel()

	name := *collection
	if name == "" {
		name = cfg.Collection
	}

	report := map[string]any{
		"data_dir":   cfg.DataDir,
		"qdrant_url": cfg.QdrantURL,
		"collection": name,
	}

	store := graph.NewStore()
	graphPath := filepath.Join(cfg.DataDir, "graph.json")
	if _, err := os.Stat(graphPath); err == nil {
		if err := store.Load(graphPath); err != nil {
			report["graph"] = map[string]any{"error": err.Error()}
		} else {
			stats := store.Stats()
			stats["path"] = graphPath
			report["graph"] = stats
		}
	}

	journal := index.NewJournal(cfg.DataDir, logger)
	if status, err := journal.ReadStatus(); err == nil {
		report["last_index"] = status
	} else if !rgerr.IsKind(err, rgerr.KindNotFound) {
		report["last_index"] = map[string]any{"error": err.Error()}
	}

	client := qdrant.NewClient(cfg.QdrantURL, logger)
	if info, err := client.CollectionInfo(ctx, name); err == nil {
		report["qdrant"] = info
	} else {
		report["qdrant"] = map[string]any{"error": err.Error()}
	}

	if globals.JSON {
		_ = output.JSON(report)
		return
	}

	_, _ = ui.Bold.Println("Graph")
	if stats, ok := report["graph"].(map[string]any); ok {
		if errMsg, bad := stats["error"]; bad {
			ui.Warningf("  load failed: %v", errMsg)
		} else {
			fmt.Printf("  Nodes: %v  Edges: %v\n", stats["total_nodes"], stats["total_edges"])
			_, _ = ui.Dim.Printf("  %s\n", graphPath)
		}
	} else {
		_, _ = ui.Dim.Println("  not parsed yet")
	}

	_, _ = ui.Bold.Println("Last index run")
	if status, ok := report["last_index"].(*index.Status); ok {
		fmt.Printf("  Status: %s  Points: %d  Model: %s\n", status.Status, status.PointsCount, status.Model)
		_, _ = ui.Dim.Printf("  Indexed at %s\n", status.IndexedAt)
	} else {
		_, _ = ui.Dim.Println("  no journal entry")
	}

	_, _ = ui.Bold.Printf("Collection %q\n", name)
	if info, ok := report["qdrant"].(*qdrant.CollectionInfo); ok {
		fmt.Printf("  Status: %s  Points: %d\n", info.Status, info.PointsCount)
	} else if e, ok := report["qdrant"].(map[string]any); ok {
		ui.Warningf("  unavailable: %v", e["error"])
	}
}

// runCollections executes the 'collections' command.
func runCollections(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("collections", flag.ExitOnError)
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph collections [options]

Lists Qdrant collections with their status and point counts.

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
	logger := newLogger(globals, *debug)
	ctx, cancel := signalContext(logger)
	defer cancel()

	client := qdrant.NewClient(cfg.QdrantURL, logger)
	names, err := client.ListCollections(ctx)
	if err != nil {
		fatal(globals, err)
	}

	type entry struct {
		Name        string `json:"name"`
		Status      string `json:"status,omitempty"`
		PointsCount int    `json:"points_count"`
		Error       string `json:"error,omitempty"`
	}
	entries := make([]entry, 0, len(names))
	for _, name := range names {
		e := entry{Name: name}
		if info, infoErr := client.CollectionInfo(ctx, name); infoErr != nil {
			e.Error = infoErr.Error()
		} else {
			e.Status = info.Status
			e.PointsCount = info.PointsCount
		}
		entries = append(entries, e)
	}

	if globals.JSON {
		_ = output.JSON(map[string]any{
			"qdrant_url":        cfg.QdrantURL,
			"total_collections": len(entries),
			"collections":       entries,
		})
		return
	}

	if len(entries) == 0 {
		ui.Warning("No collections")
		return
	}
	for _, e := range entries {
		if e.Error != "" {
			ui.Warningf("%s: %s", e.Name, e.Error)
			continue
		}
		_, _ = ui.Bold.Printf("%s", e.Name)
		fmt.Printf("  %s, %d points\n", e.Status, e.PointsCount)
	}
}
