// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package main implements the repograph CLI for parsing repositories into
// code graphs, indexing them into a vector store, and querying the result.
//
// Usage:
//
//	repograph serve                     Start the HTTP worker service
//	repograph parse <repo>              Parse a repository into graph.json
//	repograph index                     Embed and index the current graph
//	repograph search <query>            Semantic search over the index
//	repograph analyze <query>           Search + answer path + summary
//	repograph status                    Show graph and index status
//	repograph collections               List index collections
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kraklabs/repograph/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags carries the flags every subcommand honors.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	NoColor bool
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to repograph.yaml (default: ./repograph.yaml)")
		jsonOut     = flag.Bool("json", false, "Machine-readable JSON output")
		quiet       = flag.Bool("q", false, "Suppress progress output")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `repograph - repository code graph and semantic search

repograph parses a repository into a call/import graph, embeds every
function, class and file, indexes the vectors in Qdrant, and answers
questions with ranked hits, answer paths and code snippets.

Usage:
  repograph <command> [options]

Commands:
  serve        Start the HTTP worker service
  parse        Parse a repository into graph.json
  index        Embed the graph and upsert it into Qdrant
  search       Semantic search over an indexed collection
  analyze      Search plus answer-path and snippet assembly
  status       Show graph and last index run status
  collections  List Qdrant collections

Global Options:
  --config     Path to repograph.yaml
  --json       Machine-readable JSON output
  --no-color   Disable colored output
  -q           Suppress progress output
  --version    Show version and exit

Examples:
  repograph parse https://github.com/user/repo.git
  repograph parse ./src --output data/graph.json
  repograph index --collection myrepo --recreate
  repograph search "where is authentication handled"
  repograph analyze "how does a payment reach the ledger" --top-k 8
  repograph serve --port 8002

Environment Variables:
  QDRANT_URL               Qdrant base URL (default: http://localhost:6333)
  QDRANT_COLLECTION_NAME   Default collection name
  MODEL_NAME               Embedding model name
  DATA_DIR                 Artifact directory (graph.json, index journal)
  WORKER_HOST, WORKER_PORT Serve bind address

For detailed command help: repograph <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("repograph version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	globals := GlobalFlags{JSON: *jsonOut, Quiet: *quiet || *jsonOut, NoColor: *noColor}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "serve":
		runServe(cmdArgs, *configPath, globals)
	case "parse":
		runParse(cmdArgs, *configPath, globals)
	case "index":
		runIndex(cmdArgs, *configPath, globals)
	case "search":
		runSearch(cmdArgs, *configPath, globals)
	case "analyze":
		runAnalyze(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	case "collections":
		runCollections(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
