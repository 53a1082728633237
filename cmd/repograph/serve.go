// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/internal/output"
	"github.com/kraklabs/repograph/pkg/service"
)

// newLogger builds the CLI logger. Logs go to stderr so --json output on
// stdout stays machine-readable.
func newLogger(globals GlobalFlags, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if globals.Quiet {
		level = slog.LevelWarn
	}
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// fatal reports an error and exits with the kind's exit code.
func fatal(globals GlobalFlags, err error) {
	if globals.JSON {
		_ = output.JSONError(err)
		os.Exit(rgerr.ExitCode(err))
	}
	rgerr.Fatal(err, globals.NoColor)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()
	return ctx, cancel
}

// serviceConfig maps the CLI config onto the service wiring.
func serviceConfig(cfg *Config) service.Config {
	return service.Config{
		DataDir:           cfg.DataDir,
		QdrantURL:         cfg.QdrantURL,
		DefaultCollection: cfg.Collection,
		EmbedProvider:     cfg.Embedding.Provider,
		EmbedWorkers:      cfg.Embedding.Workers,
		SummarizerURL:     cfg.SummarizerURL,
	}
}

// runServe starts the HTTP worker service.
func runServe(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", "", "Bind host (overrides config)")
	port := fs.Int("port", 0, "Bind port (overrides config)")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph serve [options]

Starts the worker service: POST /parse, /index, /parse_and_index submit
background jobs; POST /search and /analyze answer synchronously; GET
/jobs, /collections, /health and /metrics report state.

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
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	exportEmbeddingEnv(cfg)

	logger := newLogger(globals, *debug)
	svc, err := service.New(serviceConfig(cfg), logger)
	if err != nil {
		fatal(globals, err)
	}
	defer svc.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           service.NewHandler(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signalContext(logger)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("serve.shutdown.error", "error", err)
		}
	}()

	logger.Info("serve.listening", "addr", addr, "qdrant_url", cfg.QdrantURL, "collection", cfg.Collection)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fatal(globals, rgerr.Wrap(rgerr.KindInternal, "http server", err))
	}
}
