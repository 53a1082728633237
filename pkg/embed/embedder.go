// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package embed turns graph nodes into semantic documents and dense vectors.
//
// Providers speak to external embedding backends (Ollama, OpenAI) or produce
// deterministic mock vectors; the Embedder adds worker-pool fan-out,
// classified retries with jittered backoff, and stable row ordering.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rgerr "github.com/kraklabs/repograph/internal/errors"
)

// docCharCap bounds the text sent to a provider per document. Embedding
// models have token limits and code tokenizes poorly.
const docCharCap = 2000

// RetryConfig controls per-document retry behavior. MaxRetries counts total
// attempts: the default of 2 means one retry before the failure surfaces.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// ProgressCallback is called to report embedding progress.
type ProgressCallback func(current, total int64, phase string)

// Embedder manages embedding generation with concurrency and retries.
type Embedder struct {
	provider   Provider
	workers    int
	logger     *slog.Logger
	retry      RetryConfig
	onProgress ProgressCallback
}

// New creates an embedder. workers <= 1 processes sequentially.
func New(provider Provider, workers int, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		provider: provider,
		workers:  workers,
		logger:   logger,
		retry:    RetryConfig{MaxRetries: 2, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second, Multiplier: 2.0},
	}
}

// SetRetryConfig overrides the retry configuration, guarding zero values.
func (e *Embedder) SetRetryConfig(cfg RetryConfig) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.Multiplier <= 1.0 {
		cfg.Multiplier = 2.0
	}
	e.retry = cfg
}

// SetProgressCallback sets an optional callback for progress reporting.
func (e *Embedder) SetProgressCallback(cb ProgressCallback) {
	e.onProgress = cb
}

// Model returns the provider's model name.
func (e *Embedder) Model() string { return e.provider.Model() }

// EmbedDocs embeds all documents and returns one vector per document, in
// input order. Any document that still fails after retries fails the whole
// operation: downstream upsert needs a complete matrix.
func (e *Embedder) EmbedDocs(ctx context.Context, docs []string) ([][]float32, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if e.workers <= 1 {
		return e.embedSequential(ctx, docs)
	}
	return e.embedParallel(ctx, docs)
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	v, err := e.embedWithRetry(ctx, query)
	if err != nil {
		return nil, rgerr.Wrap(rgerr.KindEmbedFailed, "embed query", err)
	}
	return v, nil
}

func (e *Embedder) embedSequential(ctx context.Context, docs []string) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	for i, doc := range docs {
		select {
		case <-ctx.Done():
			return nil, rgerr.Wrap(rgerr.KindTimeout, "embedding cancelled", ctx.Err())
		default:
		}
		v, err := e.embedWithRetry(ctx, doc)
		if err != nil {
			return nil, rgerr.Wrap(rgerr.KindEmbedFailed, fmt.Sprintf("embed document %d of %d", i+1, len(docs)), err)
		}
		vectors[i] = v
		if e.onProgress != nil {
			e.onProgress(int64(i+1), int64(len(docs)), "embedding")
		}
	}
	return vectors, nil
}

func (e *Embedder) embedParallel(ctx context.Context, docs []string) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	var errorCount int32
	var done int64
	var errMu sync.Mutex
	var firstErr error

	jobs := make(chan int, len(docs))
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				v, err := e.embedWithRetry(ctx, docs[i])
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
					continue
				}
				vectors[i] = v
				if e.onProgress != nil {
					e.onProgress(atomic.AddInt64(&done, 1), int64(len(docs)), "embedding")
				}
			}
		}()
	}
	for i := range docs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, rgerr.Wrap(rgerr.KindTimeout, "embedding cancelled", err)
	}
	if n := atomic.LoadInt32(&errorCount); n > 0 {
		e.logger.Error("embedding.summary",
			"total_docs", len(docs),
			"errors", n,
			"workers", e.workers,
		)
		return nil, rgerr.Wrap(rgerr.KindEmbedFailed, fmt.Sprintf("%d of %d documents failed to embed", n, len(docs)), firstErr)
	}
	return vectors, nil
}

// embedWithRetry embeds one document with classified retry and jittered
// exponential backoff.
func (e *Embedder) embedWithRetry(ctx context.Context, doc string) ([]float32, error) {
	text := doc
	if len(text) > docCharCap {
		text = text[:docCharCap]
	}

	var v []float32
	var err error
	for attempt := 0; attempt < e.retry.MaxRetries; attempt++ {
		v, err = e.provider.Embed(ctx, text)
		if err == nil {
			return v, nil
		}
		if !isRetryable(err) || attempt == e.retry.MaxRetries-1 {
			break
		}
		sleep := backoffWithJitter(e.retry.InitialBackoff, attempt, e.retry.Multiplier, e.retry.MaxBackoff)
		e.logger.Warn("embedding.retry", "attempt", attempt+1, "sleep_ms", sleep.Milliseconds(), "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, err
}

// isRetryable classifies provider errors: network trouble, timeouts, and
// HTTP 429/5xx are worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "temporarily unavailable", "connection refused", "connection reset", "deadline exceeded", "eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	for _, s := range []string{"status 429", "status 500", "status 502", "status 503", "status 504"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// backoffWithJitter returns base * mult^attempt capped at max, with full
// jitter in [0, d].
func backoffWithJitter(base time.Duration, attempt int, mult float64, max time.Duration) time.Duration {
	exp := float64(base)
	for i := 0; i < attempt; i++ {
		exp *= mult
	}
	d := time.Duration(exp)
	if d > max {
		d = max
	}
	if d <= 0 {
		return base
	}
	return time.Duration(randInt63n(int64(d) + 1))
}

var (
	randMu   sync.Mutex
	randSeed int64
)

// randInt63n returns [0, n) from a simple LCG, avoiding a math/rand import
// for jitter alone.
func randInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	randMu.Lock()
	defer randMu.Unlock()
	const a = 6364136223846793005
	const c = 1
	const m = 1<<63 - 1
	if randSeed == 0 {
		randSeed = time.Now().UnixNano() & m
	}
	randSeed = (a*randSeed + c) & m
	if randSeed < 0 {
		randSeed = -randSeed
	}
	return randSeed % n
}
