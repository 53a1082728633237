// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package qdrant

import (
	"context"
	"log/slog"
	"time"

	rgerr "github.com/kraklabs/repograph/internal/errors"
)

// retrySchedule is the bounded back-off for transient index failures.
var retrySchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// WithRetry runs op, retrying IndexUnavailable and IndexNotReady failures
// with the fixed 1s/2s/4s schedule. Other failures return immediately.
func WithRetry(ctx context.Context, logger *slog.Logger, op func() error) error {
	return retry(ctx, logger, op, func(err error) bool {
		return rgerr.IsKind(err, rgerr.KindIndexUnavailable) || rgerr.IsKind(err, rgerr.KindIndexNotReady)
	})
}

// WithRetryUnavailable runs op, retrying only IndexUnavailable failures on
// the same schedule. IndexNotReady returns immediately so query callers can
// degrade to their fallback instead of waiting out the back-off.
func WithRetryUnavailable(ctx context.Context, logger *slog.Logger, op func() error) error {
	return retry(ctx, logger, op, func(err error) bool {
		return rgerr.IsKind(err, rgerr.KindIndexUnavailable)
	})
}

func retry(ctx context.Context, logger *slog.Logger, op func() error, transient func(error) bool) error {
	if logger == nil {
		logger = slog.Default()
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !transient(err) {
			return err
		}
		if attempt >= len(retrySchedule) {
			return err
		}
		sleep := retrySchedule[attempt]
		logger.Warn("qdrant.retry", "attempt", attempt+1, "sleep", sleep.String(), "error", err)
		select {
		case <-ctx.Done():
			return rgerr.Wrap(rgerr.KindTimeout, "retry cancelled", ctx.Err())
		case <-time.After(sleep):
		}
	}
}
