// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package qdrant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rgerr "github.com/kraklabs/repograph/internal/errors"
)

func init() {
	// Collapse the back-off schedule so retry tests run fast.
	retrySchedule = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
}

func TestWithRetryRecovers(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), nil, func() error {
		attempts++
		if attempts < 3 {
			return rgerr.New(rgerr.KindIndexUnavailable, "down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryGivesUp(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), nil, func() error {
		attempts++
		return rgerr.New(rgerr.KindIndexUnavailable, "down")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts, "initial attempt plus three retries")
	assert.Equal(t, rgerr.KindIndexUnavailable, rgerr.KindOf(err))
}

func TestWithRetryUnavailableRecovers(t *testing.T) {
	attempts := 0
	err := WithRetryUnavailable(context.Background(), nil, func() error {
		attempts++
		if attempts < 2 {
			return rgerr.New(rgerr.KindIndexUnavailable, "down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryUnavailableNotReadyFailsFast(t *testing.T) {
	attempts := 0
	err := WithRetryUnavailable(context.Background(), nil, func() error {
		attempts++
		return rgerr.New(rgerr.KindIndexNotReady, "optimizing")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "not-ready must surface immediately for fallback handling")
	assert.Equal(t, rgerr.KindIndexNotReady, rgerr.KindOf(err))
}

func TestWithRetryNonTransientFailsFast(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), nil, func() error {
		attempts++
		return rgerr.New(rgerr.KindInvalidInput, "bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
