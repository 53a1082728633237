// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"classified", New(KindFetchFailed, "clone failed"), KindFetchFailed},
		{"wrapped classified", fmt.Errorf("outer: %w", New(KindNotFound, "no job")), KindNotFound},
		{"unclassified", fmt.Errorf("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapPreservesKind(t *testing.T) {
	inner := New(KindIndexUnavailable, "connection refused")
	outer := Wrap(KindInternal, "upsert", inner)
	require.NotNil(t, outer)
	assert.Equal(t, KindIndexUnavailable, outer.Kind)
	assert.True(t, IsKind(outer, KindIndexUnavailable))
}

func TestWrapNil(t *testing.T) {
	var got *Error = Wrap(KindInternal, "context", nil)
	assert.Nil(t, got)
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, ExitSuccess},
		{New(KindInvalidInput, "bad top_k"), 2},
		{New(KindFetchFailed, "unreachable"), 3},
		{New(KindParseFailed, "no parseable files"), 4},
		{New(KindIndexUnavailable, "refused"), 5},
		{New(KindIndexNotReady, "building"), 5},
		{New(KindTimeout, "query deadline"), 6},
		{New(KindInternal, "unexpected"), 6},
		{fmt.Errorf("plain"), 6},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, ExitCode(tt.err), "err=%v", tt.err)
	}
}

func TestErrorString(t *testing.T) {
	e := Wrap(KindEmbedFailed, "embed batch", fmt.Errorf("status 500"))
	assert.Equal(t, "EmbedFailed: embed batch: status 500", e.Error())
	assert.Equal(t, "EmbedFailed: embed batch: status 500", fmt.Sprintf("%v", error(e)))
}

func TestToJSON(t *testing.T) {
	e := New(KindNotFound, "job parse_3 not found")
	j := e.ToJSON()
	assert.Equal(t, "NotFound", j["kind"])
	assert.Equal(t, "job parse_3 not found", j["message"])
}

func TestFormatNoColor(t *testing.T) {
	e := New(KindTimeout, "embed phase exceeded 600s")
	assert.Equal(t, "Error [Timeout]: embed phase exceeded 600s\n", e.Format(true))
}
