// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONTo(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]any{"collection": "repograph", "points_count": 42}
	require.NoError(t, JSONTo(&buf, data))
	assert.Contains(t, buf.String(), "\"collection\": \"repograph\"")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestJSONCompactTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONCompactTo(&buf, map[string]int{"total": 3}))
	assert.Equal(t, "{\"total\":3}\n", buf.String())
}

func TestJSONErrorTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONErrorTo(&buf, errors.New("graph file not found")))
	assert.Contains(t, buf.String(), "graph file not found")
}

func TestJSONToUnencodable(t *testing.T) {
	var buf bytes.Buffer
	err := JSONTo(&buf, make(chan int))
	assert.Error(t, err)
}
