// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repograph/pkg/graph"
)

func extractGo(t *testing.T, source string) *FileResult {
	t.Helper()
	res, err := newGoExtractor(nil).Extract([]byte(source), "main.go")
	require.NoError(t, err, "extractor should not error on valid Go")
	return res
}

func TestGoFunctionsAndTypes(t *testing.T) {
	res := extractGo(t, `package main

// Server handles requests.
type Server struct{}

// run starts the loop.
func (s *Server) run() {
	s.handle()
}

func (s *Server) handle() {}

func main() {}
`)
	srv := declByName(res, "Server")
	require.NotNil(t, srv, "should extract Server struct")
	assert.Equal(t, graph.KindClass, srv.Node.Kind)
	assert.Equal(t, "Server handles requests.", srv.Node.Doc)

	run := declByName(res, "run")
	require.NotNil(t, run)
	assert.Equal(t, "Server.run", run.Qualname)
	assert.Equal(t, "run starts the loop.", run.Node.Doc)

	// s.handle() resolves through the receiver type.
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "handle", res.Calls[0].Name)
	assert.Equal(t, "Server", res.Calls[0].Qualifier)
}

func TestGoCyclomatic(t *testing.T) {
	res := extractGo(t, `package main

func classify(n int) string {
	if n > 0 && n < 10 {
		return "small"
	}
	for i := 0; i < n; i++ {
		switch {
		case i%2 == 0:
		case i%3 == 0:
		}
	}
	return "other"
}
`)
	// if + && + for + two cases = 5 decisions.
	assert.Equal(t, 6, declByName(res, "classify").Node.Cyclomatic)
}

func TestGoImports(t *testing.T) {
	res := extractGo(t, `package main

import (
	"fmt"
	"net/http"
)
`)
	var names []string
	for _, imp := range res.Imports {
		names = append(names, imp.Name)
	}
	assert.ElementsMatch(t, []string{"fmt", "http"}, names)
}
