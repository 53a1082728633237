// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import (
	"log/slog"

	"github.com/kraklabs/repograph/pkg/graph"
)

// Decl is one declaration extracted from a source file: the graph node plus
// the receiver-qualified name the resolver may match against (for example
// "Canvas.draw" for a method; empty for top-level declarations).
type Decl struct {
	Node     *graph.Node
	Qualname string
}

// CallRef is a textual call reference collected under a declaration, waiting
// for resolution against the name index.
type CallRef struct {
	// SourceID is the id of the node the call occurs inside.
	SourceID string
	// Name is the unqualified callee name.
	Name string
	// Qualifier is the receiver/object text, when the call was qualified
	// ("obj.foo()" yields Qualifier "obj", Name "foo").
	Qualifier string
}

// ImportRef is a textual import reference collected at file level.
type ImportRef struct {
	// FileID is the id of the importing file node.
	FileID string
	// Name is the imported module or symbol name (last path segment for
	// module imports).
	Name string
}

// FileResult is everything a language extractor produces for one file.
type FileResult struct {
	Decls   []Decl
	Calls   []CallRef
	Imports []ImportRef
}

// LanguageExtractor turns one source file into declarations and references.
// Implementations must be safe for concurrent use.
type LanguageExtractor interface {
	// Language returns the language name this extractor handles.
	Language() string
	// Extract parses content and returns the file's declarations, call
	// references, and import references. relPath is recorded in node ids.
	Extract(content []byte, relPath string) (*FileResult, error)
}

// newExtractors builds the extractor dispatch table keyed by language name.
func newExtractors(logger *slog.Logger) map[string]LanguageExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return map[string]LanguageExtractor{
		"python":     newPythonExtractor(logger),
		"javascript": newJavaScriptExtractor(logger),
		"typescript": newTypeScriptExtractor(logger),
		"go":         newGoExtractor(logger),
	}
}
