// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/repograph/pkg/graph"
)

// fileCodeCap bounds the source slice stored on file-level nodes.
const fileCodeCap = 2000

// tsExtractor is the shared base for tree-sitter backed extractors. Parsers
// are not thread-safe, so each language keeps a pool.
type tsExtractor struct {
	language string
	logger   *slog.Logger
	pool     *sync.Pool
}

func newTSBase(language string, lang *sitter.Language, logger *slog.Logger) tsExtractor {
	e := tsExtractor{language: language, logger: logger}
	e.pool = &sync.Pool{New: func() any {
		p := sitter.NewParser()
		p.SetLanguage(lang)
		return p
	}}
	return e
}

// parse runs the pooled parser over content and returns the syntax tree. The
// caller owns the tree and must Close it.
func (e *tsExtractor) parse(content []byte) (*sitter.Tree, error) {
	parser := e.pool.Get().(*sitter.Parser)
	defer e.pool.Put(parser)
	return parser.ParseCtx(context.Background(), nil, content)
}

// countErrors counts ERROR nodes in the syntax tree.
func countErrors(node *sitter.Node) int {
	count := 0
	if node.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrors(node.Child(i))
	}
	return count
}

// nodeText returns the source slice covered by n.
func nodeText(n *sitter.Node, content []byte) string {
	return string(content[n.StartByte():n.EndByte()])
}

// lineSpan returns 1-based inclusive start and end lines for n.
func lineSpan(n *sitter.Node) (int, int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

// countLines returns the number of lines in content.
func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := strings.Count(string(content), "\n")
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// makeFileNode builds the file-level node for relPath. File content beyond
// the cap is truncated with a marker so downstream documents stay bounded.
func makeFileNode(relPath, language string, content []byte) *graph.Node {
	name := path.Base(relPath)
	code := string(content)
	if len(code) > fileCodeCap {
		code = code[:fileCodeCap] + "\n... (file truncated)"
	}
	// An empty file still spans one line, keeping loc at its floor of 1.
	end := countLines(content)
	if end < 1 {
		end = 1
	}
	return &graph.Node{
		ID:        graph.NodeID(graph.KindFile, name, relPath, 1),
		Name:      name,
		Kind:      graph.KindFile,
		File:      relPath,
		StartLine: 1,
		EndLine:   end,
		Code:      code,
		Doc:       "File: " + name + " (" + language + ")",
		Language:  language,
	}
}

// rawDecl is a declaration found during the language-specific walk, before it
// is turned into a graph node.
type rawDecl struct {
	n        *sitter.Node
	kind     string
	name     string
	qualname string
	doc      string
}

// spanKey identifies a syntax node by its source span, so nested declaration
// subtrees can be recognized during metric and call collection.
type spanKey struct {
	start uint32
	end   uint32
}

func keyOf(n *sitter.Node) spanKey {
	return spanKey{start: n.StartByte(), end: n.EndByte()}
}

// decisionRules parameterizes cyclomatic counting per language.
type decisionRules struct {
	// kinds are node types that each contribute one decision point.
	kinds map[string]struct{}
	// isLogical reports whether n is a logical and/or operation.
	isLogical func(n *sitter.Node, content []byte) bool
}

// cyclomatic computes 1 + the number of decision constructs under decl,
// excluding subtrees that belong to other extracted declarations (they carry
// their own complexity).
func cyclomatic(decl *sitter.Node, content []byte, rules decisionRules, declSpans map[spanKey]struct{}) int {
	count := 1
	self := keyOf(decl)
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		k := keyOf(n)
		if k != self {
			if _, nested := declSpans[k]; nested {
				return
			}
		}
		if _, hit := rules.kinds[n.Type()]; hit {
			count++
		} else if rules.isLogical != nil && rules.isLogical(n, content) {
			count++
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(decl)
	return count
}

// callSite is one call expression found under a declaration.
type callSite struct {
	name      string
	qualifier string
}

// collectCalls gathers call references under decl, excluding subtrees that
// belong to other extracted declarations. callType is the language's call
// node type; extract maps a call node to its callee name and qualifier.
func collectCalls(decl *sitter.Node, callType string, declSpans map[spanKey]struct{}, extract func(n *sitter.Node) (callSite, bool)) []callSite {
	var sites []callSite
	self := keyOf(decl)
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		k := keyOf(n)
		if k != self {
			if _, nested := declSpans[k]; nested {
				return
			}
		}
		if n.Type() == callType {
			if site, ok := extract(n); ok {
				sites = append(sites, site)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(decl)
	return sites
}

// precedingComment collects the contiguous block of comment siblings directly
// above n and returns the cleaned text. Used for languages whose doc
// convention is a leading comment block (Go, JavaScript, TypeScript).
func precedingComment(n *sitter.Node, content []byte) string {
	var parts []string
	expectedRow := n.StartPoint().Row
	for sib := n.PrevNamedSibling(); sib != nil && sib.Type() == "comment"; sib = sib.PrevNamedSibling() {
		if sib.EndPoint().Row+1 < expectedRow {
			break
		}
		parts = append([]string{nodeText(sib, content)}, parts...)
		expectedRow = sib.StartPoint().Row
	}
	if len(parts) == 0 {
		return ""
	}
	return cleanComment(strings.Join(parts, "\n"))
}

// cleanComment strips comment markers and trims each line.
func cleanComment(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "///"):
			line = strings.TrimSpace(strings.TrimPrefix(line, "///"))
		case strings.HasPrefix(line, "//"):
			line = strings.TrimSpace(strings.TrimPrefix(line, "//"))
		case strings.HasPrefix(line, "/**"):
			line = strings.TrimSpace(strings.TrimPrefix(line, "/**"))
		case strings.HasPrefix(line, "/*"):
			line = strings.TrimSpace(strings.TrimPrefix(line, "/*"))
		}
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		out = append(out, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// buildResult turns raw declarations into the FileResult: graph nodes with
// ids and source slices, cyclomatic complexity, and call references. Nested
// declaration subtrees are excluded from both metrics and call attribution.
func buildResult(raws []rawDecl, content []byte, relPath, language string, rules decisionRules, callType string, extract func(n *sitter.Node) (callSite, bool)) *FileResult {
	res := &FileResult{}
	declSpans := make(map[spanKey]struct{}, len(raws))
	for _, r := range raws {
		declSpans[keyOf(r.n)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(raws))
	for _, r := range raws {
		start, end := lineSpan(r.n)
		id := graph.NodeID(r.kind, r.name, relPath, start)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		node := &graph.Node{
			ID:         id,
			Name:       r.name,
			Kind:       r.kind,
			File:       relPath,
			StartLine:  start,
			EndLine:    end,
			Code:       nodeText(r.n, content),
			Doc:        r.doc,
			Language:   language,
			Cyclomatic: cyclomatic(r.n, content, rules, declSpans),
		}
		res.Decls = append(res.Decls, Decl{Node: node, Qualname: r.qualname})
		for _, site := range collectCalls(r.n, callType, declSpans, extract) {
			res.Calls = append(res.Calls, CallRef{
				SourceID:  id,
				Name:      site.name,
				Qualifier: site.qualifier,
			})
		}
	}
	return res
}
