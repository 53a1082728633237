// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import (
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/kraklabs/repograph/pkg/graph"
)

// pythonExtractor extracts functions and classes from Python source.
type pythonExtractor struct {
	tsExtractor
}

func newPythonExtractor(logger *slog.Logger) *pythonExtractor {
	return &pythonExtractor{tsExtractor: newTSBase("python", python.GetLanguage(), logger)}
}

func (e *pythonExtractor) Language() string { return "python" }

var pythonDecisions = decisionRules{
	kinds: map[string]struct{}{
		"if_statement":           {},
		"elif_clause":            {},
		"for_statement":          {},
		"while_statement":        {},
		"except_clause":          {},
		"case_clause":            {},
		"conditional_expression": {},
		"if_clause":              {},
	},
	isLogical: func(n *sitter.Node, content []byte) bool {
		return n.Type() == "boolean_operator"
	},
}

func (e *pythonExtractor) Extract(content []byte, relPath string) (*FileResult, error) {
	tree, err := e.parse(content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if n := countErrors(root); n > 0 {
			e.logger.Warn("parser.python.syntax_errors", "path", relPath, "error_count", n)
		}
	}

	var raws []rawDecl
	var classStack []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_definition":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, content)
				qual := ""
				if len(classStack) > 0 {
					qual = classStack[len(classStack)-1] + "." + name
				}
				raws = append(raws, rawDecl{
					n:        n,
					kind:     graph.KindFunction,
					name:     name,
					qualname: qual,
					doc:      pyDocstring(n, content),
				})
			}
		case "class_definition":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, content)
				raws = append(raws, rawDecl{
					n:    n,
					kind: graph.KindClass,
					name: name,
					doc:  pyDocstring(n, content),
				})
				classStack = append(classStack, name)
				defer func() { classStack = classStack[:len(classStack)-1] }()
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	extract := func(n *sitter.Node) (callSite, bool) {
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return callSite{}, false
		}
		switch fn.Type() {
		case "identifier":
			return callSite{name: nodeText(fn, content)}, true
		case "attribute":
			attr := fn.ChildByFieldName("attribute")
			obj := fn.ChildByFieldName("object")
			if attr == nil {
				return callSite{}, false
			}
			site := callSite{name: nodeText(attr, content)}
			if obj != nil && obj.Type() == "identifier" {
				site.qualifier = nodeText(obj, content)
			}
			return site, true
		}
		return callSite{}, false
	}

	res := buildResult(raws, content, relPath, "python", pythonDecisions, "call", extract)

	// A file with no extractable declarations is represented by a file-level
	// node, which also anchors its import references.
	if len(res.Decls) == 0 {
		fileNode := makeFileNode(relPath, "python", content)
		res.Decls = append(res.Decls, Decl{Node: fileNode})
		for _, name := range pyImports(root, content) {
			res.Imports = append(res.Imports, ImportRef{FileID: fileNode.ID, Name: name})
		}
	}

	// Calls qualified by "self" resolve against the enclosing class.
	qualifyPySelf(res)
	return res, nil
}

// qualifyPySelf rewrites "self"-qualified call references to use the caller's
// class name, so they can match receiver-qualified declarations.
func qualifyPySelf(res *FileResult) {
	class := make(map[string]string)
	for _, d := range res.Decls {
		if d.Qualname != "" {
			if dot := strings.Index(d.Qualname, "."); dot > 0 {
				class[d.Node.ID] = d.Qualname[:dot]
			}
		}
	}
	for i := range res.Calls {
		if res.Calls[i].Qualifier == "self" {
			res.Calls[i].Qualifier = class[res.Calls[i].SourceID]
		}
	}
}

// pyDocstring returns the docstring of a function or class definition.
func pyDocstring(n *sitter.Node, content []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return stripPyString(nodeText(str, content))
}

// stripPyString removes string prefixes and quote delimiters.
func stripPyString(s string) string {
	s = strings.TrimLeft(s, "rRbBuUfF")
	for _, q := range []string{`"""`, "'''", `"`, "'"} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}

// pyImports collects imported module and symbol names at file level.
func pyImports(root *sitter.Node, content []byte) []string {
	var names []string
	add := func(dotted string) {
		parts := strings.Split(dotted, ".")
		names = append(names, parts[len(parts)-1])
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement", "import_from_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				switch child.Type() {
				case "dotted_name":
					add(nodeText(child, content))
				case "aliased_import":
					if name := child.ChildByFieldName("name"); name != nil {
						add(nodeText(name, content))
					}
				}
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return names
}
