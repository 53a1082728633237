// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/kraklabs/repograph/pkg/graph"
)

// jsLikeExtractor covers JavaScript and TypeScript, which share a walker.
// TypeScript adds interfaces, type-only signatures, and method signatures.
type jsLikeExtractor struct {
	tsExtractor
	typescript bool
}

func newJavaScriptExtractor(logger *slog.Logger) *jsLikeExtractor {
	return &jsLikeExtractor{tsExtractor: newTSBase("javascript", javascript.GetLanguage(), logger)}
}

func newTypeScriptExtractor(logger *slog.Logger) *jsLikeExtractor {
	return &jsLikeExtractor{
		tsExtractor: newTSBase("typescript", typescript.GetLanguage(), logger),
		typescript:  true,
	}
}

func (e *jsLikeExtractor) Language() string { return e.language }

var jsDecisions = decisionRules{
	kinds: map[string]struct{}{
		"if_statement":       {},
		"for_statement":      {},
		"for_in_statement":   {},
		"while_statement":    {},
		"do_statement":       {},
		"switch_case":        {},
		"catch_clause":       {},
		"ternary_expression": {},
	},
	isLogical: func(n *sitter.Node, content []byte) bool {
		if n.Type() != "binary_expression" {
			return false
		}
		op := n.ChildByFieldName("operator")
		if op == nil {
			return false
		}
		text := nodeText(op, content)
		return text == "&&" || text == "||" || text == "??"
	},
}

func (e *jsLikeExtractor) Extract(content []byte, relPath string) (*FileResult, error) {
	tree, err := e.parse(content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if n := countErrors(root); n > 0 {
			e.logger.Warn("parser."+e.language+".syntax_errors", "path", relPath, "error_count", n)
		}
	}

	var raws []rawDecl
	var classStack []string
	add := func(n *sitter.Node, kind, name string) {
		qual := ""
		if kind == graph.KindFunction && len(classStack) > 0 {
			qual = classStack[len(classStack)-1] + "." + name
		}
		raws = append(raws, rawDecl{
			n:        n,
			kind:     kind,
			name:     name,
			qualname: qual,
			doc:      precedingComment(n, content),
		})
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration", "generator_function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				add(n, graph.KindFunction, nodeText(nameNode, content))
			}
		case "method_definition":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				add(n, graph.KindFunction, nodeText(nameNode, content))
			}
		case "variable_declarator":
			nameNode := n.ChildByFieldName("name")
			valueNode := n.ChildByFieldName("value")
			if nameNode != nil && valueNode != nil && nameNode.Type() == "identifier" {
				switch valueNode.Type() {
				case "arrow_function", "function_expression", "function", "generator_function":
					add(n, graph.KindFunction, nodeText(nameNode, content))
				}
			}
		case "class_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, content)
				add(n, graph.KindClass, name)
				classStack = append(classStack, name)
				defer func() { classStack = classStack[:len(classStack)-1] }()
			}
		case "interface_declaration":
			if e.typescript {
				if nameNode := n.ChildByFieldName("name"); nameNode != nil {
					add(n, graph.KindClass, nodeText(nameNode, content))
				}
			}
		case "function_signature", "method_signature":
			if e.typescript {
				if nameNode := n.ChildByFieldName("name"); nameNode != nil {
					add(n, graph.KindFunction, nodeText(nameNode, content))
				}
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
		case "member_expression":
			prop := fn.ChildByFieldName("property")
			obj := fn.ChildByFieldName("object")
			if prop == nil {
				return callSite{}, false
			}
			site := callSite{name: nodeText(prop, content)}
			if obj != nil {
				switch obj.Type() {
				case "identifier":
					site.qualifier = nodeText(obj, content)
				case "this":
					site.qualifier = "this"
				}
			}
			return site, true
		}
		return callSite{}, false
	}

	res := buildResult(raws, content, relPath, e.language, jsDecisions, "call_expression", extract)

	// Rewrite "this"-qualified calls to the enclosing class, mirroring the
	// Python "self" handling.
	qualifyJSThis(res)

	// A file with no extractable declarations is represented by a file-level
	// node, which also anchors its import references.
	if len(res.Decls) == 0 {
		fileNode := makeFileNode(relPath, e.language, content)
		res.Decls = append(res.Decls, Decl{Node: fileNode})
		for _, name := range jsImports(root, content) {
			res.Imports = append(res.Imports, ImportRef{FileID: fileNode.ID, Name: name})
		}
	}
	return res, nil
}

func qualifyJSThis(res *FileResult) {
	class := make(map[string]string)
	for _, d := range res.Decls {
		if d.Qualname != "" {
			if dot := strings.Index(d.Qualname, "."); dot > 0 {
				class[d.Node.ID] = d.Qualname[:dot]
			}
		}
	}
	for i := range res.Calls {
		if res.Calls[i].Qualifier == "this" {
			res.Calls[i].Qualifier = class[res.Calls[i].SourceID]
		}
	}
}

// jsImports collects imported module stems and named symbols.
func jsImports(root *sitter.Node, content []byte) []string {
	var names []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "import_statement" {
			if src := n.ChildByFieldName("source"); src != nil {
				spec := strings.Trim(nodeText(src, content), `"'`)
				stem := path.Base(spec)
				stem = strings.TrimSuffix(stem, path.Ext(stem))
				if stem != "" && stem != "." {
					names = append(names, stem)
				}
			}
			names = append(names, jsImportedSymbols(n, content)...)
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return names
}

// jsImportedSymbols collects identifiers bound by an import clause.
func jsImportedSymbols(stmt *sitter.Node, content []byte) []string {
	var names []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_specifier":
			if name := n.ChildByFieldName("name"); name != nil {
				names = append(names, nodeText(name, content))
			}
			return
		case "identifier":
			names = append(names, nodeText(n, content))
			return
		case "string":
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		if child.Type() == "import_clause" {
			walk(child)
		}
	}
	return names
}
