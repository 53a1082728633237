// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import (
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/kraklabs/repograph/pkg/graph"
)

// goExtractor extracts functions, methods, and struct/interface types from Go
// source.
type goExtractor struct {
	tsExtractor
}

func newGoExtractor(logger *slog.Logger) *goExtractor {
	return &goExtractor{tsExtractor: newTSBase("go", golang.GetLanguage(), logger)}
}

func (e *goExtractor) Language() string { return "go" }

var goDecisions = decisionRules{
	kinds: map[string]struct{}{
		"if_statement":       {},
		"for_statement":      {},
		"expression_case":    {},
		"type_case":          {},
		"communication_case": {},
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
		return text == "&&" || text == "||"
	},
}

func (e *goExtractor) Extract(content []byte, relPath string) (*FileResult, error) {
	tree, err := e.parse(content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if n := countErrors(root); n > 0 {
			e.logger.Warn("parser.go.syntax_errors", "path", relPath, "error_count", n)
		}
	}

	var raws []rawDecl
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				raws = append(raws, rawDecl{
					n:    n,
					kind: graph.KindFunction,
					name: nodeText(nameNode, content),
					doc:  precedingComment(n, content),
				})
			}
		case "method_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, content)
				qual := ""
				if recv := goReceiverType(n, content); recv != "" {
					qual = recv + "." + name
				}
				raws = append(raws, rawDecl{
					n:        n,
					kind:     graph.KindFunction,
					name:     name,
					qualname: qual,
					doc:      precedingComment(n, content),
				})
			}
		case "type_declaration":
			doc := precedingComment(n, content)
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "type_spec" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				typeNode := spec.ChildByFieldName("type")
				if nameNode == nil || typeNode == nil {
					continue
				}
				switch typeNode.Type() {
				case "struct_type", "interface_type":
					raws = append(raws, rawDecl{
						n:    spec,
						kind: graph.KindClass,
						name: nodeText(nameNode, content),
						doc:  doc,
					})
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
		case "selector_expression":
			field := fn.ChildByFieldName("field")
			operand := fn.ChildByFieldName("operand")
			if field == nil {
				return callSite{}, false
			}
			site := callSite{name: nodeText(field, content)}
			if operand != nil && operand.Type() == "identifier" {
				site.qualifier = nodeText(operand, content)
			}
			return site, true
		}
		return callSite{}, false
	}

	res := buildResult(raws, content, relPath, "go", goDecisions, "call_expression", extract)

	// Receiver-variable calls resolve against the method's own receiver
	// type: inside func (s *Server) run(), s.handle() targets Server.handle.
	qualifyGoReceivers(res, raws, content, relPath)

	// A file with no extractable declarations is represented by a file-level
	// node, which also anchors its import references.
	if len(res.Decls) == 0 {
		fileNode := makeFileNode(relPath, "go", content)
		res.Decls = append(res.Decls, Decl{Node: fileNode})
		for _, name := range goImports(root, content) {
			res.Imports = append(res.Imports, ImportRef{FileID: fileNode.ID, Name: name})
		}
	}
	return res, nil
}

// qualifyGoReceivers maps calls qualified by a method's receiver variable to
// the receiver type name.
func qualifyGoReceivers(res *FileResult, raws []rawDecl, content []byte, relPath string) {
	recvVar := make(map[string]string)  // node id -> receiver variable
	recvType := make(map[string]string) // node id -> receiver type
	for _, r := range raws {
		if r.n.Type() != "method_declaration" {
			continue
		}
		start, _ := lineSpan(r.n)
		id := graph.NodeID(r.kind, r.name, relPath, start)
		if name := goReceiverName(r.n, content); name != "" {
			recvVar[id] = name
		}
		if typ := goReceiverType(r.n, content); typ != "" {
			recvType[id] = typ
		}
	}
	for i := range res.Calls {
		c := &res.Calls[i]
		if c.Qualifier != "" && c.Qualifier == recvVar[c.SourceID] {
			c.Qualifier = recvType[c.SourceID]
		}
	}
}

// goReceiverType returns the bare receiver type name of a method declaration.
func goReceiverType(n *sitter.Node, content []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil || recv.NamedChildCount() == 0 {
		return ""
	}
	param := recv.NamedChild(0)
	typ := param.ChildByFieldName("type")
	if typ == nil {
		return ""
	}
	text := nodeText(typ, content)
	text = strings.TrimPrefix(text, "*")
	if i := strings.Index(text, "["); i > 0 {
		text = text[:i]
	}
	return text
}

// goReceiverName returns the receiver variable name of a method declaration.
func goReceiverName(n *sitter.Node, content []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil || recv.NamedChildCount() == 0 {
		return ""
	}
	param := recv.NamedChild(0)
	name := param.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	return nodeText(name, content)
}

// goImports collects imported package path stems.
func goImports(root *sitter.Node, content []byte) []string {
	var names []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "import_spec" {
			if pathNode := n.ChildByFieldName("path"); pathNode != nil {
				spec := strings.Trim(nodeText(pathNode, content), `"`)
				parts := strings.Split(spec, "/")
				names = append(names, parts[len(parts)-1])
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
