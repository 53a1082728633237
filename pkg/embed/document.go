// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package embed

import (
	"fmt"
	"strings"

	"github.com/kraklabs/repograph/pkg/graph"
)

const (
	// docMaxLines bounds the code section of an embedding document.
	docMaxLines = 40
	// docTextCap bounds the documentation section in characters.
	docTextCap = 2000
)

// MakeDocument renders a node as the markdown document fed to the embedding
// model: title with location, signature, documentation, code excerpt, and
// metrics. Sections with no content are omitted; long content is truncated,
// never dropped.
func MakeDocument(n *graph.Node) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("# %s - %s:%d", n.Name, n.File, n.StartLine))

	lang := n.Language
	if lang == "" {
		lang = "text"
	}

	codeLines := strings.Split(n.Code, "\n")
	snippetLines := codeLines
	if len(snippetLines) > docMaxLines {
		snippetLines = snippetLines[:docMaxLines]
	}
	snippet := strings.Join(snippetLines, "\n")
	if len(codeLines) > docMaxLines {
		snippet += fmt.Sprintf("\n... (%d more lines)", len(codeLines)-docMaxLines)
	}

	if signature := firstLine(snippet); signature != "" {
		parts = append(parts, fmt.Sprintf("\n## Signature\n```%s\n%s\n```", lang, signature))
	}

	if doc := strings.TrimSpace(n.Doc); doc != "" {
		if len(doc) > docTextCap {
			doc = doc[:docTextCap] + "..."
		}
		parts = append(parts, "\n## Documentation\n"+doc)
	}

	if snippet != "" {
		parts = append(parts, fmt.Sprintf("\n## Code\n```%s\n%s\n```", lang, snippet))
	}

	parts = append(parts, fmt.Sprintf("\n## Metrics\nLines of code: %d | Complexity: %d", n.LOC, n.Cyclomatic))
	return strings.Join(parts, "\n")
}

// MakeDocuments renders documents for all nodes, in node order.
func MakeDocuments(nodes []*graph.Node) []string {
	docs := make([]string, len(nodes))
	for i, n := range nodes {
		docs[i] = MakeDocument(n)
	}
	return docs
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
