// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package query

import (
	"fmt"
	"strings"

	"github.com/kraklabs/repograph/pkg/graph"
)

const (
	summaryMaxSteps    = 5
	summaryMaxRefs     = 3
	summaryDocCap      = 50
	summaryExcerptCap  = 50
	summaryMaxFileList = 3
)

// Summary is the structured analysis output. It is always produced locally;
// an external summarizer may only replace the one-liner.
type Summary struct {
	OneLiner      string    `json:"one_liner"`
	Steps         []string  `json:"steps"`
	InputsOutputs []string  `json:"inputs_outputs"`
	Caveats       []string  `json:"caveats"`
	NodeRefs      []NodeRef `json:"node_refs"`
}

// NodeRef points at one path node with a short code excerpt.
type NodeRef struct {
	NodeID      string `json:"node_id"`
	ExcerptLine string `json:"excerpt_line"`
}

// buildSummary derives the structured summary from the path snippets. All
// slices are non-nil so the JSON form is stable.
func buildSummary(query string, hits []Hit, snippets []graph.Snippet) *Summary {
	files := make([]string, 0)
	seen := make(map[string]struct{})
	for _, s := range snippets {
		file := s.File
		if file == "" {
			file = "unknown"
		}
		if _, dup := seen[file]; dup {
			continue
		}
		seen[file] = struct{}{}
		files = append(files, file)
	}

	steps := make([]string, 0, min(len(snippets), summaryMaxSteps))
	for i, s := range snippets {
		if i == summaryMaxSteps {
			break
		}
		doc := s.Doc
		if doc == "" {
			doc = "Code execution"
		}
		steps = append(steps, fmt.Sprintf("%d. %s in %s: %s", i+1, nodeName(s.NodeID), s.File, capString(doc, summaryDocCap)))
	}

	fileList := strings.Join(files[:min(len(files), summaryMaxFileList)], ", ")
	if len(files) > summaryMaxFileList {
		fileList += "..."
	}
	inputsOutputs := []string{
		fmt.Sprintf("Input: User query - '%s'", query),
		fmt.Sprintf("Output: Analysis of %d relevant code components", len(snippets)),
		fmt.Sprintf("Files analyzed: %s", fileList),
	}

	caveats := []string{
		"Analysis based on static code structure and semantic similarity",
		"Results limited to indexed code components",
		fmt.Sprintf("Search performed on top %d matches", len(hits)),
	}

	refs := make([]NodeRef, 0, min(len(snippets), summaryMaxRefs))
	for i, s := range snippets {
		if i == summaryMaxRefs {
			break
		}
		refs = append(refs, NodeRef{NodeID: s.NodeID, ExcerptLine: excerptLine(s.Code)})
	}

	return &Summary{
		OneLiner:      fmt.Sprintf("Analysis of %d code components across %d files related to: %s", len(snippets), len(files), query),
		Steps:         steps,
		InputsOutputs: inputsOutputs,
		Caveats:       caveats,
		NodeRefs:      refs,
	}
}

// emptyAnswer is the no-results shape. Slices are empty, not nil.
func emptyAnswer(query string) *Answer {
	return &Answer{
		AnswerPath: []string{},
		PathEdges:  []graph.Edge{},
		Snippets:   []graph.Snippet{},
		Summary: &Summary{
			OneLiner:      fmt.Sprintf("No relevant code found for query: %s", query),
			Steps:         []string{},
			InputsOutputs: []string{},
			Caveats:       []string{"No matching code components found"},
			NodeRefs:      []NodeRef{},
		},
	}
}

// nodeName extracts the declaration name from a canonical node id.
func nodeName(nodeID string) string {
	parts := strings.Split(nodeID, ":")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return "Component"
}

// excerptLine returns the first non-blank line of code, capped.
func excerptLine(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if len(trimmed) > summaryExcerptCap {
			return trimmed[:summaryExcerptCap] + "..."
		}
		return trimmed
	}
	return ""
}
