// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/pkg/graph"
)

// Summarizer produces a freeform one-liner for an analysis. The engine
// treats it as best effort.
type Summarizer interface {
	Summarize(ctx context.Context, question string, snippets []graph.Snippet) (string, error)
}

// HTTPSummarizer calls an external summarizer service over JSON.
type HTTPSummarizer struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPSummarizer creates a summarizer client for baseURL.
func NewHTTPSummarizer(baseURL string, logger *slog.Logger) *HTTPSummarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSummarizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type summarizeSnippet struct {
	NodeID string `json:"node_id"`
	Code   string `json:"code"`
}

type summarizeRequest struct {
	Question string             `json:"question"`
	Snippets []summarizeSnippet `json:"snippets"`
}

type summarizeResponse struct {
	OneLiner string `json:"one_liner"`
}

// Summarize posts the question and snippets and returns the service's
// one-liner.
func (s *HTTPSummarizer) Summarize(ctx context.Context, question string, snippets []graph.Snippet) (string, error) {
	req := summarizeRequest{Question: question, Snippets: make([]summarizeSnippet, 0, len(snippets))}
	for _, sn := range snippets {
		req.Snippets = append(req.Snippets, summarizeSnippet{NodeID: sn.NodeID, Code: sn.Code})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", rgerr.Wrap(rgerr.KindInternal, "encode summarize request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/summarize", bytes.NewReader(payload))
	if err != nil {
		return "", rgerr.Wrap(rgerr.KindInternal, "build summarize request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", rgerr.Wrap(rgerr.KindInternal, "summarizer unreachable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", rgerr.Wrap(rgerr.KindInternal, "read summarize response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", rgerr.New(rgerr.KindInternal, fmt.Sprintf("summarizer returned status %d", resp.StatusCode))
	}

	var out summarizeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", rgerr.Wrap(rgerr.KindInternal, "decode summarize response", err)
	}
	return out.OneLiner, nil
}
