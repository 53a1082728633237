// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultModel is the embedding model reported when none is configured.
const DefaultModel = "all-MiniLM-L6-v2"

// Provider generates embeddings for document text.
type Provider interface {
	// Embed returns a unit-L2-normalized vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model returns the model name reported in the index journal.
	Model() string
}

// NewProvider creates a provider by type. Supported: "mock" (deterministic,
// for tests and offline runs), "ollama" (local server), "openai"
// (OpenAI-compatible API). Connection settings come from the environment.
func NewProvider(providerType string, logger *slog.Logger) (Provider, error) {
	model := os.Getenv("MODEL_NAME")
	if model == "" {
		model = DefaultModel
	}
	switch providerType {
	case "", "mock":
		return NewMockProvider(384, model, logger), nil
	case "ollama":
		baseURL := os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return NewOllamaProvider(baseURL, model, logger), nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for openai provider")
		}
		baseURL := os.Getenv("OPENAI_API_BASE")
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIProvider(apiKey, baseURL, model, logger), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", providerType)
	}
}

// normalize scales v to unit L2 norm in place and returns it.
func normalize(v []float32) []float32 {
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}

// MockProvider generates deterministic embeddings from a text hash. Not
// semantically meaningful; used by tests and offline smoke runs.
type MockProvider struct {
	dimension int
	model     string
	logger    *slog.Logger
}

// NewMockProvider creates a mock provider with the given dimension.
func NewMockProvider(dimension int, model string, logger *slog.Logger) *MockProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultModel
	}
	return &MockProvider{dimension: dimension, model: model, logger: logger}
}

func (m *MockProvider) Model() string { return m.model }

// Embed generates a deterministic vector from the djb2 hash of text.
func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := hashString(text)
	v := make([]float32, m.dimension)
	for i := 0; i < m.dimension; i++ {
		val := float32((hash+uint64(i)*7919)%10000) / 10000.0
		v[i] = val*2.0 - 1.0
	}
	return normalize(v), nil
}

func hashString(s string) uint64 {
	var hash uint64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	return hash
}

// OllamaProvider generates embeddings against a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(baseURL, model string, logger *slog.Logger) *OllamaProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			// Local models may be slow on first load.
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

func (o *OllamaProvider) Model() string { return o.model }

// Embed generates an embedding via the Ollama embeddings API. Nomic models
// get the "search_document:" prefix for asymmetric retrieval.
func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	prompt := text
	if strings.Contains(strings.ToLower(o.model), "nomic") {
		prompt = "search_document: " + text
	}

	jsonBody, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := o.baseURL + "/api/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request (is Ollama running at %s?): %w", o.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp ollamaErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}

	v := make([]float32, len(embedResp.Embedding))
	for i, x := range embedResp.Embedding {
		v[i] = float32(x)
	}
	return normalize(v), nil
}

// OpenAIProvider generates embeddings using OpenAI or compatible APIs.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

type openAIEmbedRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	EncodingFormat string `json:"encoding_format,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (o *OpenAIProvider) Model() string { return o.model }

// Embed generates an embedding via the OpenAI embeddings API.
func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonBody, err := json.Marshal(openAIEmbedRequest{
		Input:          text,
		Model:          o.model,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := o.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp openAIErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp openAIEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embedResp.Data) == 0 || len(embedResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned empty embedding")
	}

	v := make([]float32, len(embedResp.Data[0].Embedding))
	for i, x := range embedResp.Data[0].Embedding {
		v[i] = float32(x)
	}
	return normalize(v), nil
}
