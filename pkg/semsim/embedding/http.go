package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// API types understood by HTTPEmbedder.
const (
	APIOpenAI = "openai" // POST {base}/embeddings
	APIOllama = "ollama" // POST {base}/api/embed
)

// HTTPEmbedder generates embeddings through an OpenAI-compatible or Ollama API.
// It is safe for concurrent use.
type HTTPEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	apiType string
	client  *http.Client
	limiter *rate.Limiter // nil means unlimited
}

// HTTPOptions configures an HTTPEmbedder.
type HTTPOptions struct {
	BaseURL string
	APIKey  string
	Model   string
	APIType string
	Timeout time.Duration
	// RequestsPerSecond limits the request rate; zero disables limiting.
	RequestsPerSecond float64
}

type openAIRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type ollamaRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewHTTPEmbedder creates an embedder for the given endpoint.
func NewHTTPEmbedder(opts HTTPOptions) *HTTPEmbedder {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.APIType == "" {
		opts.APIType = APIOpenAI
	}
	e := &HTTPEmbedder{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		model:   opts.Model,
		apiType: opts.APIType,
		client:  &http.Client{Timeout: opts.Timeout},
	}
	if opts.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return e
}

// Model returns the embedding model name.
func (e *HTTPEmbedder) Model() string { return e.model }

// Close is a no-op.
func (e *HTTPEmbedder) Close() error { return nil }

// Embed generates an embedding vector for text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed: rate limiter: %w", err)
		}
	}

	var (
		url  string
		body any
	)
	switch e.apiType {
	case APIOllama:
		url = e.baseURL + "/api/embed"
		body = ollamaRequest{Model: e.model, Input: text}
	default:
		url = e.baseURL + "/embeddings"
		body = openAIRequest{Input: text, Model: e.model}
	}

	data, err := e.post(ctx, url, body)
	if err != nil {
		return nil, err
	}

	var vec []float32
	switch e.apiType {
	case APIOllama:
		var resp ollamaResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("embed: failed to parse response: %w", err)
		}
		if len(resp.Embeddings) > 0 {
			vec = resp.Embeddings[0]
		}
	default:
		var resp openAIResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("embed: failed to parse response: %w", err)
		}
		if len(resp.Data) > 0 {
			vec = resp.Data[0].Embedding
		}
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embed: no embeddings returned")
	}
	return vec, nil
}

func (e *HTTPEmbedder) post(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("embed: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embed: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed: request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("embed: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed: API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
