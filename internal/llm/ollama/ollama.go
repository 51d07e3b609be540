// Package ollama implements the llm.Client and llm.Embedder interfaces
// against a local Ollama server using its native generate and embed APIs.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jkaninda/busara/internal/llm"
)

const (
	defaultBaseURL = "http://localhost:11434"
	generatePath   = "/api/generate"
	embedPath      = "/api/embed"
	// Older Ollama versions only expose the legacy embeddings endpoint.
	legacyEmbedPath = "/api/embeddings"
	defaultTimeout  = 120 * time.Second
)

// Client talks to an Ollama server.
type Client struct {
	model      string
	embedModel string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Ollama client.
type Option func(*Client)

// WithBaseURL overrides the server base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEmbedModel sets the model used for embeddings (defaults to the
// completion model).
func WithEmbedModel(model string) Option {
	return func(c *Client) { c.embedModel = model }
}

// NewClient creates an Ollama client for the given model.
func NewClient(model string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{
		model:      model,
		embedModel: model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "ollama" }

// Complete sends a prompt to /api/generate and returns the full response text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	}

	var resp generateResponse
	if err := c.post(ctx, generatePath, reqBody, &resp); err != nil {
		return "", err
	}

	c.logger.DebugContext(ctx, "completion finished",
		slog.String("model", c.model),
		slog.Int("prompt_chars", len(prompt)),
		slog.Int("response_chars", len(resp.Response)),
	)
	return resp.Response, nil
}

// Embed returns the embedding vector for text, trying the current embed API
// first and falling back to the legacy endpoint.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embedResponse
	err := c.post(ctx, embedPath, embedRequest{Model: c.embedModel, Input: text}, &resp)
	if err == nil && len(resp.Embeddings) > 0 {
		return resp.Embeddings[0], nil
	}

	var legacy legacyEmbedResponse
	if lerr := c.post(ctx, legacyEmbedPath, legacyEmbedRequest{Model: c.embedModel, Prompt: text}, &legacy); lerr != nil {
		if err != nil {
			return nil, fmt.Errorf("embed failed on both endpoints: %v; legacy: %w", err, lerr)
		}
		return nil, lerr
	}
	if len(legacy.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding for model %q", c.embedModel)
	}
	return legacy.Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama error (status %d): %s", httpResp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// --- Ollama API wire types (unexported) ---

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type legacyEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type legacyEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Compile-time checks.
var (
	_ llm.Client   = (*Client)(nil)
	_ llm.Embedder = (*Client)(nil)
)
