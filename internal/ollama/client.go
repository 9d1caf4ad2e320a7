// Package ollama talks to a local Ollama server for embeddings and, when
// configured as the generative provider, for text generation.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/twin/internal/oracle"
)

const defaultBaseURL = "http://localhost:11434"

// Client implements oracle.Embedder and oracle.Generator.
type Client struct {
	baseURL    string
	embedModel string
	genModel   string
	client     *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, embedModel, genModel string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	if genModel == "" {
		genModel = "llama3.1"
	}
	return &Client{
		baseURL:    baseURL,
		embedModel: embedModel,
		genModel:   genModel,
		client:     &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

// EmbedModel names the model vectors come from, used to key cached vectors.
func (c *Client) EmbedModel() string { return c.embedModel }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var out embedResponse
	if err := c.post(ctx, "/api/embeddings", embedRequest{Model: c.embedModel, Prompt: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, oracle.Unavailable("ollama embed", fmt.Errorf("empty embedding"))
	}
	c.logger.Debug("embedded text", "model", c.embedModel, "dims", len(out.Embedding), "chars", len(text))
	return out.Embedding, nil
}

type generateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate runs a non-streaming completion. Schema requests switch Ollama
// into JSON output mode.
func (c *Client) Generate(ctx context.Context, req oracle.Request) (string, error) {
	body := generateRequest{
		Model:   c.genModel,
		System:  req.System,
		Prompt:  req.FullPrompt(),
		Options: map[string]any{"temperature": 0},
	}
	if req.Schema != "" {
		body.Format = "json"
	}
	if req.MaxTokens > 0 {
		body.Options["num_predict"] = req.MaxTokens
	}

	var out generateResponse
	if err := c.post(ctx, "/api/generate", body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return oracle.Unavailable("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return oracle.Unavailable("ollama", fmt.Errorf("%s returned status %d", path, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oracle.Unavailable("ollama", fmt.Errorf("decode response: %w", err))
	}
	return nil
}
