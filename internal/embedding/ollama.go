// Package embedding produces text embeddings through an Ollama server.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Embedder turns text into a vector suitable for similarity search
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds Ollama connection configuration
type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// OllamaClient implements Embedder against Ollama's REST API
type OllamaClient struct {
	endpoint string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

// NewOllamaClient creates an Ollama-backed embedder
func NewOllamaClient(config Config, logger *slog.Logger) *OllamaClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OllamaClient{
		endpoint: config.Endpoint,
		model:    config.Model,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests an embedding for text from the Ollama server
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding request: %w", err)
	}

	url := c.endpoint + "/api/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("Embedding request failed",
			slog.String("endpoint", c.endpoint),
			slog.String("model", c.model),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		c.logger.Error("Embedding request rejected",
			slog.String("model", c.model),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(raw)),
		)
		return nil, fmt.Errorf("embedding request returned status %d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding response contained no vector")
	}

	return parsed.Embedding, nil
}
