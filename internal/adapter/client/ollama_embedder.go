package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder produces embeddings through a local Ollama instance.
// Default backend; pairs with "nomic-embed-text" (768 dimensions).
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

func NewOllamaEmbedder(baseURL, model string) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &OllamaEmbedder{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}, nil
}

func (e *OllamaEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding response")
	}
	return resp.Embeddings[0], nil
}
