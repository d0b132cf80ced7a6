package client

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder produces embeddings through the Gemini API, e.g. with
// "text-embedding-004". Alternative backend to the Ollama embedder for
// deployments already running on Vertex.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(ctx context.Context, projectID, location, model string) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

func NewGeminiEmbedderFromClient(c *genai.Client, model string) *GeminiEmbedder {
	return &GeminiEmbedder{client: c, model: model}
}

func (e *GeminiEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("embedder: empty embedding response")
	}
	return res.Embeddings[0].Values, nil
}
