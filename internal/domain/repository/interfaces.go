package repository

import (
	"context"
	"time"

	"raggate/internal/domain/entity"
)

// ChatProvider is the narrow contract a model vendor adapter exposes.
// Errors crossing this boundary are classified via entity.ProviderError.
type ChatProvider interface {
	Name() string
	// Complete issues a non-streaming call; the response may carry tool calls.
	Complete(ctx context.Context, req entity.ProviderRequest) (*entity.Completion, error)
	// Stream issues a streaming call, invoking onDelta for each text
	// fragment, and returns the accumulated completion.
	Stream(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error)
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	UpsertChunks(ctx context.Context, collection string, chunks []entity.DocumentChunk, vectors [][]float32) error
	Query(ctx context.Context, collection string, vector []float32, tenant string, limit uint64, threshold float32) ([]entity.SearchResult, error)
	GetDocument(ctx context.Context, collection, documentID string) ([]entity.DocumentChunk, error)
	DeleteDocument(ctx context.Context, collection, documentID string) error
	ListDocuments(ctx context.Context, collection string) ([]entity.DocumentInfo, error)
	ListCollections(ctx context.Context) ([]entity.CollectionInfo, error)
}

// ResponseCache stores deterministic first-phase completions. A miss is
// (nil, nil), not an error.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*entity.Completion, error)
	Set(ctx context.Context, key string, resp *entity.Completion, ttl time.Duration) error
}

// UsageTracker accumulates winning-attempt token usage per user.
type UsageTracker interface {
	Record(ctx context.Context, user string, tokens int) error
	Total(ctx context.Context, user string) (int, error)
}

// HistoryStore persists finished conversation turns.
type HistoryStore interface {
	Append(ctx context.Context, conversationID, user string, messages []entity.Message) error
	List(ctx context.Context, user string, limit, offset int) ([]entity.ConversationSummary, error)
	Messages(ctx context.Context, conversationID string) ([]entity.Message, error)
	Delete(ctx context.Context, conversationID string) error
}
