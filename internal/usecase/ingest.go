package usecase

import (
	"context"
	"fmt"

	"raggate/internal/domain/entity"
	"raggate/internal/domain/repository"

	"github.com/rs/zerolog/log"
)

// Ingestor turns raw document text into embedded, stored chunks.
// Re-ingesting a document_id replaces its prior chunk set; the delete
// runs first so the operation is at-least-once idempotent.
type Ingestor struct {
	store     repository.VectorStore
	embedder  repository.Embedder
	chunkSize int
	overlap   int
}

func NewIngestor(store repository.VectorStore, embedder repository.Embedder, chunkSize, overlap int) *Ingestor {
	return &Ingestor{
		store:     store,
		embedder:  embedder,
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

func (i *Ingestor) Ingest(ctx context.Context, collection string, req entity.IngestRequest) ([]entity.DocumentChunk, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: document_id is required", entity.ErrInvalidRequest)
	}
	if req.Text == "" {
		return nil, fmt.Errorf("%w: text is required", entity.ErrInvalidRequest)
	}

	if err := i.store.DeleteDocument(ctx, collection, req.DocumentID); err != nil {
		return nil, fmt.Errorf("delete prior chunks: %w", err)
	}

	spans := SplitText(req.Text, i.chunkSize, i.overlap)
	chunks := make([]entity.DocumentChunk, len(spans))
	vectors := make([][]float32, len(spans))

	for ordinal, span := range spans {
		vector, err := i.embedder.CreateEmbedding(ctx, span)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", ordinal, err)
		}
		chunks[ordinal] = entity.DocumentChunk{
			ChunkID:    fmt.Sprintf("%s-%d", req.DocumentID, ordinal),
			DocumentID: req.DocumentID,
			Ordinal:    ordinal,
			Text:       span,
			Tenant:     req.Tenant,
			Source:     req.Source,
			Metadata:   req.Metadata,
		}
		vectors[ordinal] = vector
	}

	if err := i.store.UpsertChunks(ctx, collection, chunks, vectors); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	log.Info().Msgf("[INGEST] stored %d chunks for document %s", len(chunks), req.DocumentID)
	return chunks, nil
}

// SplitText slides a fixed-size window over the text with the given
// overlap between neighbours. Rune-based so multi-byte text never
// splits mid-character. Overlap must be smaller than size.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	var spans []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		spans = append(spans, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return spans
}
