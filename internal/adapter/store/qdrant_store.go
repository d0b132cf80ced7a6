package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"raggate/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// listScrollLimit bounds document listings; matches the upstream
// store's page ceiling.
const listScrollLimit = 1000

// QdrantStore persists document chunks with their embeddings. One
// point per chunk; the payload carries document id, ordinal, tenant
// and source so documents can be filtered, listed and cascade-deleted.
type QdrantStore struct {
	client            *qdrant.Client
	defaultCollection string
}

func NewQdrantStore(client *qdrant.Client, defaultCollection string) *QdrantStore {
	return &QdrantStore{
		client:            client,
		defaultCollection: defaultCollection,
	}
}

// InitCollection creates the default collection if it does not exist
// and ensures keyword indexes on document_id and tenant so filtered
// deletes and tenant-scoped queries stay fast.
func (s *QdrantStore) InitCollection(ctx context.Context, dim uint64) error {
	_, err := s.client.GetCollectionInfo(ctx, s.defaultCollection)
	if err != nil {
		st, ok := status.FromError(err)
		if ok && st.Code() == codes.NotFound {
			err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.defaultCollection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     dim,
					Distance: qdrant.Distance_Cosine,
				}),
			})
			if err != nil {
				return fmt.Errorf("failed to create collection: %w", err)
			}
		} else {
			return err
		}
	}

	for _, field := range []string{"document_id", "tenant"} {
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.defaultCollection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			// Index may already exist; not worth failing startup over.
			log.Warn().Msgf("[QDRANT] could not create %s index: %v", field, err)
		}
	}

	return nil
}

func (s *QdrantStore) collection(name string) string {
	if name == "" {
		return s.defaultCollection
	}
	return name
}

func (s *QdrantStore) UpsertChunks(ctx context.Context, collection string, chunks []entity.DocumentChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("qdrant: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	now := time.Now().Unix()
	for i, chunk := range chunks {
		payload := map[string]any{
			"chunk_id":    chunk.ChunkID,
			"document_id": chunk.DocumentID,
			"ordinal":     chunk.Ordinal,
			"text":        chunk.Text,
			"tenant":      chunk.Tenant,
			"source":      chunk.Source,
			"created_at":  now,
		}
		for k, v := range chunk.Metadata {
			payload["meta_"+k] = v
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection(collection),
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	return err
}

func (s *QdrantStore) Query(ctx context.Context, collection string, vector []float32, tenant string, limit uint64, threshold float32) ([]entity.SearchResult, error) {
	var filter *qdrant.Filter
	if tenant != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("tenant", tenant)},
		}
	}

	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection(collection),
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: &threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	results := make([]entity.SearchResult, 0, len(res))
	for _, hit := range res {
		r := resultFromPayload(hit.Payload)
		r.Score = hit.Score
		results = append(results, r)
	}
	return results, nil
}

func (s *QdrantStore) GetDocument(ctx context.Context, collection, documentID string) ([]entity.DocumentChunk, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection(collection),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		},
		Limit:       qdrant.PtrOf(uint32(listScrollLimit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll: %w", err)
	}
	if len(points) == 0 {
		return nil, entity.ErrResourceNotFound
	}

	chunks := make([]entity.DocumentChunk, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, chunkFromPayload(p.Payload))
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Ordinal < chunks[j].Ordinal })
	return chunks, nil
}

// DeleteDocument removes every chunk belonging to documentID.
func (s *QdrantStore) DeleteDocument(ctx context.Context, collection, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection(collection),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

func (s *QdrantStore) ListDocuments(ctx context.Context, collection string) ([]entity.DocumentInfo, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection(collection),
		Limit:          qdrant.PtrOf(uint32(listScrollLimit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll: %w", err)
	}

	byDoc := make(map[string]*entity.DocumentInfo)
	var order []string
	for _, p := range points {
		docID := p.Payload["document_id"].GetStringValue()
		info, ok := byDoc[docID]
		if !ok {
			info = &entity.DocumentInfo{
				DocumentID: docID,
				Source:     p.Payload["source"].GetStringValue(),
			}
			byDoc[docID] = info
			order = append(order, docID)
		}
		info.ChunkCount++
	}

	docs := make([]entity.DocumentInfo, 0, len(order))
	for _, id := range order {
		docs = append(docs, *byDoc[id])
	}
	return docs, nil
}

func (s *QdrantStore) ListCollections(ctx context.Context) ([]entity.CollectionInfo, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("qdrant list collections: %w", err)
	}

	infos := make([]entity.CollectionInfo, 0, len(names))
	for _, name := range names {
		count, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: name})
		if err != nil {
			return nil, fmt.Errorf("qdrant count %s: %w", name, err)
		}
		infos = append(infos, entity.CollectionInfo{Name: name, Points: count})
	}
	return infos, nil
}

func resultFromPayload(payload map[string]*qdrant.Value) entity.SearchResult {
	title := payload["meta_title"].GetStringValue()
	if title == "" {
		title = payload["source"].GetStringValue()
	}
	return entity.SearchResult{
		ChunkID:    payload["chunk_id"].GetStringValue(),
		DocumentID: payload["document_id"].GetStringValue(),
		Ordinal:    int(payload["ordinal"].GetIntegerValue()),
		Title:      title,
		Content:    payload["text"].GetStringValue(),
		Source:     payload["source"].GetStringValue(),
	}
}

func chunkFromPayload(payload map[string]*qdrant.Value) entity.DocumentChunk {
	chunk := entity.DocumentChunk{
		ChunkID:    payload["chunk_id"].GetStringValue(),
		DocumentID: payload["document_id"].GetStringValue(),
		Ordinal:    int(payload["ordinal"].GetIntegerValue()),
		Text:       payload["text"].GetStringValue(),
		Tenant:     payload["tenant"].GetStringValue(),
		Source:     payload["source"].GetStringValue(),
	}
	for k, v := range payload {
		if len(k) > 5 && k[:5] == "meta_" {
			if chunk.Metadata == nil {
				chunk.Metadata = make(map[string]string)
			}
			chunk.Metadata[k[5:]] = v.GetStringValue()
		}
	}
	return chunk
}
