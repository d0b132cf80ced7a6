package usecase

import (
	"context"
	"sync"
	"time"

	"raggate/internal/domain/entity"
)

// fakeProvider implements repository.ChatProvider with per-test
// behavior injected through function fields.
type fakeProvider struct {
	name         string
	completeFunc func(ctx context.Context, req entity.ProviderRequest) (*entity.Completion, error)
	streamFunc   func(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error)

	mu            sync.Mutex
	completeCalls int
	streamCalls   int
	lastStreamReq entity.ProviderRequest
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req entity.ProviderRequest) (*entity.Completion, error) {
	f.mu.Lock()
	f.completeCalls++
	f.mu.Unlock()
	return f.completeFunc(ctx, req)
}

func (f *fakeProvider) Stream(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error) {
	f.mu.Lock()
	f.streamCalls++
	f.lastStreamReq = req
	f.mu.Unlock()
	return f.streamFunc(ctx, req, onDelta)
}

// fakeEmbedder returns a fixed vector unless overridden.
type fakeEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     int
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.embedFunc != nil {
		return f.embedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// fakeStore records mutations and serves canned query results.
type fakeStore struct {
	queryFunc func(ctx context.Context, collection string, vector []float32, tenant string, limit uint64, threshold float32) ([]entity.SearchResult, error)

	mu       sync.Mutex
	chunks   map[string][]entity.DocumentChunk
	deleted  []string
	upserted int
}

func newFakeStore() *fakeStore {
	return &fakeStore{chunks: make(map[string][]entity.DocumentChunk)}
}

func (f *fakeStore) UpsertChunks(ctx context.Context, collection string, chunks []entity.DocumentChunk, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted++
	for _, c := range chunks {
		f.chunks[c.DocumentID] = append(f.chunks[c.DocumentID], c)
	}
	return nil
}

func (f *fakeStore) Query(ctx context.Context, collection string, vector []float32, tenant string, limit uint64, threshold float32) ([]entity.SearchResult, error) {
	if f.queryFunc != nil {
		return f.queryFunc(ctx, collection, vector, tenant, limit, threshold)
	}
	return nil, nil
}

func (f *fakeStore) GetDocument(ctx context.Context, collection, documentID string) ([]entity.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks[documentID], nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, collection, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	delete(f.chunks, documentID)
	return nil
}

func (f *fakeStore) ListDocuments(ctx context.Context, collection string) ([]entity.DocumentInfo, error) {
	return nil, nil
}

func (f *fakeStore) ListCollections(ctx context.Context) ([]entity.CollectionInfo, error) {
	return nil, nil
}

// fakeCache is an in-memory ResponseCache.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*entity.Completion
	gets    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*entity.Completion)}
}

func (f *fakeCache) Get(ctx context.Context, key string) (*entity.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if resp, ok := f.entries[key]; ok {
		clone := *resp
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, resp *entity.Completion, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	clone := *resp
	f.entries[key] = &clone
	return nil
}

// fakeUsage counts recorded tokens per user.
type fakeUsage struct {
	mu     sync.Mutex
	totals map[string]int
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{totals: make(map[string]int)}
}

func (f *fakeUsage) Record(ctx context.Context, user string, tokens int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totals[user] += tokens
	return nil
}

func (f *fakeUsage) Total(ctx context.Context, user string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totals[user], nil
}
