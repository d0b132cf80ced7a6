package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"raggate/internal/domain/entity"
	"raggate/internal/domain/repository"
)

// Search parameter bounds; top_k outside this range is rejected at the
// tool boundary before a query ever runs.
const (
	MinTopK = 1
	MaxTopK = 20
)

// hybridFetchFactor widens the vector candidate set before reranking so
// the keyword pass has material to reorder.
const hybridFetchFactor = 3

// Searcher answers query-time retrieval: embed once, tenant-scoped
// similarity search, threshold filter, optional keyword rerank,
// deterministic ordering.
type Searcher struct {
	store    repository.VectorStore
	embedder repository.Embedder

	defaultTopK      int
	defaultThreshold float32
	hybrid           bool
	keywordWeight    float32
}

func NewSearcher(store repository.VectorStore, embedder repository.Embedder, defaultTopK int, defaultThreshold float32, hybrid bool, keywordWeight float32) *Searcher {
	return &Searcher{
		store:            store,
		embedder:         embedder,
		defaultTopK:      defaultTopK,
		defaultThreshold: defaultThreshold,
		hybrid:           hybrid,
		keywordWeight:    keywordWeight,
	}
}

// Search returns results in descending score order, ties broken by the
// earlier chunk. An empty slice is a valid answer, not an error.
func (s *Searcher) Search(ctx context.Context, req entity.SearchRequest) ([]entity.SearchResult, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query is required", entity.ErrInvalidRequest)
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.defaultTopK
	}
	if topK < MinTopK || topK > MaxTopK {
		return nil, fmt.Errorf("%w: top_k %d outside [%d,%d]", entity.ErrInvalidRequest, topK, MinTopK, MaxTopK)
	}

	threshold := req.ScoreThreshold
	if threshold == 0 {
		threshold = s.defaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: score_threshold %v outside [0,1]", entity.ErrInvalidRequest, threshold)
	}

	vector, err := s.embedder.CreateEmbedding(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	fetch := uint64(topK)
	if s.hybrid {
		fetch *= hybridFetchFactor
	}

	results, err := s.store.Query(ctx, req.Collection, vector, req.Tenant, fetch, threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if s.hybrid {
		results = s.rerank(req.Query, results, threshold)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Ordinal < results[j].Ordinal
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// rerank combines the vector similarity with a keyword-match score and
// re-applies the threshold on the combined value.
func (s *Searcher) rerank(query string, results []entity.SearchResult, threshold float32) []entity.SearchResult {
	out := results[:0]
	for _, r := range results {
		combined := (1-s.keywordWeight)*r.Score + s.keywordWeight*keywordScore(query, r.Content)
		if combined < threshold {
			continue
		}
		r.Score = combined
		out = append(out, r)
	}
	return out
}

// keywordScore is the fraction of query terms present in the content,
// case-insensitive. Deterministic by construction.
func keywordScore(query, content string) float32 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)

	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float32(matched) / float32(len(terms))
}
