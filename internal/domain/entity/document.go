package entity

// DocumentChunk is the unit of embedding and storage: a bounded span of
// a source document. Chunks are immutable once stored and removed only
// when their parent document is deleted.
type DocumentChunk struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Ordinal    int               `json:"ordinal"`
	Text       string            `json:"text"`
	Tenant     string            `json:"tenant"`
	Source     string            `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SearchResult is one scored hit from a similarity search. Results are
// transient and recomputed per query.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Score      float32 `json:"score"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
}

// DocumentInfo summarises an ingested document for listings.
type DocumentInfo struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	ChunkCount int    `json:"chunk_count"`
}

// CollectionInfo names a vector collection and its point count.
type CollectionInfo struct {
	Name   string `json:"name"`
	Points uint64 `json:"points"`
}

// IngestRequest is the contract consumed from the upload collaborator.
// Re-invocation with the same DocumentID replaces all prior chunks.
type IngestRequest struct {
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Tenant     string            `json:"tenant"`
	Source     string            `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SearchRequest is the contract consumed by the search tool handler.
type SearchRequest struct {
	Query          string  `json:"query"`
	TopK           int     `json:"top_k"`
	ScoreThreshold float32 `json:"score_threshold"`
	Tenant         string  `json:"tenant,omitempty"`
	Collection     string  `json:"collection,omitempty"`
}
