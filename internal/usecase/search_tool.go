package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"raggate/internal/domain/entity"
)

// SearchToolName is the built-in knowledge-base search tool the model
// may invoke mid-conversation.
const SearchToolName = "search_internal_documents"

// snippetLimit caps how much of each chunk is fed back to the model.
const snippetLimit = 500

type tenantKey struct{}

// WithTenant scopes tool executions under ctx to the given tenant.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

func tenantFrom(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey{}).(string)
	return tenant
}

// SearchToolDefinition declares the search tool's schema: a required
// query plus optional bounded top_k and score_threshold.
func SearchToolDefinition() entity.ToolDefinition {
	minK, maxK := float64(MinTopK), float64(MaxTopK)
	minScore, maxScore := 0.0, 1.0

	return entity.ToolDefinition{
		Name: SearchToolName,
		Description: "Search for information in the internal company knowledge base. " +
			"Use this when asked about company documents, employees, policies, " +
			"or any uploaded files. Returns relevant excerpts from the database.",
		Parameters: entity.ToolSchema{
			Type: "object",
			Properties: map[string]entity.ParamSpec{
				"query": {
					Type:        "string",
					Description: "The search query or question to find relevant information",
				},
				"top_k": {
					Type:        "integer",
					Description: "Maximum number of results to return",
					Minimum:     &minK,
					Maximum:     &maxK,
				},
				"score_threshold": {
					Type:        "number",
					Description: "Minimum similarity score for a result to be included",
					Minimum:     &minScore,
					Maximum:     &maxScore,
				},
			},
			Required: []string{"query"},
		},
	}
}

// NewSearchToolHandler binds the searcher to the tool contract. Store
// failures surface as handler errors (the registry turns them into
// error results); an empty result set is reported explicitly so the
// model knows retrieval ran and found nothing.
func NewSearchToolHandler(searcher *Searcher) ToolHandler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		req := entity.SearchRequest{
			Query:  args["query"].(string),
			Tenant: tenantFrom(ctx),
		}
		if topK, ok := args["top_k"].(float64); ok {
			req.TopK = int(topK)
		}
		if threshold, ok := args["score_threshold"].(float64); ok {
			req.ScoreThreshold = float32(threshold)
		}

		results, err := searcher.Search(ctx, req)
		if err != nil {
			return "", fmt.Errorf("searching knowledge base: %w", err)
		}
		if len(results) == 0 {
			return "No relevant documents found in the knowledge base.", nil
		}

		var b strings.Builder
		for i, r := range results {
			fmt.Fprintf(&b, "[Document %d: %s]\n%s\n\n", i+1, r.Source, truncateUTF8(r.Content, snippetLimit))
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
