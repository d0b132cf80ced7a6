package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"raggate/internal/adapter/api"
	"raggate/internal/adapter/client"
	"raggate/internal/adapter/store"
	"raggate/internal/config"
	"raggate/internal/domain/repository"
	"raggate/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

func main() {
	if err := godotenv.Load(".env.dev"); err != nil {
		log.Info().Msg("no .env.dev file, using system environment")
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx := context.Background()

	cfg, err := config.Load(envOr("PROVIDERS_CONFIG", "providers.yaml"))
	if err != nil {
		log.Fatal().Msgf("load config: %v", err)
	}

	// Redis for the detection cache and per-user token accounting.
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	qClient, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.QdrantHost,
		Port: cfg.QdrantPort,
	})
	if err != nil {
		log.Fatal().Msgf("connect to qdrant: %v", err)
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		log.Fatal().Msgf("init embedder: %v", err)
	}

	routed, err := buildProviders(ctx, cfg)
	if err != nil {
		log.Fatal().Msgf("init providers: %v", err)
	}

	vectorStore := store.NewQdrantStore(qClient, cfg.QdrantCollection)
	if err := vectorStore.InitCollection(ctx, uint64(cfg.EmbeddingDim)); err != nil {
		log.Fatal().Msgf("init qdrant collection: %v", err)
	}

	cache := store.NewRedisCache(rdb)
	usage := store.NewRedisUsage(rdb)

	var history repository.HistoryStore
	if cfg.HistoryPath != "" {
		sqliteHistory, err := store.NewSQLiteHistory(cfg.HistoryPath)
		if err != nil {
			log.Fatal().Msgf("init history store: %v", err)
		}
		defer sqliteHistory.Close()
		history = sqliteHistory
	}

	gateway := usecase.NewGateway(routed, cache, usage, cfg.CacheTTL)

	searcher := usecase.NewSearcher(vectorStore, embedder, cfg.DefaultTopK, cfg.ScoreThreshold, cfg.HybridSearch, cfg.KeywordWeight)
	ingestor := usecase.NewIngestor(vectorStore, embedder, cfg.ChunkSize, cfg.ChunkOverlap)

	registry := usecase.NewToolRegistry(cfg.ToolTimeout, cfg.ToolParallelism)
	if err := registry.Register(usecase.SearchToolDefinition(), usecase.NewSearchToolHandler(searcher)); err != nil {
		log.Fatal().Msgf("register search tool: %v", err)
	}

	orchestrator := usecase.NewOrchestrator(gateway, registry, history, cfg.TurnTimeout)

	go warmUp(embedder)

	app := fiber.New(fiber.Config{
		AppName: "RAGGate",
	})

	chatHandler := api.NewChatHandler(orchestrator, gateway, cfg.Providers)
	docHandler := api.NewDocumentHandler(ingestor, searcher, vectorStore)
	var historyHandler *api.HistoryHandler
	if history != nil {
		historyHandler = api.NewHistoryHandler(history)
	}
	api.SetupRouter(app, chatHandler, docHandler, historyHandler)

	log.Info().Msgf("RAGGate listening on port %s", cfg.Port)
	log.Fatal().Err(app.Listen(":" + cfg.Port)).Msg("server stopped")
}

// buildEmbedder selects the embedding backend. Ollama runs locally and
// is the default; Gemini requires Vertex AI credentials.
func buildEmbedder(ctx context.Context, cfg *config.Config) (repository.Embedder, error) {
	switch cfg.EmbeddingBackend {
	case "ollama":
		return client.NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.EmbeddingModel)
	case "gemini":
		return client.NewGeminiEmbedder(ctx, cfg.GoogleProject, cfg.GoogleLocation, cfg.EmbeddingModel)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.EmbeddingBackend)
	}
}

// buildProviders constructs one adapter per providers.yaml entry,
// preserving the priority order config.Load established. Gemini entries
// share a single genai client.
func buildProviders(ctx context.Context, cfg *config.Config) ([]usecase.RoutedProvider, error) {
	var genaiClient *genai.Client

	routed := make([]usecase.RoutedProvider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		apiKey := os.Getenv(pc.APIKeyEnv)

		var (
			adapter repository.ChatProvider
			err     error
		)
		switch pc.Type {
		case "openai":
			adapter, err = client.NewOpenAIProvider(pc.Name, pc.BaseURL, apiKey)
		case "anthropic":
			adapter, err = client.NewAnthropicProvider(pc.Name, pc.BaseURL, apiKey)
		case "gemini":
			if genaiClient == nil {
				genaiClient, err = genai.NewClient(ctx, &genai.ClientConfig{
					Project:  cfg.GoogleProject,
					Location: cfg.GoogleLocation,
					Backend:  genai.BackendVertexAI,
				})
				if err != nil {
					return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
				}
			}
			adapter = client.NewGeminiProviderFromClient(genaiClient, pc.Name)
		default:
			err = fmt.Errorf("unknown provider type %q", pc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}

		routed = append(routed, usecase.RoutedProvider{Config: pc, Adapter: adapter})
	}
	return routed, nil
}

// warmUp primes the embedding backend so the first search does not pay
// the cold-start cost.
func warmUp(embedder repository.Embedder) {
	warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := embedder.CreateEmbedding(warmCtx, "warmup"); err != nil {
		log.Warn().Msgf("[WARMER] embedder warm-up failed: %v", err)
		return
	}
	log.Info().Msg("[WARMER] embedder pre-warm complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
