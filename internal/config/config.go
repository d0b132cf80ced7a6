package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"raggate/internal/domain/entity"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs, read once at startup from
// the environment plus a providers.yaml file.
type Config struct {
	Port string

	RedisAddr        string
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	// Embedding backend: "ollama" (default) or "gemini".
	EmbeddingBackend string
	EmbeddingModel   string
	EmbeddingDim     int
	OllamaBaseURL    string

	GoogleProject  string
	GoogleLocation string

	// Optional SQLite path for conversation history. Empty disables it.
	HistoryPath string

	ChunkSize    int
	ChunkOverlap int

	ScoreThreshold float32
	DefaultTopK    int
	HybridSearch   bool
	KeywordWeight  float32

	ToolTimeout     time.Duration
	ToolParallelism int
	TurnTimeout     time.Duration
	CacheTTL        time.Duration

	Providers []entity.ProviderConfig
}

// Load reads the environment and the providers file. Missing optional
// values fall back to defaults; a missing or empty providers file is an
// error since the gateway cannot route without one.
func Load(providersPath string) (*Config, error) {
	cfg := &Config{
		Port:             envOr("PORT", "8000"),
		RedisAddr:        envOr("REDIS_ADDR", "localhost:6379"),
		QdrantHost:       envOr("QDRANT_HOST", "localhost"),
		QdrantPort:       envInt("QDRANT_PORT", 6334),
		QdrantCollection: envOr("QDRANT_COLLECTION", "enterprise_knowledge"),
		EmbeddingBackend: envOr("EMBEDDING_BACKEND", "ollama"),
		EmbeddingModel:   envOr("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:     envInt("EMBEDDING_DIM", 768),
		OllamaBaseURL:    envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
		GoogleProject:    os.Getenv("GOOGLE_CLOUD_PROJECT"),
		GoogleLocation:   os.Getenv("GOOGLE_CLOUD_LOCATION"),
		HistoryPath:      os.Getenv("HISTORY_DB_PATH"),
		ChunkSize:        envInt("CHUNK_SIZE", 512),
		ChunkOverlap:     envInt("CHUNK_OVERLAP", 50),
		ScoreThreshold:   envFloat("SCORE_THRESHOLD", 0.5),
		DefaultTopK:      envInt("SEARCH_TOP_K", 5),
		HybridSearch:     envBool("HYBRID_SEARCH", false),
		KeywordWeight:    envFloat("KEYWORD_WEIGHT", 0.2),
		ToolTimeout:      envDuration("TOOL_TIMEOUT", 15*time.Second),
		ToolParallelism:  envInt("TOOL_PARALLELISM", 4),
		TurnTimeout:      envDuration("TURN_TIMEOUT", 120*time.Second),
		CacheTTL:         envDuration("CACHE_TTL", 10*time.Minute),
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("config: chunk overlap %d must be smaller than chunk size %d", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	providers, err := LoadProviders(providersPath)
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	return cfg, nil
}

type providersFile struct {
	Providers []entity.ProviderConfig `yaml:"providers"`
}

// LoadProviders parses the providers.yaml priority list and returns it
// sorted by ascending priority rank (1 = primary).
func LoadProviders(path string) ([]entity.ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse providers file: %w", err)
	}
	if len(file.Providers) == 0 {
		return nil, fmt.Errorf("config: providers file %q declares no providers", path)
	}

	seen := make(map[string]bool, len(file.Providers))
	for _, p := range file.Providers {
		if p.Name == "" {
			return nil, fmt.Errorf("config: provider with empty name in %q", path)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("config: duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
	}

	sort.SliceStable(file.Providers, func(i, j int) bool {
		return file.Providers[i].Priority < file.Providers[j].Priority
	})

	return file.Providers, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
