package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// unsetOverlap marks a chunk_overlap the YAML did not set, so an explicit 0
// survives applyDefaults.
const unsetOverlap = math.MinInt

const (
	defaultOllamaURL      = "http://localhost:11434"
	defaultChatModel      = "qwen2.5"
	defaultEmbeddingModel = "nomic-embed-text"
	defaultRerankerModel  = "BAAI/bge-reranker-base"
	defaultCollection     = "documents"
	defaultDimension      = 768

	defaultChunkSize = 1000
	// unset overlap defaults to a fifth of the chunk size (200 for 1000)
	defaultOverlapDivisor   = 5
	defaultCandidates       = 10
	defaultTopK             = 4
	defaultMaxHistory       = 10
	defaultMaxFacts         = 20
	defaultEmbedConcurrency = 10
)

type Config struct {
	Ollama      OllamaConfig      `yaml:"ollama"`
	RAG         RAGConfig         `yaml:"rag"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	Database    DatabaseConfig    `yaml:"database"`
	Workers     WorkersConfig     `yaml:"workers"`
	Log         LogConfig         `yaml:"log"`
}

type OllamaConfig struct {
	BaseURL        string `yaml:"base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	// EmbeddingProvider is "ollama" or "openai" (any OpenAI compatible
	// embeddings endpoint, e.g. OpenRouter).
	EmbeddingProvider string        `yaml:"embedding_provider"`
	EmbeddingBaseURL  string        `yaml:"embedding_base_url"`
	EmbeddingAPIKey   string        `yaml:"embedding_api_key"`
	EmbedTimeout      time.Duration `yaml:"embed_timeout"`
	ChatTimeout       time.Duration `yaml:"chat_timeout"`
	FactTimeout       time.Duration `yaml:"fact_timeout"`
	Temperature       float64       `yaml:"temperature"`
}

type RAGConfig struct {
	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	Candidates       int `yaml:"candidates"`
	TopK             int `yaml:"top_k"`
	MaxHistory       int `yaml:"max_history"`
	MaxFacts         int `yaml:"max_facts"`
	EmbedConcurrency int `yaml:"embed_concurrency"`
}

type VectorStoreConfig struct {
	Type       string       `yaml:"type"`
	Path       string       `yaml:"path"`
	Collection string       `yaml:"collection"`
	InMemory   bool         `yaml:"in_memory"`
	Compress   bool         `yaml:"compress"`
	Dimension  int          `yaml:"dimension"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
}

type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

type RerankerConfig struct {
	Type    string        `yaml:"type"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

type WorkersConfig struct {
	Size int `yaml:"size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig reads the YAML config at path. A missing file yields the
// defaults. Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := Config{RAG: RAGConfig{ChunkOverlap: unsetOverlap}}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := Config{RAG: RAGConfig{ChunkOverlap: unsetOverlap}}
	applyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"RAG_OLLAMA_BASE_URL": &cfg.Ollama.BaseURL,
		"RAG_CHAT_MODEL":      &cfg.Ollama.ChatModel,
		"RAG_EMBEDDING_MODEL": &cfg.Ollama.EmbeddingModel,
		"RAG_EMBEDDING_KEY":   &cfg.Ollama.EmbeddingAPIKey,
		"RAG_DATABASE_DSN":    &cfg.Database.DSN,
		"RAG_RERANKER_URL":    &cfg.Reranker.BaseURL,
		"RAG_VECTOR_STORE":    &cfg.VectorStore.Type,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = defaultOllamaURL
	}
	if cfg.Ollama.ChatModel == "" {
		cfg.Ollama.ChatModel = defaultChatModel
	}
	if cfg.Ollama.EmbeddingModel == "" {
		cfg.Ollama.EmbeddingModel = defaultEmbeddingModel
	}
	if cfg.Ollama.EmbeddingProvider == "" {
		cfg.Ollama.EmbeddingProvider = "ollama"
	}
	if cfg.Ollama.EmbeddingBaseURL == "" {
		cfg.Ollama.EmbeddingBaseURL = cfg.Ollama.BaseURL
	}
	if cfg.Ollama.EmbedTimeout == 0 {
		cfg.Ollama.EmbedTimeout = 30 * time.Second
	}
	if cfg.Ollama.ChatTimeout == 0 {
		cfg.Ollama.ChatTimeout = 120 * time.Second
	}
	if cfg.Ollama.FactTimeout == 0 {
		cfg.Ollama.FactTimeout = 30 * time.Second
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.ChunkOverlap == unsetOverlap {
		cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize / defaultOverlapDivisor
	}
	if cfg.RAG.Candidates == 0 {
		cfg.RAG.Candidates = defaultCandidates
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.MaxHistory == 0 {
		cfg.RAG.MaxHistory = defaultMaxHistory
	}
	if cfg.RAG.MaxFacts == 0 {
		cfg.RAG.MaxFacts = defaultMaxFacts
	}
	if cfg.RAG.EmbedConcurrency == 0 {
		cfg.RAG.EmbedConcurrency = defaultEmbedConcurrency
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if cfg.VectorStore.Path == "" {
		switch cfg.VectorStore.Type {
		case "sqlite":
			cfg.VectorStore.Path = "./vectors.sqlite"
		default:
			cfg.VectorStore.Path = "./chromemdb"
		}
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = defaultCollection
	}
	if cfg.VectorStore.Dimension == 0 {
		cfg.VectorStore.Dimension = defaultDimension
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}

	if cfg.Reranker.Type == "" {
		cfg.Reranker.Type = "tei"
	}
	if cfg.Reranker.BaseURL == "" {
		cfg.Reranker.BaseURL = "http://localhost:8081"
	}
	if cfg.Reranker.Model == "" {
		cfg.Reranker.Model = defaultRerankerModel
	}
	if cfg.Reranker.Timeout == 0 {
		cfg.Reranker.Timeout = 30 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file:history.sqlite?cache=shared"
	}

	if cfg.Workers.Size == 0 {
		cfg.Workers.Size = runtime.NumCPU()
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.Candidates < c.RAG.TopK {
		return fmt.Errorf("rag.candidates (%d) must be >= rag.top_k (%d)", c.RAG.Candidates, c.RAG.TopK)
	}
	if c.VectorStore.Dimension <= 0 {
		return fmt.Errorf("vector_store.dimension must be positive, got %d", c.VectorStore.Dimension)
	}
	switch c.Ollama.EmbeddingProvider {
	case "ollama":
	case "openai":
		if c.Ollama.EmbeddingAPIKey == "" {
			return errors.New("ollama.embedding_api_key is required for the openai embedding provider")
		}
	default:
		return fmt.Errorf("unknown embedding provider: %s", c.Ollama.EmbeddingProvider)
	}
	switch c.VectorStore.Type {
	case "chromem", "sqlite", "qdrant":
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore.Type)
	}
	switch c.Reranker.Type {
	case "tei", "lexical":
	default:
		return fmt.Errorf("unknown reranker: %s", c.Reranker.Type)
	}
	switch c.Database.Driver {
	case "pgdriver", "pq", "sqlite":
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	return nil
}
