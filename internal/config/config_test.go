package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.RAG.ChunkSize != 1000 || cfg.RAG.ChunkOverlap != 200 {
		t.Errorf("chunking = %d/%d, want 1000/200", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.RAG.EmbedConcurrency != 10 {
		t.Errorf("EmbedConcurrency = %d, want 10", cfg.RAG.EmbedConcurrency)
	}
	if cfg.Ollama.ChatTimeout != 120*time.Second || cfg.Ollama.EmbedTimeout != 30*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.Ollama.ChatTimeout, cfg.Ollama.EmbedTimeout)
	}
	if cfg.Ollama.EmbeddingProvider != "ollama" || cfg.Ollama.EmbeddingBaseURL != cfg.Ollama.BaseURL {
		t.Errorf("embedding provider = %s at %s", cfg.Ollama.EmbeddingProvider, cfg.Ollama.EmbeddingBaseURL)
	}
	if cfg.VectorStore.Type != "chromem" || cfg.VectorStore.Collection != "documents" {
		t.Errorf("vector store = %s/%s", cfg.VectorStore.Type, cfg.VectorStore.Collection)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
ollama:
  chat_model: llama3
  chat_timeout: 90s
rag:
  chunk_size: 500
  chunk_overlap: 50
  top_k: 3
vector_store:
  type: sqlite
  dimension: 4
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Ollama.ChatModel != "llama3" || cfg.Ollama.ChatTimeout != 90*time.Second {
		t.Errorf("ollama = %+v", cfg.Ollama)
	}
	if cfg.RAG.ChunkSize != 500 || cfg.RAG.ChunkOverlap != 50 || cfg.RAG.TopK != 3 {
		t.Errorf("rag = %+v", cfg.RAG)
	}
	if cfg.VectorStore.Path != "./vectors.sqlite" {
		t.Errorf("Path = %q, want ./vectors.sqlite", cfg.VectorStore.Path)
	}
}

func TestLoadConfig_ChunkOverlapDefaults(t *testing.T) {
	tests := []struct {
		name          string
		yaml          string
		size, overlap int
	}{
		{"nothing set", "log:\n  level: info\n", 1000, 200},
		{"explicit zero overlap", "rag:\n  chunk_overlap: 0\n", 1000, 0},
		{"size only", "rag:\n  chunk_size: 500\n", 500, 100},
		{"both set", "rag:\n  chunk_size: 500\n  chunk_overlap: 20\n", 500, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if cfg.RAG.ChunkSize != tt.size || cfg.RAG.ChunkOverlap != tt.overlap {
				t.Errorf("chunking = %d/%d, want %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, tt.size, tt.overlap)
			}
		})
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("RAG_CHAT_MODEL", "mistral")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Ollama.ChatModel != "mistral" {
		t.Errorf("ChatModel = %q, want mistral", cfg.Ollama.ChatModel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }},
		{"negative overlap", func(c *Config) { c.RAG.ChunkOverlap = -1 }},
		{"unknown store", func(c *Config) { c.VectorStore.Type = "faiss" }},
		{"unknown reranker", func(c *Config) { c.Reranker.Type = "colbert" }},
		{"unknown embedding provider", func(c *Config) { c.Ollama.EmbeddingProvider = "cohere" }},
		{"openai without key", func(c *Config) { c.Ollama.EmbeddingProvider = "openai" }},
		{"candidates below top_k", func(c *Config) { c.RAG.Candidates = 1; c.RAG.TopK = 4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}
