package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.LLM.Provider != "ollama" || cfg.RAG.TopK != 5 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9000"
  api_key: secret
vector_store:
  provider: memory
rag:
  chunk_size: 512
  top_k: 3
tools:
  - name: files
    command: /usr/local/bin/file-tools
    args: ["--stdio"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9000" || cfg.Server.APIKey != "secret" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.VectorStore.Provider != "memory" {
		t.Fatalf("vector store = %+v", cfg.VectorStore)
	}
	if cfg.RAG.ChunkSize != 512 || cfg.RAG.TopK != 3 {
		t.Fatalf("rag = %+v", cfg.RAG)
	}
	// untouched keys keep defaults
	if cfg.RAG.ChunkOverlap != 150 || cfg.LLM.URL != "http://localhost:11434" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].Command != "/usr/local/bin/file-tools" {
		t.Fatalf("tools = %+v", cfg.Tools)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RAGCHAT_LOG_LEVEL", "warn")
	t.Setenv("RAGCHAT_TOP_K", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.RAG.TopK != 9 {
		t.Fatalf("top k = %d", cfg.RAG.TopK)
	}
}

func TestMalformedEnvIntFallsBack(t *testing.T) {
	t.Setenv("RAGCHAT_CHUNK_SIZE", "not-a-number")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RAG.ChunkSize != 900 {
		t.Fatalf("chunk size = %d", cfg.RAG.ChunkSize)
	}
}
