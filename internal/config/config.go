// Package config loads the service configuration: defaults, then an
// optional YAML file, then RAGCHAT_* environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	LogLevel    string            `yaml:"log_level"`
	Storage     StorageConfig     `yaml:"storage"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	RAG         RAGConfig         `yaml:"rag"`
	Tools       []ToolServer      `yaml:"tools"`
	Events      EventsConfig      `yaml:"events"`
}

type ServerConfig struct {
	Port           string  `yaml:"port"`
	APIKey         string  `yaml:"api_key"`
	ModelID        string  `yaml:"model_id"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type LLMConfig struct {
	Provider   string `yaml:"provider"`
	URL        string `yaml:"url"`
	ChatModel  string `yaml:"chat_model"`
	EmbedModel string `yaml:"embed_model"`
}

type VectorStoreConfig struct {
	Provider   string `yaml:"provider"`
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

// ToolServer describes one MCP tool server subprocess. Order matters: when
// two servers advertise the same tool, the earlier entry wins.
type ToolServer struct {
	Name               string   `yaml:"name"`
	Command            string   `yaml:"command"`
	Args               []string `yaml:"args"`
	Env                []string `yaml:"env"`
	WorkDir            string   `yaml:"work_dir"`
	StartTimeoutSecs   int      `yaml:"start_timeout_seconds"`
	CallTimeoutSecs    int      `yaml:"call_timeout_seconds"`
	ShutdownGraceSecs  int      `yaml:"shutdown_grace_seconds"`
}

type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:    "8080",
			ModelID: "rag-chat-v1",
		},
		LogLevel: "info",
		Storage:  StorageConfig{Path: "./data/storage"},
		LLM: LLMConfig{
			Provider:   "ollama",
			URL:        "http://localhost:11434",
			ChatModel:  "llama3.1:8b",
			EmbedModel: "nomic-embed-text",
		},
		VectorStore: VectorStoreConfig{
			Provider:   "qdrant",
			URL:        "http://localhost:6333",
			Collection: "documents",
		},
		RAG: RAGConfig{
			ChunkSize:    900,
			ChunkOverlap: 150,
			TopK:         5,
		},
		Events: EventsConfig{
			URL:     "nats://localhost:4222",
			Subject: "documents",
		},
	}
}

// Load reads path when it exists; a missing file is not an error, env
// overrides alone can configure the service.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to env overrides
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envStr("RAGCHAT_PORT", c.Server.Port)
	c.Server.APIKey = envStr("RAGCHAT_API_KEY", c.Server.APIKey)
	c.Server.ModelID = envStr("RAGCHAT_MODEL_ID", c.Server.ModelID)
	c.LogLevel = envStr("RAGCHAT_LOG_LEVEL", c.LogLevel)
	c.Storage.Path = envStr("RAGCHAT_STORAGE_PATH", c.Storage.Path)

	c.LLM.URL = envStr("RAGCHAT_OLLAMA_URL", c.LLM.URL)
	c.LLM.ChatModel = envStr("RAGCHAT_CHAT_MODEL", c.LLM.ChatModel)
	c.LLM.EmbedModel = envStr("RAGCHAT_EMBED_MODEL", c.LLM.EmbedModel)

	c.VectorStore.Provider = envStr("RAGCHAT_VECTOR_PROVIDER", c.VectorStore.Provider)
	c.VectorStore.URL = envStr("RAGCHAT_QDRANT_URL", c.VectorStore.URL)
	c.VectorStore.Collection = envStr("RAGCHAT_QDRANT_COLLECTION", c.VectorStore.Collection)

	c.RAG.ChunkSize = envInt("RAGCHAT_CHUNK_SIZE", c.RAG.ChunkSize)
	c.RAG.ChunkOverlap = envInt("RAGCHAT_CHUNK_OVERLAP", c.RAG.ChunkOverlap)
	c.RAG.TopK = envInt("RAGCHAT_TOP_K", c.RAG.TopK)

	c.Events.Enabled = envBool("RAGCHAT_EVENTS_ENABLED", c.Events.Enabled)
	c.Events.URL = envStr("RAGCHAT_NATS_URL", c.Events.URL)
	c.Events.Subject = envStr("RAGCHAT_NATS_SUBJECT", c.Events.Subject)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
