// Package bootstrap assembles the application from its configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onamfc/rag-chat/internal/config"
	"github.com/onamfc/rag-chat/internal/core/ports"
	"github.com/onamfc/rag-chat/internal/core/usecase"
	"github.com/onamfc/rag-chat/internal/infrastructure/chunking"
	natsevents "github.com/onamfc/rag-chat/internal/infrastructure/events/nats"
	"github.com/onamfc/rag-chat/internal/infrastructure/extractor"
	"github.com/onamfc/rag-chat/internal/infrastructure/llm/ollama"
	"github.com/onamfc/rag-chat/internal/infrastructure/resilience"
	"github.com/onamfc/rag-chat/internal/infrastructure/storage/localfs"
	"github.com/onamfc/rag-chat/internal/infrastructure/tools/mcp"
	"github.com/onamfc/rag-chat/internal/infrastructure/vector/memory"
	"github.com/onamfc/rag-chat/internal/infrastructure/vector/qdrant"
	"github.com/onamfc/rag-chat/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Ingestor  ports.DocumentIngestor
	Retriever ports.FragmentRetriever
	Chat      ports.ChatCompleter
	Embedder  ports.Embedder
	Tools     ports.ToolRunner
	Metrics   *metrics.ServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	storage, err := localfs.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	if cfg.LLM.Provider != "ollama" {
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
	executor := resilience.NewExecutor(resilience.DefaultConfig())
	llmClient := ollama.New(cfg.LLM.URL, cfg.LLM.ChatModel, cfg.LLM.EmbedModel, executor)
	embedder := ollama.NewEmbedder(llmClient)

	var store ports.VectorStore
	switch cfg.VectorStore.Provider {
	case "qdrant":
		store = qdrant.New(cfg.VectorStore.URL, cfg.VectorStore.Collection)
	case "memory":
		store = memory.New()
	default:
		return nil, fmt.Errorf("unsupported vector store provider %q", cfg.VectorStore.Provider)
	}

	var events ports.EventPublisher
	var publisher *natsevents.Publisher
	if cfg.Events.Enabled {
		publisher, err = natsevents.New(cfg.Events.URL, cfg.Events.Subject)
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		events = publisher
	}

	var toolManager *mcp.Manager
	if len(cfg.Tools) > 0 {
		toolManager = mcp.NewManager(toolServerConfigs(cfg.Tools), logger)
		toolManager.Start(ctx)
	}

	chunker := chunking.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	ingestor := usecase.NewIngestService(storage, extractor.NewRouter(), chunker, embedder, store, events)
	if err := ingestor.Recover(ctx); err != nil {
		return nil, fmt.Errorf("recover document registry: %w", err)
	}

	retriever := usecase.NewRetrieveService(embedder, store, cfg.RAG.TopK)
	chat := usecase.NewChatService(retriever, llmClient, cfg.Server.ModelID, cfg.RAG.TopK)

	app := &App{
		Config:    cfg,
		Ingestor:  ingestor,
		Retriever: retriever,
		Chat:      chat,
		Embedder:  embedder,
		Metrics:   metrics.NewServerMetrics("rag-chat"),
		closeFn: func() {
			if toolManager != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				toolManager.Shutdown(shutdownCtx)
			}
			if publisher != nil {
				publisher.Close()
			}
		},
	}
	if toolManager != nil {
		app.Tools = toolManager
	}
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func toolServerConfigs(entries []config.ToolServer) []mcp.ServerConfig {
	out := make([]mcp.ServerConfig, 0, len(entries))
	for _, entry := range entries {
		out = append(out, mcp.ServerConfig{
			Name:          entry.Name,
			Command:       entry.Command,
			Args:          entry.Args,
			Env:           entry.Env,
			WorkDir:       entry.WorkDir,
			StartTimeout:  time.Duration(entry.StartTimeoutSecs) * time.Second,
			CallTimeout:   time.Duration(entry.CallTimeoutSecs) * time.Second,
			ShutdownGrace: time.Duration(entry.ShutdownGraceSecs) * time.Second,
		})
	}
	return out
}
