package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/onamfc/rag-chat/internal/adapters/http"
	"github.com/onamfc/rag-chat/internal/bootstrap"
	"github.com/onamfc/rag-chat/internal/config"
	"github.com/onamfc/rag-chat/internal/observability/logging"
)

func main() {
	configPath := os.Getenv("RAGCHAT_CONFIG")
	if configPath == "" {
		configPath = "./config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger("rag-chat", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		httpadapter.Config{
			ServiceName:    "rag-chat",
			ModelID:        cfg.Server.ModelID,
			APIKey:         cfg.Server.APIKey,
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
		},
		app.Ingestor,
		app.Retriever,
		app.Chat,
		app.Embedder,
		app.Tools,
		app.Metrics,
	)

	// No WriteTimeout: chat streams stay open for as long as generation
	// takes.
	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown", "error", err)
	}
}
