// Package httpadapter exposes the core use cases over HTTP with an
// OpenAI-compatible chat surface.
package httpadapter

import (
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/onamfc/rag-chat/internal/core/ports"
	"github.com/onamfc/rag-chat/internal/observability/metrics"
)

type Config struct {
	ServiceName string
	ModelID     string
	APIKey      string
	// RateLimitRPS <= 0 disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

type Router struct {
	cfg       Config
	ingestor  ports.DocumentIngestor
	retriever ports.FragmentRetriever
	chat      ports.ChatCompleter
	embedder  ports.Embedder
	tools     ports.ToolRunner
	metrics   *metrics.ServerMetrics
}

// NewRouter wires the inbound ports. tools may be nil when no tool servers
// are configured; the tool endpoints then answer 404.
func NewRouter(
	cfg Config,
	ingestor ports.DocumentIngestor,
	retriever ports.FragmentRetriever,
	chat ports.ChatCompleter,
	embedder ports.Embedder,
	tools ports.ToolRunner,
	m *metrics.ServerMetrics,
) *Router {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "rag-chat"
	}
	return &Router{
		cfg:       cfg,
		ingestor:  ingestor,
		retriever: retriever,
		chat:      chat,
		embedder:  embedder,
		tools:     tools,
		metrics:   m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/chat/completions", rt.chatCompletions)
	mux.HandleFunc("/v1/ingest", rt.ingestDocument)
	mux.HandleFunc("/v1/ingest/documents", rt.listDocuments)
	mux.HandleFunc("/v1/ingest/documents/", rt.deleteDocument)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/embeddings", rt.embeddings)
	mux.HandleFunc("/v1/tools", rt.listTools)
	mux.HandleFunc("/v1/tools/call", rt.callTool)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = authMiddleware(rt.cfg.APIKey, handler)
	handler = rateLimitMiddleware(rt.limiter(), handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.ServiceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) limiter() *rate.Limiter {
	if rt.cfg.RateLimitRPS <= 0 {
		return nil
	}
	burst := rt.cfg.RateLimitBurst
	if burst <= 0 {
		burst = int(rt.cfg.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(rt.cfg.RateLimitRPS), burst)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	tools := "disabled"
	if rt.tools != nil {
		tools = "ok"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": rt.cfg.ServiceName,
		"tools":   tools,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
