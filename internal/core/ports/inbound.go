package ports

import (
	"context"
	"encoding/json"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document lifecycle operations.
type DocumentIngestor interface {
	Ingest(ctx context.Context, fileName string, raw []byte) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	Delete(ctx context.Context, documentID string) error
}

// FragmentRetriever is the inbound contract for similarity retrieval.
type FragmentRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedFragment, error)
}

// ChatCompleter is the inbound contract for context-augmented generation.
type ChatCompleter interface {
	Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResult, error)
	Stream(ctx context.Context, req domain.ChatRequest) (*domain.ChatStream, error)
}

// ToolRunner is the inbound contract for external tool invocation.
type ToolRunner interface {
	Tools() []domain.Tool
	CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error)
}
