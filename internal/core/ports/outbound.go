package ports

import (
	"context"
	"io"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

// ObjectStorage stores raw source documents keyed by storage key.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

// TextExtractor turns raw file bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, fileName string, raw []byte) (string, error)
}

// Chunker splits extracted text into embeddable chunks.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds vectors for chunk batches and query text. Deterministic for
// identical input and model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// LLM generates assistant messages, in one shot or as a delta stream. The
// stream channel is closed after the final delta; cancelling the context
// stops production promptly.
type LLM interface {
	Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (domain.Message, domain.Usage, error)
	StreamChat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (<-chan domain.StreamDelta, error)
}

// VectorStore indexes chunks and answers similarity queries. DeleteWhere
// removes every chunk whose payload matches all filter entries.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Query(ctx context.Context, vector []float32, topK int) ([]domain.RetrievedFragment, error)
	DeleteWhere(ctx context.Context, filter map[string]string) error
}

// ChunkCounter is an optional VectorStore capability used to rebuild
// per-document chunk counts after a restart.
type ChunkCounter interface {
	CountWhere(ctx context.Context, filter map[string]string) (int, error)
}

// EventPublisher emits best-effort document lifecycle notifications.
type EventPublisher interface {
	DocumentIngested(ctx context.Context, doc domain.Document) error
	DocumentDeleted(ctx context.Context, documentID string) error
}
