package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/onamfc/rag-chat/internal/core/domain"
	"github.com/onamfc/rag-chat/internal/core/ports"
)

// RetrieveService answers similarity queries over the shared vector store.
// It is read-only and safe for unlimited concurrent callers.
type RetrieveService struct {
	embedder    ports.Embedder
	store       ports.VectorStore
	defaultTopK int
}

func NewRetrieveService(embedder ports.Embedder, store ports.VectorStore, defaultTopK int) *RetrieveService {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &RetrieveService{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}
}

// Retrieve returns at most topK fragments ordered by non-increasing score.
// An empty result is valid, not an error.
func (s *RetrieveService) Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedFragment, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve fragments", errors.New("query is required"))
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	fragments, err := s.store.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}

	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Score > fragments[j].Score
	})
	if len(fragments) > topK {
		fragments = fragments[:topK]
	}
	return fragments, nil
}
