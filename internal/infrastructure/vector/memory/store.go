// Package memory is an in-process vector store for development and tests.
// It keeps every chunk in RAM and ranks by cosine similarity.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/onamfc/rag-chat/internal/core/domain"
	"github.com/onamfc/rag-chat/internal/core/ports"
)

type Store struct {
	mu     sync.RWMutex
	chunks []domain.Chunk
}

func New() *Store {
	return &Store{}
}

var (
	_ ports.VectorStore  = (*Store)(nil)
	_ ports.ChunkCounter = (*Store)(nil)
)

func (s *Store) Upsert(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *Store) Query(_ context.Context, vector []float32, topK int) ([]domain.RetrievedFragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RetrievedFragment, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		score, err := cosine(vector, chunk.Vector)
		if err != nil {
			continue
		}
		out = append(out, domain.RetrievedFragment{
			Text: chunk.Text,
			Metadata: domain.FragmentMetadata{
				DocumentID: chunk.DocumentID,
				FileName:   chunk.FileName,
				ChunkIndex: chunk.ChunkIndex,
				PageLabel:  chunk.PageLabel,
			},
			Score: score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *Store) DeleteWhere(_ context.Context, filter map[string]string) error {
	if len(filter) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "memory delete", fmt.Errorf("empty filter"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0]
	for _, chunk := range s.chunks {
		if !matches(chunk, filter) {
			kept = append(kept, chunk)
		}
	}
	s.chunks = kept
	return nil
}

func (s *Store) CountWhere(_ context.Context, filter map[string]string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, chunk := range s.chunks {
		if matches(chunk, filter) {
			count++
		}
	}
	return count, nil
}

func matches(chunk domain.Chunk, filter map[string]string) bool {
	for key, want := range filter {
		var got string
		switch key {
		case "document_id":
			got = chunk.DocumentID
		case "file_name":
			got = chunk.FileName
		case "page_label":
			got = chunk.PageLabel
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero vector")
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
