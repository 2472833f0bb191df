package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

func seed(t *testing.T, store *Store) {
	t.Helper()
	err := store.Upsert(context.Background(), []domain.Chunk{
		{Text: "axis aligned", DocumentID: "doc1", FileName: "a.txt", ChunkIndex: 0, Vector: []float32{1, 0}},
		{Text: "diagonal", DocumentID: "doc1", FileName: "a.txt", ChunkIndex: 1, Vector: []float32{1, 1}},
		{Text: "orthogonal", DocumentID: "doc2", FileName: "b.txt", ChunkIndex: 0, Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestQueryRanksByCosineSimilarity(t *testing.T) {
	store := New()
	seed(t, store)

	fragments, err := store.Query(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(fragments) != 2 {
		t.Fatalf("got %d fragments", len(fragments))
	}
	if fragments[0].Text != "axis aligned" || fragments[1].Text != "diagonal" {
		t.Fatalf("order = %q, %q", fragments[0].Text, fragments[1].Text)
	}
	if fragments[0].Score <= fragments[1].Score {
		t.Fatalf("scores not descending: %v, %v", fragments[0].Score, fragments[1].Score)
	}
}

func TestQuerySkipsDimensionMismatches(t *testing.T) {
	store := New()
	seed(t, store)

	fragments, err := store.Query(context.Background(), []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(fragments) != 0 {
		t.Fatalf("got %d fragments, want 0", len(fragments))
	}
}

func TestDeleteWhereRemovesOnlyMatchingDocument(t *testing.T) {
	store := New()
	seed(t, store)
	ctx := context.Background()

	if err := store.DeleteWhere(ctx, map[string]string{"document_id": "doc1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	remaining, err := store.CountWhere(ctx, map[string]string{"document_id": "doc1"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("doc1 chunks remaining = %d", remaining)
	}
	others, err := store.CountWhere(ctx, map[string]string{"document_id": "doc2"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if others != 1 {
		t.Fatalf("doc2 chunks = %d, want 1", others)
	}
}

func TestDeleteWhereRejectsEmptyFilter(t *testing.T) {
	store := New()
	if err := store.DeleteWhere(context.Background(), nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
