package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

type queryStoreFake struct {
	fragments []domain.RetrievedFragment
	err       error
	lastTopK  int
}

func (f *queryStoreFake) Upsert(context.Context, []domain.Chunk) error { return nil }

func (f *queryStoreFake) Query(_ context.Context, _ []float32, topK int) ([]domain.RetrievedFragment, error) {
	f.lastTopK = topK
	return f.fragments, f.err
}

func (f *queryStoreFake) DeleteWhere(context.Context, map[string]string) error { return nil }

func fragment(id string, score float64) domain.RetrievedFragment {
	return domain.RetrievedFragment{
		Text:     "text-" + id,
		Metadata: domain.FragmentMetadata{DocumentID: id, FileName: id + ".txt"},
		Score:    score,
	}
}

func TestRetrieveOrdersByScoreAndTruncates(t *testing.T) {
	store := &queryStoreFake{fragments: []domain.RetrievedFragment{
		fragment("b", 0.5),
		fragment("a", 0.9),
		fragment("c", 0.1),
	}}
	svc := NewRetrieveService(&embedderFake{}, store, 5)

	got, err := svc.Retrieve(context.Background(), "what is x", 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(got))
	}
	if got[0].Metadata.DocumentID != "a" || got[1].Metadata.DocumentID != "b" {
		t.Fatalf("expected descending score order, got %v", got)
	}
}

func TestRetrieveEmptyStoreIsNotAnError(t *testing.T) {
	svc := NewRetrieveService(&embedderFake{}, &queryStoreFake{}, 5)
	got, err := svc.Retrieve(context.Background(), "anything", 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestRetrieveUsesDefaultTopK(t *testing.T) {
	store := &queryStoreFake{}
	svc := NewRetrieveService(&embedderFake{}, store, 7)
	if _, err := svc.Retrieve(context.Background(), "q", 0); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if store.lastTopK != 7 {
		t.Fatalf("expected default top_k 7, got %d", store.lastTopK)
	}
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	svc := NewRetrieveService(&embedderFake{}, &queryStoreFake{}, 5)
	if _, err := svc.Retrieve(context.Background(), "   ", 3); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRetrievePropagatesEmbedderFailure(t *testing.T) {
	svc := NewRetrieveService(&embedderFake{err: errors.New("backend down")}, &queryStoreFake{}, 5)
	if _, err := svc.Retrieve(context.Background(), "q", 3); err == nil {
		t.Fatalf("expected error")
	}
}
