package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

type storageFake struct {
	saved     map[string][]byte
	saveErr   error
	removeErr error
	listKeys  []string
}

func newStorageFake() *storageFake {
	return &storageFake{saved: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.saved[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.saved[key]
	if !ok {
		return nil, errors.New("missing key")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Remove(_ context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.saved, key)
	return nil
}

func (f *storageFake) List(context.Context) ([]string, error) {
	if f.listKeys != nil {
		return f.listKeys, nil
	}
	keys := make([]string, 0, len(f.saved))
	for k := range f.saved {
		keys = append(keys, k)
	}
	return keys, nil
}

type extractorFake struct{ err error }

func (f *extractorFake) Extract(_ context.Context, _ string, raw []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return string(raw), nil
}

type chunkerFake struct{ pieces []string }

func (f *chunkerFake) Split(text string) []string {
	if f.pieces != nil {
		return f.pieces
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []string{text}
}

type embedderFake struct {
	err   error
	calls int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type storeFake struct {
	upserted    [][]domain.Chunk
	deleted     []map[string]string
	upsertErr   error
	deleteErr   error
	countByFilt map[string]int
}

func (f *storeFake) Upsert(_ context.Context, chunks []domain.Chunk) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, chunks)
	return nil
}

func (f *storeFake) Query(context.Context, []float32, int) ([]domain.RetrievedFragment, error) {
	return nil, nil
}

func (f *storeFake) DeleteWhere(_ context.Context, filter map[string]string) error {
	f.deleted = append(f.deleted, filter)
	return f.deleteErr
}

func (f *storeFake) CountWhere(_ context.Context, filter map[string]string) (int, error) {
	return f.countByFilt[filter["document_id"]], nil
}

func newIngestFixture() (*IngestService, *storageFake, *storeFake) {
	storage := newStorageFake()
	store := &storeFake{}
	svc := NewIngestService(storage, &extractorFake{}, &chunkerFake{}, &embedderFake{}, store, nil)
	return svc, storage, store
}

func TestIngestStampsSequentialChunkIndexes(t *testing.T) {
	storage := newStorageFake()
	store := &storeFake{}
	chunker := &chunkerFake{pieces: []string{"one", "two", "three"}}
	svc := NewIngestService(storage, &extractorFake{}, chunker, &embedderFake{}, store, nil)

	doc, err := svc.Ingest(context.Background(), "report.txt", []byte("one two three"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if doc.ChunkCount != 3 {
		t.Fatalf("expected 3 chunks, got %d", doc.ChunkCount)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected one upsert batch, got %d", len(store.upserted))
	}
	for i, chunk := range store.upserted[0] {
		if chunk.ChunkIndex != i {
			t.Fatalf("chunk %d has index %d", i, chunk.ChunkIndex)
		}
		if chunk.DocumentID != doc.DocumentID {
			t.Fatalf("chunk %d has document id %s", i, chunk.DocumentID)
		}
		if chunk.FileName != "report.txt" {
			t.Fatalf("chunk %d has file name %s", i, chunk.FileName)
		}
	}
}

func TestIngestContentAddressing(t *testing.T) {
	svcA, _, _ := newIngestFixture()
	svcB, _, _ := newIngestFixture()

	docA, err := svcA.Ingest(context.Background(), "a.txt", []byte("same bytes"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	docB, err := svcB.Ingest(context.Background(), "renamed.txt", []byte("same bytes"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if docA.DocumentID != docB.DocumentID {
		t.Fatalf("identical bytes produced ids %s and %s", docA.DocumentID, docB.DocumentID)
	}
	if len(docA.DocumentID) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", docA.DocumentID)
	}
}

func TestIngestIdenticalBytesIsIdempotent(t *testing.T) {
	svc, _, store := newIngestFixture()

	first, err := svc.Ingest(context.Background(), "report.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	second, err := svc.Ingest(context.Background(), "other-name.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if second.DocumentID != first.DocumentID {
		t.Fatalf("expected same id, got %s and %s", first.DocumentID, second.DocumentID)
	}
	if second.FileName != first.FileName {
		t.Fatalf("expected registry entry to win, got file name %s", second.FileName)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected one upsert despite re-ingest, got %d", len(store.upserted))
	}
}

func TestIngestEmptyContentRejected(t *testing.T) {
	svc, _, _ := newIngestFixture()
	_, err := svc.Ingest(context.Background(), "empty.txt", nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIngestUpsertFailureCleansRawFile(t *testing.T) {
	storage := newStorageFake()
	store := &storeFake{upsertErr: errors.New("qdrant down")}
	svc := NewIngestService(storage, &extractorFake{}, &chunkerFake{}, &embedderFake{}, store, nil)

	_, err := svc.Ingest(context.Background(), "report.txt", []byte("hello"))
	if !domain.IsKind(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if len(storage.saved) != 0 {
		t.Fatalf("expected raw file cleanup, still have %d entries", len(storage.saved))
	}
	docs, _ := svc.List(context.Background())
	if len(docs) != 0 {
		t.Fatalf("expected empty registry, got %d entries", len(docs))
	}
}

func TestDeleteUnknownDocument(t *testing.T) {
	svc, _, store := newIngestFixture()
	err := svc.Delete(context.Background(), "deadbeefdeadbeef")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("expected no store mutation, got %d delete calls", len(store.deleted))
	}
}

func TestDeleteSurvivesVectorStoreFailure(t *testing.T) {
	storage := newStorageFake()
	store := &storeFake{deleteErr: errors.New("filter unsupported")}
	svc := NewIngestService(storage, &extractorFake{}, &chunkerFake{}, &embedderFake{}, store, nil)

	doc, err := svc.Ingest(context.Background(), "report.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := svc.Delete(context.Background(), doc.DocumentID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(storage.saved) != 0 {
		t.Fatalf("expected raw file removed, still have %d entries", len(storage.saved))
	}
	docs, _ := svc.List(context.Background())
	if len(docs) != 0 {
		t.Fatalf("expected registry entry removed, got %d", len(docs))
	}
	if err := svc.Delete(context.Background(), doc.DocumentID); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("second delete should be NotFound, got %v", err)
	}
}

func TestDeleteFiltersByDocumentID(t *testing.T) {
	svc, _, store := newIngestFixture()
	doc, err := svc.Ingest(context.Background(), "report.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := svc.Delete(context.Background(), doc.DocumentID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(store.deleted) != 1 {
		t.Fatalf("expected one delete call, got %d", len(store.deleted))
	}
	if got := store.deleted[0]["document_id"]; got != doc.DocumentID {
		t.Fatalf("expected delete filter on document id, got %v", store.deleted[0])
	}
}

func TestRecoverRebuildsRegistryFromDisk(t *testing.T) {
	storage := newStorageFake()
	storage.listKeys = []string{
		"0123456789abcdef_report.txt",
		"fedcba9876543210_notes.md",
		".hidden",
		"not-a-document",
	}
	store := &storeFake{countByFilt: map[string]int{"0123456789abcdef": 3}}
	svc := NewIngestService(storage, &extractorFake{}, &chunkerFake{}, &embedderFake{}, store, nil)

	if err := svc.Recover(context.Background()); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	docs, _ := svc.List(context.Background())
	if len(docs) != 2 {
		t.Fatalf("expected 2 recovered documents, got %d", len(docs))
	}
	byID := make(map[string]domain.Document, len(docs))
	for _, d := range docs {
		byID[d.DocumentID] = d
	}
	if byID["0123456789abcdef"].ChunkCount != 3 {
		t.Fatalf("expected counted chunks, got %d", byID["0123456789abcdef"].ChunkCount)
	}
	if byID["fedcba9876543210"].ChunkCount != 0 {
		t.Fatalf("expected best-effort zero count, got %d", byID["fedcba9876543210"].ChunkCount)
	}
	if byID["0123456789abcdef"].FileName != "report.txt" {
		t.Fatalf("expected parsed file name, got %s", byID["0123456789abcdef"].FileName)
	}
}

func TestExampleScenarioIngestListDelete(t *testing.T) {
	storage := newStorageFake()
	store := &storeFake{}
	chunker := &chunkerFake{pieces: []string{"a", "b", "c"}}
	svc := NewIngestService(storage, &extractorFake{}, chunker, &embedderFake{}, store, nil)

	doc, err := svc.Ingest(context.Background(), "report.txt", []byte("a b c"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if doc.ChunkCount != 3 {
		t.Fatalf("expected 3 chunks, got %d", doc.ChunkCount)
	}

	docs, _ := svc.List(context.Background())
	if len(docs) != 1 || docs[0].DocumentID != doc.DocumentID {
		t.Fatalf("expected listing to include %s, got %v", doc.DocumentID, docs)
	}

	if err := svc.Delete(context.Background(), doc.DocumentID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	docs, _ = svc.List(context.Background())
	if len(docs) != 0 {
		t.Fatalf("expected empty listing after delete, got %v", docs)
	}
	if err := svc.Delete(context.Background(), doc.DocumentID); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected NotFound on second delete, got %v", err)
	}
}
