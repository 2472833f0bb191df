package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onamfc/rag-chat/internal/core/domain"
	"github.com/onamfc/rag-chat/internal/core/ports"
)

const documentIDLength = 16

// IngestService owns the document registry and the ingestion pipeline:
// content-addressed id, raw-byte persistence, extraction, chunking, embedding
// and vector upsert. The registry is rebuilt from the storage directory on
// startup via Recover.
type IngestService struct {
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	store     ports.VectorStore
	events    ports.EventPublisher

	mu   sync.RWMutex
	docs map[string]domain.Document
}

func NewIngestService(
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	store ports.VectorStore,
	events ports.EventPublisher,
) *IngestService {
	return &IngestService{
		storage:   storage,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		events:    events,
		docs:      make(map[string]domain.Document),
	}
}

// Recover rebuilds the registry by scanning the storage directory for
// "{document_id}_{file_name}" entries. Chunk counts are filled from the
// vector store when it can count by metadata filter, and stay 0 (best-effort)
// otherwise.
func (s *IngestService) Recover(ctx context.Context) error {
	keys, err := s.storage.List(ctx)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "scan storage directory", err)
	}

	counter, hasCounter := s.store.(ports.ChunkCounter)

	recovered := 0
	for _, key := range keys {
		documentID, fileName, ok := parseStorageKey(key)
		if !ok {
			slog.Warn("skipping unrecognized storage entry", "key", key)
			continue
		}

		chunkCount := 0
		if hasCounter {
			n, err := counter.CountWhere(ctx, map[string]string{"document_id": documentID})
			if err != nil {
				slog.Warn("chunk count unavailable", "document_id", documentID, "error", err)
			} else {
				chunkCount = n
			}
		}

		s.mu.Lock()
		s.docs[documentID] = domain.Document{
			DocumentID: documentID,
			FileName:   fileName,
			IngestedAt: time.Now().UTC(),
			ChunkCount: chunkCount,
		}
		s.mu.Unlock()
		recovered++
	}

	if recovered > 0 {
		slog.Info("recovered document registry", "documents", recovered)
	}
	return nil
}

// Ingest runs the full pipeline for one file. Re-ingesting byte-identical
// content is an idempotent no-op that returns the existing registry entry.
func (s *IngestService) Ingest(ctx context.Context, fileName string, raw []byte) (*domain.Document, error) {
	fileName = sanitizeFileName(fileName)
	if fileName == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest document", errors.New("file name is required"))
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest document", errors.New("file content is empty"))
	}

	documentID := contentID(raw)

	s.mu.RLock()
	existing, ok := s.docs[documentID]
	s.mu.RUnlock()
	if ok {
		slog.Info("document already ingested", "document_id", documentID, "file_name", existing.FileName)
		return &existing, nil
	}

	storageKey := documentID + "_" + fileName
	if err := s.storage.Save(ctx, storageKey, bytes.NewReader(raw)); err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "persist raw document", err)
	}

	text, err := s.extractor.Extract(ctx, fileName, raw)
	if err != nil {
		s.discardRaw(ctx, storageKey)
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		s.discardRaw(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("document produced no text"))
	}

	pieces := s.chunker.Split(text)
	if len(pieces) == 0 {
		s.discardRaw(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	vectors, err := s.embedder.Embed(ctx, pieces)
	if err != nil {
		s.discardRaw(ctx, storageKey)
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(pieces) {
		s.discardRaw(ctx, storageKey)
		return nil, domain.WrapError(
			domain.ErrProvider,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(pieces)),
		)
	}

	now := time.Now().UTC()
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, domain.Chunk{
			Text:       piece,
			DocumentID: documentID,
			FileName:   fileName,
			ChunkIndex: i,
			IngestedAt: now,
			Vector:     vectors[i],
		})
	}

	if err := s.store.Upsert(ctx, chunks); err != nil {
		s.discardRaw(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrStorage, "index chunks", err)
	}

	doc := domain.Document{
		DocumentID: documentID,
		FileName:   fileName,
		IngestedAt: now,
		ChunkCount: len(chunks),
	}
	s.mu.Lock()
	s.docs[documentID] = doc
	s.mu.Unlock()

	slog.Info("document ingested", "document_id", documentID, "file_name", fileName, "chunks", len(chunks))
	s.publishIngested(ctx, doc)
	return &doc, nil
}

// List returns registry entries ordered by ingestion time, oldest first.
func (s *IngestService) List(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	out := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].IngestedAt.Before(out[j].IngestedAt)
	})
	return out, nil
}

// Delete removes the registry entry and the raw file for documentID. A
// failing vector-store delete is logged and does not abort the removal.
func (s *IngestService) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	doc, ok := s.docs[documentID]
	if !ok {
		s.mu.Unlock()
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("unknown document id %q", documentID))
	}
	delete(s.docs, documentID)
	s.mu.Unlock()

	if err := s.store.DeleteWhere(ctx, map[string]string{"document_id": documentID}); err != nil {
		slog.Warn("vector store delete failed", "document_id", documentID, "error", err)
	}

	storageKey := doc.DocumentID + "_" + doc.FileName
	if err := s.storage.Remove(ctx, storageKey); err != nil {
		slog.Warn("raw file removal failed", "document_id", documentID, "key", storageKey, "error", err)
	}

	slog.Info("document deleted", "document_id", documentID, "file_name", doc.FileName)
	s.publishDeleted(ctx, documentID)
	return nil
}

func (s *IngestService) publishIngested(ctx context.Context, doc domain.Document) {
	if s.events == nil {
		return
	}
	if err := s.events.DocumentIngested(ctx, doc); err != nil {
		slog.Warn("publish ingested event failed", "document_id", doc.DocumentID, "error", err)
	}
}

func (s *IngestService) publishDeleted(ctx context.Context, documentID string) {
	if s.events == nil {
		return
	}
	if err := s.events.DocumentDeleted(ctx, documentID); err != nil {
		slog.Warn("publish deleted event failed", "document_id", documentID, "error", err)
	}
}

// discardRaw removes a half-ingested raw file so a later registry scan does
// not resurrect a document whose chunks never reached the vector store.
func (s *IngestService) discardRaw(ctx context.Context, storageKey string) {
	if err := s.storage.Remove(ctx, storageKey); err != nil {
		slog.Warn("cleanup of raw file failed", "key", storageKey, "error", err)
	}
}

func contentID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:documentIDLength]
}

func parseStorageKey(key string) (documentID, fileName string, ok bool) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	if len(parts[0]) != documentIDLength {
		return "", "", false
	}
	if _, err := hex.DecodeString(parts[0]); err != nil {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func sanitizeFileName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}
