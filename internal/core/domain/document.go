package domain

import "time"

// Document is a registry entry for one ingested file. DocumentID is derived
// from the file content (truncated sha256), so identical bytes always map to
// the same id regardless of filename.
type Document struct {
	DocumentID string    `json:"document_id"`
	FileName   string    `json:"file_name"`
	IngestedAt time.Time `json:"ingested_at"`
	ChunkCount int       `json:"chunk_count"`
}

// Chunk is the unit of embedding and retrieval: a contiguous slice of a
// document's text plus its provenance. Chunks are immutable once stored and
// are only ever removed in bulk, per document.
type Chunk struct {
	Text       string
	DocumentID string
	FileName   string
	ChunkIndex int
	PageLabel  string
	IngestedAt time.Time
	Vector     []float32
}

type FragmentMetadata struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	ChunkIndex int    `json:"chunk_index"`
	PageLabel  string `json:"page_label,omitempty"`
}

// RetrievedFragment is an ephemeral similarity match. Score is in the
// backend's native range; callers must not assume [0,1].
type RetrievedFragment struct {
	Text     string           `json:"text"`
	Metadata FragmentMetadata `json:"metadata"`
	Score    float64          `json:"score"`
}
