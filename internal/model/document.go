package model

import (
	"encoding/json"
	"time"
)

// IndexStatus tracks a Document's position in the ingestion state machine (C8).
type IndexStatus string

const (
	IndexReceived   IndexStatus = "received"
	IndexParsing    IndexStatus = "parsing"
	IndexChunking   IndexStatus = "chunking"
	IndexEmbedding  IndexStatus = "embedding"
	IndexPersisting IndexStatus = "persisting"
	IndexCommitted  IndexStatus = "committed"
	IndexFailed     IndexStatus = "failed"
)

// Classification is a document sensitivity label.
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
	ClassificationRestricted   Classification = "restricted"
)

// DefaultRetentionYears maps a classification to its default audit retention
// window (spec §3 lifecycles: public=3, internal=5, confidential=7, restricted=10).
var DefaultRetentionYears = map[Classification]int{
	ClassificationPublic:       3,
	ClassificationInternal:     5,
	ClassificationConfidential: 7,
	ClassificationRestricted:   10,
}

// Document is the root of one ingested file. department_id and classification
// are fixed at ingest time (I2) — re-classification requires a new doc_id.
type Document struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenantId"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Filename       string          `json:"filename"`
	UploadedBy     string          `json:"uploadedBy"`
	DepartmentID   string          `json:"departmentId"`
	Classification Classification  `json:"classification"`
	IndexStatus    IndexStatus     `json:"indexStatus"`
	ChunkCount     int             `json:"chunkCount"`
	Checksum       string          `json:"checksum,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ParentChunk is a coherent section of a Document. It carries no embedding.
type ParentChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	ChunkIndex int       `json:"chunkIndex"`
	Content    string    `json:"content"`
	Page       int       `json:"page,omitempty"`
	Header     string    `json:"header,omitempty"`
	ChunkType  string    `json:"chunkType"` // "parent"
	CreatedAt  time.Time `json:"createdAt"`
}

// ChildChunk is the search granule: it carries a fixed-dimension embedding and,
// in hierarchical-ingest mode, references exactly one ParentChunk (I1).
type ChildChunk struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"documentId"`
	ParentChunkID string    `json:"parentChunkId,omitempty"`
	ChunkIndex    int       `json:"chunkIndex"`
	Content       string    `json:"content"`
	Page          int       `json:"page,omitempty"`
	Header        string    `json:"header,omitempty"`
	Embedding     []float32 `json:"-"`
	ChunkType     string    `json:"chunkType"` // "child"
	CreatedAt     time.Time `json:"createdAt"`
}

// ChunkEdge links a child chunk to its originating parent by index, as emitted
// by the chunker (C2) before either side has a persisted id.
type ChunkEdge struct {
	ChildIndex  int
	ParentIndex int
}

// DocumentSummary is the lightweight projection returned by
// get_documents_by_uploader — no extracted text or chunk content.
type DocumentSummary struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Filename       string         `json:"filename"`
	DepartmentID   string         `json:"departmentId"`
	Classification Classification `json:"classification"`
	IndexStatus    IndexStatus    `json:"indexStatus"`
	ChunkCount     int            `json:"chunkCount"`
	CreatedAt      time.Time      `json:"createdAt"`
}
