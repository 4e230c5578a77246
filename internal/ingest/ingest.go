// Package ingest implements the Ingestion Coordinator (C8): the document
// state machine received → parsing → chunking → embedding → persisting →
// committed | failed.
//
// Grounded on the teacher's internal/service/pipeline.go ProcessDocument:
// the per-stage slog progression, the failDocument fallback, and the
// processingMu/processing duplicate-processing guard are all kept, adapted
// to Sentinel's hierarchical parent/child write and the two-phase C5-then-C6
// commit spec.md §4.8 requires (the teacher committed vectors and metadata
// in the same step, which this package deliberately no longer does).
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/chunker"
	"github.com/sentinelrag/sentinel/internal/embedder"
	"github.com/sentinelrag/sentinel/internal/model"
	"github.com/sentinelrag/sentinel/internal/parser"
	"github.com/sentinelrag/sentinel/internal/redactor"
	"github.com/sentinelrag/sentinel/internal/repository"
	"github.com/sentinelrag/sentinel/internal/telemetry"
	"github.com/sentinelrag/sentinel/internal/vectorstore"
)

// DocumentStore is the C5 surface the coordinator needs.
type DocumentStore interface {
	CreateReceived(ctx context.Context, d *model.Document) error
	UpdateStatus(ctx context.Context, docID string, status model.IndexStatus, errMsg string) error
	GetByID(ctx context.Context, docID string) (*model.Document, error)
	SaveHierarchical(ctx context.Context, docID string, w repository.HierarchicalWrite) error
	MarkCommitted(ctx context.Context, docID string) error
	DeleteDocument(ctx context.Context, docID string) error
}

// VectorStore is the C6 surface the coordinator needs.
type VectorStore interface {
	UpsertChildren(ctx context.Context, records []vectorstore.ChildRecord) error
	DeleteByDoc(ctx context.Context, docID string) error
}

// AuditLogger is the C10 surface: one call per terminal transition.
type AuditLogger interface {
	Log(ctx context.Context, ev *model.AuditEvent) error
}

// Upload is the caller-supplied request: file bytes plus the classification
// fixed at ingest time (I2 — re-classification requires a new doc_id).
type Upload struct {
	Title          string
	Description    string
	Filename       string
	Data           []byte
	UploadedBy     string
	TenantID       string
	DepartmentID   string
	DepartmentName string
	Classification model.Classification

	// FlatIngest selects C2's flat-mode contract (I1: "standalone
	// flat-ingest mode, for short documents"): a single child-size stream
	// with no parent chunks or parent/child edges, instead of the default
	// hierarchical split.
	FlatIngest bool
}

var (
	processingMu sync.Mutex
	processing   = make(map[string]bool)
)

// Coordinator runs the C8 state machine over one document at a time,
// serializing the C1-C4 pipeline and the C5/C6 two-phase write.
type Coordinator struct {
	docs     DocumentStore
	vectors  VectorStore
	parser   *parser.Parser
	chunker  *chunker.Chunker
	embedder *embedder.Embedder
	redactor *redactor.Redactor
	audit    AuditLogger
}

// New builds a Coordinator from its seven collaborating components.
func New(docs DocumentStore, vectors VectorStore, p *parser.Parser, c *chunker.Chunker,
	e *embedder.Embedder, r *redactor.Redactor, audit AuditLogger) *Coordinator {
	return &Coordinator{docs: docs, vectors: vectors, parser: p, chunker: c, embedder: e, redactor: r, audit: audit}
}

// Ingest runs the full pipeline for one upload and returns the committed (or
// failed) document. Every call allocates a fresh document id, so repeated
// uploads of the same file become separate documents and never collide; the
// processing guard (teacher's pattern) returns a conflict error only if an id
// is claimed while already in flight.
func (c *Coordinator) Ingest(ctx context.Context, u Upload) (*model.Document, error) {
	doc := &model.Document{
		ID:             newDocID(),
		TenantID:       u.TenantID,
		Title:          u.Title,
		Description:    u.Description,
		Filename:       u.Filename,
		UploadedBy:     u.UploadedBy,
		DepartmentID:   u.DepartmentID,
		Classification: u.Classification,
	}

	if !c.claim(doc.ID) {
		return nil, apperr.New(apperr.KindConflict, "document is already being processed")
	}
	defer c.release(doc.ID)

	slog.Info("ingest starting", "document_id", doc.ID, "filename", u.Filename)

	if err := c.docs.CreateReceived(ctx, doc); err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "create document", err)
	}

	if err := c.docs.UpdateStatus(ctx, doc.ID, model.IndexParsing, ""); err != nil {
		return nil, c.fail(ctx, doc, model.IndexParsing, err)
	}
	_, parseSpan := telemetry.StartSpan(ctx, "ingest", "parse")
	parsed, err := c.parser.Extract(u.Filename, u.Data)
	telemetry.RecordError(parseSpan, err)
	if err != nil {
		return nil, c.fail(ctx, doc, model.IndexParsing, err)
	}
	slog.Info("ingest parsed", "document_id", doc.ID, "chars", len(parsed.Markdown), "pages", parsed.Pages)

	if err := c.docs.UpdateStatus(ctx, doc.ID, model.IndexChunking, ""); err != nil {
		return nil, c.fail(ctx, doc, model.IndexChunking, err)
	}
	_, chunkSpan := telemetry.StartSpan(ctx, "ingest", "chunk")
	var chunks *chunker.Result
	if u.FlatIngest {
		var flatChildren []model.ChildChunk
		flatChildren, err = c.chunker.ChunkFlat(parsed.Markdown)
		chunks = &chunker.Result{Children: flatChildren}
	} else {
		chunks, err = c.chunker.Chunk(parsed.Markdown)
	}
	telemetry.RecordError(chunkSpan, err)
	if err != nil {
		return nil, c.fail(ctx, doc, model.IndexChunking, err)
	}
	slog.Info("ingest chunked", "document_id", doc.ID, "flat", u.FlatIngest, "parents", len(chunks.Parents), "children", len(chunks.Children))

	if err := c.docs.UpdateStatus(ctx, doc.ID, model.IndexEmbedding, ""); err != nil {
		return nil, c.fail(ctx, doc, model.IndexEmbedding, err)
	}
	_, embedSpan := telemetry.StartSpan(ctx, "ingest", "redact_and_embed")
	redactedContents, embeddings, err := c.redactAndEmbed(ctx, chunks.Children)
	telemetry.RecordError(embedSpan, err)
	if err != nil {
		return nil, c.fail(ctx, doc, model.IndexEmbedding, err)
	}
	for i := range chunks.Children {
		chunks.Children[i].Content = redactedContents[i]
		chunks.Children[i].ID = newDocID()
	}
	for i := range chunks.Parents {
		chunks.Parents[i].ID = newDocID()
	}

	if err := c.docs.UpdateStatus(ctx, doc.ID, model.IndexPersisting, ""); err != nil {
		return nil, c.fail(ctx, doc, model.IndexPersisting, err)
	}
	write := repository.HierarchicalWrite{
		TenantID:       u.TenantID,
		Parents:        chunks.Parents,
		Children:       chunks.Children,
		Edges:          chunks.Edges,
		Department:     u.DepartmentName,
		Classification: string(u.Classification),
	}
	_, persistSpan := telemetry.StartSpan(ctx, "ingest", "persist_metadata")
	err = c.docs.SaveHierarchical(ctx, doc.ID, write)
	telemetry.RecordError(persistSpan, err)
	if err != nil {
		return nil, c.fail(ctx, doc, model.IndexPersisting, err)
	}

	parentIDByChild := make(map[int]string, len(chunks.Edges))
	for _, e := range chunks.Edges {
		parentIDByChild[e.ChildIndex] = chunks.Parents[e.ParentIndex].ID
	}

	records := make([]vectorstore.ChildRecord, len(chunks.Children))
	for i, ch := range chunks.Children {
		records[i] = vectorstore.ChildRecord{
			ChunkID:   ch.ID,
			Embedding: embeddings[i],
			Payload: vectorstore.ChildPayload{
				TenantID:       u.TenantID,
				DocumentID:     doc.ID,
				ParentChunkID:  parentIDByChild[i],
				Department:     u.DepartmentName,
				Classification: string(u.Classification),
				ChunkType:      ch.ChunkType,
			},
		}
	}
	_, vectorSpan := telemetry.StartSpan(ctx, "ingest", "persist_vectors")
	vectorErr := c.vectors.UpsertChildren(ctx, records)
	telemetry.RecordError(vectorSpan, vectorErr)
	if err := vectorErr; err != nil {
		// C6 write failed after C5 commit: compensate (spec §4.8).
		slog.Error("ingest compensating after vector write failure", "document_id", doc.ID, "error", err)
		if delErr := c.vectors.DeleteByDoc(ctx, doc.ID); delErr != nil {
			slog.Error("ingest compensation: vector delete failed", "document_id", doc.ID, "error", delErr)
		}
		if delErr := c.docs.DeleteDocument(ctx, doc.ID); delErr != nil {
			slog.Error("ingest compensation: document delete failed", "document_id", doc.ID, "error", delErr)
		}
		return nil, c.fail(ctx, doc, model.IndexFailed, err)
	}

	if err := c.docs.MarkCommitted(ctx, doc.ID); err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "mark committed", err)
	}
	doc.IndexStatus = model.IndexCommitted
	doc.ChunkCount = len(chunks.Children)

	c.auditOutcome(ctx, doc, model.OutcomeSuccess, "")
	slog.Info("ingest committed", "document_id", doc.ID, "chunk_count", doc.ChunkCount)
	return doc, nil
}

// redactAndEmbed runs C4 then C3 over every child chunk's content, checking
// embedding dimensionality before any vector write (spec §4.8's explicit
// invariant).
func (c *Coordinator) redactAndEmbed(ctx context.Context, children []model.ChildChunk) ([]string, [][]float32, error) {
	texts := make([]string, len(children))
	for i, ch := range children {
		texts[i] = ch.Content
	}

	redacted, _, err := c.redactor.Redact(ctx, texts)
	if err != nil {
		return nil, nil, err
	}

	// Dimensionality is checked before any vector write (spec's invariant);
	// EmbedDocuments itself rejects a mismatched vector here, so this call
	// never returns child chunks alongside embeddings of the wrong shape.
	embeddings, err := c.embedder.EmbedDocuments(ctx, redacted)
	if err != nil {
		return nil, nil, err
	}
	return redacted, embeddings, nil
}

// fail transitions the document to failed, records the stage it died in, and
// audits the failure — always, even though the caller also returns an error
// (spec §7: "audit writes for a request MUST be attempted even when the
// request fails").
func (c *Coordinator) fail(ctx context.Context, doc *model.Document, stage model.IndexStatus, cause error) error {
	msg := cause.Error()
	if err := c.docs.UpdateStatus(ctx, doc.ID, model.IndexFailed, msg); err != nil {
		slog.Error("ingest failed to record failure status", "document_id", doc.ID, "error", err)
	}
	doc.IndexStatus = model.IndexFailed
	doc.ErrorMessage = msg
	c.auditOutcome(ctx, doc, model.OutcomeFailure, msg)
	return apperr.Wrap(apperr.KindOf(cause), fmt.Sprintf("ingest failed at %s", stage), cause)
}

func (c *Coordinator) auditOutcome(ctx context.Context, doc *model.Document, outcome model.EventOutcome, errMsg string) {
	if c.audit == nil {
		return
	}
	ev := &model.AuditEvent{
		TenantID:           doc.TenantID,
		UserID:             doc.UploadedBy,
		Category:           model.CategoryDataAccess,
		Type:               "document_ingest",
		Action:             model.ActionWrite,
		Outcome:            outcome,
		ResourceType:       model.ResourceDocument,
		ResourceID:         doc.ID,
		ResourceName:       doc.Title,
		DepartmentID:       doc.DepartmentID,
		ClassificationName: doc.Classification,
		ErrorMessage:       errMsg,
		RetentionYears:     model.DefaultRetentionYears[doc.Classification],
	}
	if err := c.audit.Log(ctx, ev); err != nil {
		slog.Warn("ingest audit log failed", "document_id", doc.ID, "error", err)
	}
}

func (c *Coordinator) claim(docID string) bool {
	processingMu.Lock()
	defer processingMu.Unlock()
	if processing[docID] {
		return false
	}
	processing[docID] = true
	return true
}

func (c *Coordinator) release(docID string) {
	processingMu.Lock()
	delete(processing, docID)
	processingMu.Unlock()
}

func newDocID() string {
	return uuid.NewString()
}
