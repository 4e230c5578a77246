package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/model"
)

// DocumentRepo owns documents, parent_chunks, and child_chunks — the
// hierarchical-chunk metadata side of C5. Grounded on the teacher's
// DocumentRepo/ChunkRepo (internal/repository/document.go, chunk.go), merged
// into one atomic write path because spec.md §4.8 requires the document row,
// its parent chunks, and their child vectors to commit as a single unit.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

// CreateReceived inserts a document row in the received state, before
// parsing begins — the first write of the ingestion coordinator's ordered
// sequence (spec §9).
func (r *DocumentRepo) CreateReceived(ctx context.Context, d *model.Document) error {
	const q = `
		INSERT INTO documents (id, tenant_id, title, description, filename, uploaded_by, department_id,
			classification, index_status, checksum, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'received', $9, $10, now(), now())`
	_, err := r.pool.Exec(ctx, q, d.ID, d.TenantID, d.Title, d.Description, d.Filename, d.UploadedBy,
		d.DepartmentID, d.Classification, d.Checksum, rawOrNull(d.Metadata))
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "create document", err)
	}
	return nil
}

// UpdateStatus advances index_status, optionally recording an error message
// on the failed transition.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, docID string, status model.IndexStatus, errMsg string) error {
	const q = `UPDATE documents SET index_status = $2, error_message = $3, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, docID, status, errMsg)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "update document status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	const q = `
		SELECT id, tenant_id, title, description, filename, uploaded_by, department_id, classification,
			index_status, chunk_count, checksum, error_message, metadata, created_at, updated_at
		FROM documents WHERE id = $1`
	return r.scanDocument(r.pool.QueryRow(ctx, q, docID))
}

func (r *DocumentRepo) scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	var meta []byte
	err := row.Scan(&d.ID, &d.TenantID, &d.Title, &d.Description, &d.Filename, &d.UploadedBy, &d.DepartmentID,
		&d.Classification, &d.IndexStatus, &d.ChunkCount, &d.Checksum, &d.ErrorMessage, &meta, &d.CreatedAt, &d.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "document not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "scan document", err)
	}
	if len(meta) > 0 {
		d.Metadata = json.RawMessage(meta)
	}
	return &d, nil
}

// GetDocumentsByUploader implements the user/docs endpoint's listing.
func (r *DocumentRepo) GetDocumentsByUploader(ctx context.Context, userID string) ([]model.DocumentSummary, error) {
	const q = `
		SELECT id, title, filename, department_id, classification, index_status, chunk_count, created_at
		FROM documents WHERE uploaded_by = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "list documents by uploader", err)
	}
	defer rows.Close()

	var out []model.DocumentSummary
	for rows.Next() {
		var s model.DocumentSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Filename, &s.DepartmentID, &s.Classification,
			&s.IndexStatus, &s.ChunkCount, &s.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindDependencyFailure, "scan document summary", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetParentsByIDs bulk-fetches parent chunk content for the retrieval
// coordinator's parent-expansion path (spec §4.9 step 4: "for parent
// expansion: bulk-fetch parent content from C5").
func (r *DocumentRepo) GetParentsByIDs(ctx context.Context, parentIDs []string) (map[string]model.ParentChunk, error) {
	if len(parentIDs) == 0 {
		return map[string]model.ParentChunk{}, nil
	}
	const q = `
		SELECT id, document_id, chunk_index, content, page, header, chunk_type, created_at
		FROM parent_chunks WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, q, parentIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "bulk fetch parent chunks", err)
	}
	defer rows.Close()

	out := make(map[string]model.ParentChunk, len(parentIDs))
	for rows.Next() {
		var p model.ParentChunk
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.ChunkIndex, &p.Content, &p.Page, &p.Header, &p.ChunkType, &p.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindDependencyFailure, "scan parent chunk", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// HierarchicalWrite is the parent/child structure the chunker produced for
// one document, ready to persist to C5 ahead of C6's vector write. It
// carries no embeddings: spec.md §4.8 requires vectors to be written only
// after C5 confirms durable persistence of the document id, so child rows
// land here with a NULL embedding column and C6 (internal/vectorstore)
// fills it in as a separate step.
type HierarchicalWrite struct {
	TenantID       string
	Parents        []model.ParentChunk
	Children       []model.ChildChunk
	Edges          []model.ChunkEdge
	Department     string
	Classification string
}

// SaveHierarchical writes parent chunks and child chunk rows (embeddings
// still NULL) in one transaction, leaving index_status at 'persisting' —
// the ingestion coordinator advances it to 'committed' only after C6's
// vector write succeeds (MarkCommitted).
func (r *DocumentRepo) SaveHierarchical(ctx context.Context, docID string, w HierarchicalWrite) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "begin hierarchical write", err)
	}
	defer tx.Rollback(ctx)

	parentBatch := &pgx.Batch{}
	for _, p := range w.Parents {
		parentBatch.Queue(`
			INSERT INTO parent_chunks (id, document_id, chunk_index, content, page, header, chunk_type, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
			p.ID, docID, p.ChunkIndex, p.Content, p.Page, p.Header, p.ChunkType)
	}
	if len(w.Parents) > 0 {
		br := tx.SendBatch(ctx, parentBatch)
		for range w.Parents {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return apperr.Wrap(apperr.KindDependencyFailure, "insert parent chunks", err)
			}
		}
		if err := br.Close(); err != nil {
			return apperr.Wrap(apperr.KindDependencyFailure, "close parent batch", err)
		}
	}

	childBatch := &pgx.Batch{}
	for i, c := range w.Children {
		var parentID *string
		if i < len(w.Edges) {
			parentID = &w.Parents[w.Edges[i].ParentIndex].ID
		}
		childBatch.Queue(`
			INSERT INTO child_chunks (id, tenant_id, document_id, parent_chunk_id, chunk_index, content, page, header,
				chunk_type, department, classification, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())`,
			c.ID, w.TenantID, docID, parentID, c.ChunkIndex, c.Content, c.Page, c.Header,
			c.ChunkType, w.Department, w.Classification)
	}
	if len(w.Children) > 0 {
		br := tx.SendBatch(ctx, childBatch)
		for range w.Children {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return apperr.Wrap(apperr.KindDependencyFailure, "insert child chunks", err)
			}
		}
		if err := br.Close(); err != nil {
			return apperr.Wrap(apperr.KindDependencyFailure, "close child batch", err)
		}
	}

	const updateDoc = `
		UPDATE documents SET index_status = 'persisting', chunk_count = $2, updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, updateDoc, docID, len(w.Children)); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "update document status", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "commit hierarchical write", err)
	}
	return nil
}

// MarkCommitted flips a document to committed once C6's vector write has
// succeeded — the final transition of the ingestion state machine.
func (r *DocumentRepo) MarkCommitted(ctx context.Context, docID string) error {
	return r.UpdateStatus(ctx, docID, model.IndexCommitted, "")
}

// DeleteDocument removes a document and its chunks — the compensating action
// when persisting vectors succeeds but the metadata commit (or vice versa)
// fails (spec §9's compensation rule).
func (r *DocumentRepo) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "begin delete", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range []string{
		`DELETE FROM child_chunks WHERE document_id = $1`,
		`DELETE FROM parent_chunks WHERE document_id = $1`,
		`DELETE FROM documents WHERE id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, docID); err != nil {
			return apperr.Wrap(apperr.KindDependencyFailure, "delete document cascade", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "commit delete", err)
	}
	return nil
}
