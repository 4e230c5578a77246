// Package vectorstore implements the Vector Store (C6): an ANN index over
// child-chunk embeddings, filterable by the RBAC resolver's (department,
// classification) pairs and a cosine-similarity threshold.
//
// Grounded on the teacher's internal/repository/chunk.go SimilaritySearch
// (cosine `<=>` operator, threshold, ORDER BY distance, LIMIT), generalized
// from a single user_id exclusion filter to the disjunction-of-conjunctions
// RBAC filter spec.md §4.6 requires, and extended with parent-expansion
// (3·k candidate fetch, group-by-parent-max-score, re-sort, truncate) per
// original_source/services/vectorstore/qdrant_store.py's payload-index
// vocabulary (doc_id/department/classification/chunk_type), mapped onto
// pgvector + btree indexes instead of Qdrant's payload index.
package vectorstore

import (
	"context"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/rbac"
)

// ChildPayload is everything stored alongside a child chunk's embedding,
// needed to render a search hit without a second round-trip.
type ChildPayload struct {
	TenantID       string
	DocumentID     string
	ParentChunkID  string
	Department     string
	Classification string
	ChunkType      string
	ChunkIndex     int
	Content        string
}

// Hit is one search result against child chunks.
type Hit struct {
	ChunkID string
	Score   float64
	Payload ChildPayload
}

// ParentHit is one search result aggregated to parent granularity.
type ParentHit struct {
	ParentChunkID string
	BestScore     float64
	Payload       ChildPayload
}

// ChildRecord is one child chunk ready for upsert.
type ChildRecord struct {
	ChunkID       string
	Embedding     []float32
	Payload       ChildPayload
}

// Store is the pgvector-backed implementation of C6.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertChildren implements upsert_children. Children are assumed to already
// exist as rows (written transactionally by C5's SaveHierarchical); this
// updates only the embedding column, so it is usable for re-embedding a
// document without touching document/parent rows.
func (s *Store) UpsertChildren(ctx context.Context, records []ChildRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`UPDATE child_chunks SET embedding = $2 WHERE id = $1`, r.ChunkID, pgvector.NewVector(r.Embedding))
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return apperr.Wrap(apperr.KindDependencyFailure, "upsert child embeddings", err)
		}
	}
	return nil
}

// filterSQL renders the RBAC resolver's disjunction-of-conjunctions as a
// parameterized `(department, classification) IN (...)` predicate, so the
// filter is pushed into the database rather than applied after the fact.
func filterSQL(filters []rbac.AccessPair, argOffset int) (string, []any) {
	if len(filters) == 0 {
		return "FALSE", nil
	}
	clause := "(department, classification) IN ("
	args := make([]any, 0, len(filters)*2)
	for i, f := range filters {
		if i > 0 {
			clause += ", "
		}
		clause += "($" + strconv.Itoa(argOffset+len(args)+1) + ", $" + strconv.Itoa(argOffset+len(args)+2) + ")"
		args = append(args, f.Department, f.Classification)
	}
	clause += ")"
	return clause, args
}

// Search implements search(tenant_id, query_vec, filters, k, threshold). An
// empty filter set returns no results without issuing a query — deny-all
// per spec §4.7's edge case — mirrored here defensively even though the
// retrieval coordinator is expected to short-circuit first. tenant_id is
// always ANDed into the predicate ahead of the RBAC filter, since
// department/classification names are not unique across tenants (spec §5
// "Isolation": no query may cross a tenant boundary regardless of two
// tenants choosing identical department names).
func (s *Store) Search(ctx context.Context, tenantID string, queryVec []float32, filters []rbac.AccessPair, k int, threshold float64) ([]Hit, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	clause, args := filterSQL(filters, 2)
	q := `
		SELECT id, document_id, parent_chunk_id, department, classification, chunk_type, chunk_index, content,
			1 - (embedding <=> $1::vector) AS similarity
		FROM child_chunks
		WHERE tenant_id = $2 AND ` + clause + `
		ORDER BY embedding <=> $1::vector
		LIMIT $` + strconv.Itoa(len(args)+3)

	queryArgs := append([]any{pgvector.NewVector(queryVec), tenantID}, args...)
	queryArgs = append(queryArgs, k)

	rows, err := s.pool.Query(ctx, q, queryArgs...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "vector search", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		var parentID *string
		if err := rows.Scan(&h.ChunkID, &h.Payload.DocumentID, &parentID, &h.Payload.Department,
			&h.Payload.Classification, &h.Payload.ChunkType, &h.Payload.ChunkIndex, &h.Payload.Content, &h.Score); err != nil {
			return nil, apperr.Wrap(apperr.KindDependencyFailure, "scan search hit", err)
		}
		if parentID != nil {
			h.Payload.ParentChunkID = *parentID
		}
		h.Payload.TenantID = tenantID
		if h.Score < threshold {
			continue
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SearchWithParentExpansion implements search_with_parent_expansion per
// spec.md §4.6's algorithm: fetch 3·k candidate children, group by parent
// keeping each parent's best child score, re-sort parents by that score,
// truncate to k.
func (s *Store) SearchWithParentExpansion(ctx context.Context, tenantID string, queryVec []float32, filters []rbac.AccessPair, k int, threshold float64) ([]ParentHit, error) {
	candidates, err := s.Search(ctx, tenantID, queryVec, filters, 3*k, threshold)
	if err != nil {
		return nil, err
	}

	byParent := make(map[string]*ParentHit)
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.Payload.ParentChunkID == "" {
			continue
		}
		existing, ok := byParent[c.Payload.ParentChunkID]
		if !ok {
			byParent[c.Payload.ParentChunkID] = &ParentHit{
				ParentChunkID: c.Payload.ParentChunkID,
				BestScore:     c.Score,
				Payload:       c.Payload,
			}
			order = append(order, c.Payload.ParentChunkID)
			continue
		}
		if c.Score > existing.BestScore {
			existing.BestScore = c.Score
		}
	}

	out := make([]ParentHit, 0, len(order))
	for _, id := range order {
		out = append(out, *byParent[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BestScore > out[j].BestScore })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// DeleteByDoc implements delete_by_doc: removes every child vector for a
// document, used both for document deletion and as C8's compensating action
// when a transactional write fails partway through.
func (s *Store) DeleteByDoc(ctx context.Context, docID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM child_chunks WHERE document_id = $1`, docID); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "delete vectors by document", err)
	}
	return nil
}
