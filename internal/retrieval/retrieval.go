// Package retrieval implements the Retrieval Coordinator (C9): the
// query(user_id, question, k, expand_parents?) sequence of spec.md §4.9.
//
// Grounded on the teacher's internal/service/retriever.go — the embed →
// search → rank pipeline shape and RetrievalResult/RankedChunk naming are
// kept — but the teacher's BM25 + reciprocal-rank-fusion + recency/parent-doc
// re-ranking is dropped (spec §4.9 defines a single cosine search step with
// no hybrid fusion or recency boost; see DESIGN.md) in favour of C7 filter
// resolution, parent-content bulk-fetch, and fail-closed PII redaction,
// which the teacher's pipeline never needed because it had no RBAC or PII
// layer.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"time"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/model"
	"github.com/sentinelrag/sentinel/internal/rbac"
	"github.com/sentinelrag/sentinel/internal/redactor"
	"github.com/sentinelrag/sentinel/internal/telemetry"
	"github.com/sentinelrag/sentinel/internal/vectorstore"
)

// FilterResolver is C7's surface: the user's cleared (department,
// classification) pairs.
type FilterResolver interface {
	FiltersFor(userID string) ([]rbac.AccessPair, error)
}

// QueryEmbedder is C3's surface for embedding the question text.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is C6's surface.
type VectorSearcher interface {
	Search(ctx context.Context, tenantID string, queryVec []float32, filters []rbac.AccessPair, k int, threshold float64) ([]vectorstore.Hit, error)
	SearchWithParentExpansion(ctx context.Context, tenantID string, queryVec []float32, filters []rbac.AccessPair, k int, threshold float64) ([]vectorstore.ParentHit, error)
}

// ParentFetcher is C5's bulk parent-content lookup, used only in
// expand_parents mode.
type ParentFetcher interface {
	GetParentsByIDs(ctx context.Context, parentIDs []string) (map[string]model.ParentChunk, error)
}

// Redactor is C4's surface. A Redact error MUST fail the whole query — never
// degrade to returning un-redacted text (spec §4.9/§7).
type Redactor interface {
	Redact(ctx context.Context, texts []string) ([]string, []redactor.Finding, error)
}

// AuditLogger is C10's surface for the query satellite record.
type AuditLogger interface {
	LogQuery(ctx context.Context, ev *model.AuditEvent, q model.QueryAuditEvent) (*model.AuditEvent, error)
}

// Result is one ranked, redacted chunk returned to the caller.
type Result struct {
	Content        string
	DocumentID     string
	ChunkIndex     int
	Department     string
	Classification string
	Score          float64
}

const defaultThreshold = 0.60

// Coordinator runs the C9 query sequence.
type Coordinator struct {
	resolver  FilterResolver
	embedder  QueryEmbedder
	vectors   VectorSearcher
	parents   ParentFetcher
	redactor  Redactor
	audit     AuditLogger
	threshold float64
}

// New builds a Coordinator. threshold <= 0 uses spec.md §4.3's default
// similarity cutoff.
func New(resolver FilterResolver, embedder QueryEmbedder, vectors VectorSearcher,
	parents ParentFetcher, redactor Redactor, audit AuditLogger, threshold float64) *Coordinator {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Coordinator{resolver: resolver, embedder: embedder, vectors: vectors,
		parents: parents, redactor: redactor, audit: audit, threshold: threshold}
}

// Query runs the full C9 sequence for one question, returning results
// ordered score descending, tie-broken by (doc_id, chunk_index).
func (c *Coordinator) Query(ctx context.Context, tenantID, userID, question string, k int, expandParents bool) ([]Result, error) {
	start := time.Now()
	if k <= 0 {
		k = 5
	}

	filters, err := c.resolver.FiltersFor(userID)
	if err != nil {
		return nil, c.fail(ctx, tenantID, userID, question, 0, 0, err)
	}
	if len(filters) == 0 {
		c.auditSuccess(ctx, tenantID, userID, question, 0, 0, 0, start, 0, nil)
		return []Result{}, nil
	}

	embedStart := time.Now()
	_, embedSpan := telemetry.StartSpan(ctx, "retrieval", "embed_query")
	queryVec, err := c.embedder.EmbedQuery(ctx, question)
	telemetry.RecordError(embedSpan, err)
	if err != nil {
		return nil, c.fail(ctx, tenantID, userID, question, 0, 0, err)
	}
	embedMs := time.Since(embedStart).Milliseconds()

	searchStart := time.Now()
	_, searchSpan := telemetry.StartSpan(ctx, "retrieval", "vector_search")
	var results []Result
	var chunksRetrieved int
	var docsAccessed map[string]bool

	if expandParents {
		hits, err := c.vectors.SearchWithParentExpansion(ctx, tenantID, queryVec, filters, k, c.threshold)
		if err != nil {
			telemetry.RecordError(searchSpan, err)
			return nil, c.fail(ctx, tenantID, userID, question, embedMs, 0, err)
		}
		chunksRetrieved = len(hits)
		results, docsAccessed, err = c.resolveParentContents(ctx, hits)
		if err != nil {
			telemetry.RecordError(searchSpan, err)
			return nil, c.fail(ctx, tenantID, userID, question, embedMs, 0, err)
		}
	} else {
		hits, err := c.vectors.Search(ctx, tenantID, queryVec, filters, k, c.threshold)
		if err != nil {
			telemetry.RecordError(searchSpan, err)
			return nil, c.fail(ctx, tenantID, userID, question, embedMs, 0, err)
		}
		chunksRetrieved = len(hits)
		results, docsAccessed = directResults(hits)
	}
	telemetry.RecordError(searchSpan, nil)
	searchMs := time.Since(searchStart).Milliseconds()

	redacted, findings, err := c.redactContents(ctx, results)
	if err != nil {
		// Fail closed: a redactor error must never surface un-redacted text.
		return nil, c.fail(ctx, tenantID, userID, question, embedMs, searchMs, err)
	}
	results = redacted

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}

	c.auditSuccess(ctx, tenantID, userID, question, chunksRetrieved, len(results), len(docsAccessed), start, embedMs, findings)
	return results, nil
}

func directResults(hits []vectorstore.Hit) ([]Result, map[string]bool) {
	out := make([]Result, len(hits))
	docs := make(map[string]bool)
	for i, h := range hits {
		out[i] = Result{
			Content:        h.Payload.Content,
			DocumentID:     h.Payload.DocumentID,
			ChunkIndex:     h.Payload.ChunkIndex,
			Department:     h.Payload.Department,
			Classification: h.Payload.Classification,
			Score:          h.Score,
		}
		docs[h.Payload.DocumentID] = true
	}
	return out, docs
}

func (c *Coordinator) resolveParentContents(ctx context.Context, hits []vectorstore.ParentHit) ([]Result, map[string]bool, error) {
	if len(hits) == 0 {
		return nil, nil, nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ParentChunkID
	}
	parentsByID, err := c.parents.GetParentsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	out := make([]Result, len(hits))
	docs := make(map[string]bool)
	for i, h := range hits {
		p := parentsByID[h.ParentChunkID]
		out[i] = Result{
			Content:        p.Content,
			DocumentID:     h.Payload.DocumentID,
			ChunkIndex:     p.ChunkIndex,
			Department:     h.Payload.Department,
			Classification: h.Payload.Classification,
			Score:          h.BestScore,
		}
		docs[h.Payload.DocumentID] = true
	}
	return out, docs, nil
}

func (c *Coordinator) redactContents(ctx context.Context, results []Result) ([]Result, []redactor.Finding, error) {
	if len(results) == 0 {
		return results, nil, nil
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Content
	}
	redacted, findings, err := c.redactor.Redact(ctx, texts)
	if err != nil {
		return nil, nil, err
	}
	for i := range results {
		results[i].Content = redacted[i]
	}
	return results, findings, nil
}

// sortResults orders by score descending, tie-broken by (doc_id,
// chunk_index) — the deterministic ordering spec §5 requires within one
// query.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
}

func (c *Coordinator) fail(ctx context.Context, tenantID, userID, question string, embedMs, searchMs int64, cause error) error {
	slog.Error("retrieval query failed", "user_id", userID, "error", cause)
	if c.audit != nil {
		ev := &model.AuditEvent{
			TenantID: tenantID, UserID: userID, Category: model.CategoryDataAccess,
			Type: "query", Action: model.ActionRead, Outcome: model.OutcomeFailure,
			ResourceType: model.ResourceQuery, ErrorMessage: cause.Error(),
		}
		_, _ = c.audit.LogQuery(ctx, ev, model.QueryAuditEvent{
			UserID: userID, QueryTextHash: hashQuery(question),
			EmbeddingTimeMs: embedMs, VectorSearchTimeMs: searchMs,
		})
	}
	return apperr.Wrap(apperr.KindOf(cause), "retrieval query failed", cause)
}

func (c *Coordinator) auditSuccess(ctx context.Context, tenantID, userID, question string, chunksRetrieved, chunksReturned, docsAccessed int, start time.Time, embedMs int64, findings []redactor.Finding) {
	if c.audit == nil {
		return
	}
	piiTypes := redactor.Types(findings)
	ev := &model.AuditEvent{
		TenantID: tenantID, UserID: userID, Category: model.CategoryDataAccess,
		Type: "query", Action: model.ActionRead, Outcome: model.OutcomeSuccess,
		ResourceType: model.ResourceQuery, PIIAccessed: len(findings) > 0, DataRedacted: len(findings) > 0,
		PIITypes: piiTypes,
	}
	_, err := c.audit.LogQuery(ctx, ev, model.QueryAuditEvent{
		UserID: userID, QueryTextHash: hashQuery(question),
		ChunksRetrieved: chunksRetrieved, ChunksAccessed: chunksReturned, DocumentsAccessed: docsAccessed,
		EmbeddingTimeMs: embedMs, TotalResponseTimeMs: time.Since(start).Milliseconds(),
	})
	if err != nil {
		slog.Warn("retrieval audit log failed", "user_id", userID, "error", err)
	}
}

func hashQuery(question string) string {
	sum := sha256.Sum256([]byte(question))
	return hex.EncodeToString(sum[:])
}
