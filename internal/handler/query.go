package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/httperr"
	"github.com/sentinelrag/sentinel/internal/middleware"
	"github.com/sentinelrag/sentinel/internal/retrieval"
)

const maxQueryBodyBytes = 64 << 10 // 64 KiB — a question, not a document

// Retriever is the C9 surface POST /api/query drives.
type Retriever interface {
	Query(ctx context.Context, tenantID, userID, question string, k int, expandParents bool) ([]retrieval.Result, error)
}

// QueryRequest is spec §6's POST /api/query body.
type QueryRequest struct {
	UserQuery     string `json:"user_query"`
	K             int    `json:"k,omitempty"`
	ExpandParents bool   `json:"expand_parents,omitempty"`
}

// QueryResultView is one ranked, redacted chunk in the response.
type QueryResultView struct {
	Content        string  `json:"content"`
	DocumentID     string  `json:"documentId"`
	ChunkIndex     int     `json:"chunkIndex"`
	Department     string  `json:"department"`
	Classification string  `json:"classification"`
	Score          float64 `json:"score"`
}

// QueryResponse wraps the ranked result set spec §6 returns for /api/query.
type QueryResponse struct {
	Results []QueryResultView `json:"results"`
}

// QueryDeps bundles the collaborator POST /api/query needs.
type QueryDeps struct {
	Coordinator  Retriever
	IsProduction bool
}

// Query serves POST /api/query: embed the question, run the C9 RBAC-scoped
// vector search, redact, and return the ranked results for the calling
// principal.
func Query(deps QueryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		if principal == nil {
			httperr.Write(w, r, apperr.New(apperr.KindAuthentication, "missing session"), deps.IsProduction)
			return
		}

		var req QueryRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes))
		if err := dec.Decode(&req); err != nil {
			httperr.Write(w, r, apperr.Wrap(apperr.KindValidation, "invalid JSON body", err), deps.IsProduction)
			return
		}
		if req.UserQuery == "" {
			httperr.Write(w, r, apperr.New(apperr.KindValidation, "user_query is required"), deps.IsProduction)
			return
		}

		results, err := deps.Coordinator.Query(r.Context(), principal.TenantID, principal.UserID, req.UserQuery, req.K, req.ExpandParents)
		if err != nil {
			httperr.Write(w, r, err, deps.IsProduction)
			return
		}

		view := make([]QueryResultView, len(results))
		for i, res := range results {
			view[i] = QueryResultView{
				Content:        res.Content,
				DocumentID:     res.DocumentID,
				ChunkIndex:     res.ChunkIndex,
				Department:     res.Department,
				Classification: res.Classification,
				Score:          res.Score,
			}
		}
		writeJSON(w, http.StatusOK, QueryResponse{Results: view})
	}
}
