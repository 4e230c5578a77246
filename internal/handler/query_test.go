package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/identity"
	"github.com/sentinelrag/sentinel/internal/middleware"
	"github.com/sentinelrag/sentinel/internal/retrieval"
)

type fakeRetriever struct {
	gotQuestion string
	gotK        int
	results     []retrieval.Result
	err         error
}

func (f *fakeRetriever) Query(ctx context.Context, tenantID, userID, question string, k int, expandParents bool) ([]retrieval.Result, error) {
	f.gotQuestion = question
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func queryRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestQuery_RejectsUnauthenticated(t *testing.T) {
	deps := QueryDeps{Coordinator: &fakeRetriever{}}
	req := queryRequest(t, `{"user_query":"what is the policy?"}`)
	rec := httptest.NewRecorder()

	Query(deps)(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestQuery_RejectsMissingUserQuery(t *testing.T) {
	deps := QueryDeps{Coordinator: &fakeRetriever{}}
	req := queryRequest(t, `{"k":5}`)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), &identity.Principal{UserID: "u1"}))
	rec := httptest.NewRecorder()

	Query(deps)(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestQuery_RejectsMalformedJSON(t *testing.T) {
	deps := QueryDeps{Coordinator: &fakeRetriever{}}
	req := queryRequest(t, `not json`)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), &identity.Principal{UserID: "u1"}))
	rec := httptest.NewRecorder()

	Query(deps)(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestQuery_ReturnsRankedResults(t *testing.T) {
	retriever := &fakeRetriever{results: []retrieval.Result{
		{Content: "redacted text", DocumentID: "d1", ChunkIndex: 0, Department: "legal", Classification: "internal", Score: 0.9},
	}}
	deps := QueryDeps{Coordinator: retriever}
	req := queryRequest(t, `{"user_query":"what is the policy?","k":3}`)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), &identity.Principal{UserID: "u1", TenantID: "t1"}))
	rec := httptest.NewRecorder()

	Query(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if retriever.gotQuestion != "what is the policy?" || retriever.gotK != 3 {
		t.Errorf("query args = (%q, %d), want passed through", retriever.gotQuestion, retriever.gotK)
	}

	var resp QueryResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].DocumentID != "d1" {
		t.Errorf("response = %+v, want one ranked result", resp)
	}
}

func TestQuery_PropagatesCoordinatorFailure(t *testing.T) {
	deps := QueryDeps{Coordinator: &fakeRetriever{err: apperr.New(apperr.KindDependencyFailure, "embedding provider unavailable")}}
	req := queryRequest(t, `{"user_query":"hi"}`)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), &identity.Principal{UserID: "u1"}))
	rec := httptest.NewRecorder()

	Query(deps)(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
