package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/identity"
	"github.com/sentinelrag/sentinel/internal/ingest"
	"github.com/sentinelrag/sentinel/internal/middleware"
	"github.com/sentinelrag/sentinel/internal/model"
)

type fakeIngester struct {
	got ingest.Upload
	doc *model.Document
	err error
}

func (f *fakeIngester) Ingest(ctx context.Context, u ingest.Upload) (*model.Document, error) {
	f.got = u
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type fakeDepartmentResolver struct {
	dept *model.Department
	err  error
}

func (f *fakeDepartmentResolver) EnsureDepartment(ctx context.Context, tenantID, name string) (*model.Department, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.dept, nil
}

func multipartUploadRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadDocument_RejectsUnauthenticated(t *testing.T) {
	deps := UploadDeps{Pipeline: &fakeIngester{}, Departments: &fakeDepartmentResolver{}}
	req := multipartUploadRequest(t, map[string]string{"title": "t", "department": "legal", "classification": "internal"}, "a.txt", "hi")
	rec := httptest.NewRecorder()

	UploadDocument(deps)(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestUploadDocument_RejectsMissingRequiredFields(t *testing.T) {
	deps := UploadDeps{Pipeline: &fakeIngester{}, Departments: &fakeDepartmentResolver{}}
	req := multipartUploadRequest(t, map[string]string{"classification": "internal"}, "a.txt", "hi")
	req = req.WithContext(middleware.WithPrincipal(req.Context(), &identity.Principal{UserID: "u1", TenantID: "t1"}))
	rec := httptest.NewRecorder()

	UploadDocument(deps)(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestUploadDocument_RejectsInvalidClassification(t *testing.T) {
	deps := UploadDeps{Pipeline: &fakeIngester{}, Departments: &fakeDepartmentResolver{}}
	req := multipartUploadRequest(t, map[string]string{"title": "t", "department": "legal", "classification": "top-secret"}, "a.txt", "hi")
	req = req.WithContext(middleware.WithPrincipal(req.Context(), &identity.Principal{UserID: "u1", TenantID: "t1"}))
	rec := httptest.NewRecorder()

	UploadDocument(deps)(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestUploadDocument_RunsPipelineAndReturnsCommittedDocument(t *testing.T) {
	ingester := &fakeIngester{doc: &model.Document{ID: "d1", Title: "Policy", IndexStatus: model.IndexCommitted, ChunkCount: 3, Classification: model.ClassificationInternal}}
	deps := UploadDeps{
		Pipeline:    ingester,
		Departments: &fakeDepartmentResolver{dept: &model.Department{ID: "dept1", Name: "legal"}},
	}
	req := multipartUploadRequest(t, map[string]string{"title": "Policy", "department": "legal", "classification": "internal", "description": "desc"}, "policy.pdf", "file-bytes")
	req = req.WithContext(middleware.WithPrincipal(req.Context(), &identity.Principal{UserID: "u1", TenantID: "t1"}))
	rec := httptest.NewRecorder()

	UploadDocument(deps)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
	if ingester.got.UploadedBy != "u1" || ingester.got.TenantID != "t1" || ingester.got.DepartmentID != "dept1" {
		t.Errorf("ingest.Upload = %+v, want scoped to principal/department", ingester.got)
	}

	var resp UploadResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ID != "d1" || resp.ChunkCount != 3 {
		t.Errorf("response = %+v, want document echoed back", resp)
	}
}

func TestUploadDocument_PropagatesPipelineFailure(t *testing.T) {
	ingester := &fakeIngester{err: apperr.New(apperr.KindDependencyFailure, "vector store unavailable")}
	deps := UploadDeps{Pipeline: ingester, Departments: &fakeDepartmentResolver{dept: &model.Department{ID: "dept1", Name: "legal"}}}
	req := multipartUploadRequest(t, map[string]string{"title": "t", "department": "legal", "classification": "internal"}, "a.txt", "hi")
	req = req.WithContext(middleware.WithPrincipal(req.Context(), &identity.Principal{UserID: "u1", TenantID: "t1"}))
	rec := httptest.NewRecorder()

	UploadDocument(deps)(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
