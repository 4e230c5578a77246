package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentinelrag/sentinel/internal/handler"
	"github.com/sentinelrag/sentinel/internal/identity"
	"github.com/sentinelrag/sentinel/internal/middleware"
)

type mockDB struct{ err error }

func (m *mockDB) Ping(ctx context.Context) error { return m.err }

type fakeVerifier struct {
	principal *identity.Principal
	err       error
}

func (f *fakeVerifier) ParseSession(token string) (*identity.Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.principal, nil
}

func newTestRouter() http.Handler {
	deps := &Dependencies{
		DB:          &mockDB{},
		Version:     "0.1.0",
		FrontendURL: "http://localhost:3000",
		Identity:    &fakeVerifier{principal: &identity.Principal{UserID: "u1", TenantID: "t1"}},
		Auth:        handler.AuthDeps{},
		Upload:      handler.UploadDeps{},
		UserDocs:    handler.UserDocsDeps{},
		Query:       handler.QueryDeps{},
	}
	return New(deps)
}

func TestHealth_IsPublic(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealthLive_IsPublic(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealthReady_IsPublic(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRoutes_AreUnauthenticated(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestAPIRoutes_RejectMissingSession(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/user", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAPIRoutes_AcceptBearerSession(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/user", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAPIRoutes_AcceptSessionCookie(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "anything"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdminMigrate_DisabledWithoutSecret(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/admin/migrate", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when no internal auth secret or pool is configured", rec.Code)
	}
}

func TestUnknownRoute_Returns404JSON(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}
