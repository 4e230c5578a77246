package handler

import (
	"context"
	"net/http"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/httperr"
	"github.com/sentinelrag/sentinel/internal/middleware"
	"github.com/sentinelrag/sentinel/internal/model"
)

// UploaderDocLister is the C5 surface behind POST /api/user/docs.
type UploaderDocLister interface {
	GetDocumentsByUploader(ctx context.Context, userID string) ([]model.DocumentSummary, error)
}

// UserResponse describes the calling principal (spec §6's POST /api/user).
type UserResponse struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	TenantID   string `json:"tenantId"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// CurrentUser serves POST /api/user: the authenticated caller's own
// identity, read straight off the verified session principal — no store
// lookup needed since the session token already carries every claim spec §6
// asks this endpoint to return.
func CurrentUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		if principal == nil {
			httperr.Write(w, r, apperr.New(apperr.KindAuthentication, "missing session"), false)
			return
		}
		writeJSON(w, http.StatusOK, UserResponse{
			UserID:     principal.UserID,
			Email:      principal.Email,
			TenantID:   principal.TenantID,
			Role:       principal.Role,
			Department: principal.Department,
		})
	}
}

// UserDocsDeps bundles the collaborator POST /api/user/docs needs.
type UserDocsDeps struct {
	Docs         UploaderDocLister
	IsProduction bool
}

// UserDocuments serves POST /api/user/docs: every document the calling
// principal has personally uploaded, regardless of what RBAC would later
// let them retrieve through search — this is "my uploads", not "my search
// scope".
func UserDocuments(deps UserDocsDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		if principal == nil {
			httperr.Write(w, r, apperr.New(apperr.KindAuthentication, "missing session"), deps.IsProduction)
			return
		}

		docs, err := deps.Docs.GetDocumentsByUploader(r.Context(), principal.UserID)
		if err != nil {
			httperr.Write(w, r, err, deps.IsProduction)
			return
		}
		if docs == nil {
			docs = []model.DocumentSummary{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}
