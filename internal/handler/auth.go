package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/httperr"
	"github.com/sentinelrag/sentinel/internal/identity"
	"github.com/sentinelrag/sentinel/internal/middleware"
	"github.com/sentinelrag/sentinel/internal/model"
)

// AuthService is the identity surface the auth handlers drive.
type AuthService interface {
	LoginURL(tenantID string) (string, error)
	Callback(ctx context.Context, code, state string) (*identity.Result, *identity.RegistrationRequired, error)
	Register(ctx context.Context, registrationToken, fullName, department, role string) (*identity.Result, error)
	SessionTTL() time.Duration
}

// TenantResolver is the C5 surface GET /auth/login uses to turn the caller's
// domain into the tenant_id the OIDC state token carries.
type TenantResolver interface {
	GetTenantByDomain(ctx context.Context, domain string) (*model.Tenant, error)
}

// AuthDeps bundles the collaborators the four auth endpoints of spec.md §6
// need.
type AuthDeps struct {
	Identity     AuthService
	Tenants      TenantResolver
	CookieSecure bool
	IsProduction bool
}

// Login serves GET /auth/login: resolve the caller's tenant from the
// ?domain= query parameter and redirect to the provider's authorization URL.
func Login(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		domain := r.URL.Query().Get("domain")
		if domain == "" {
			httperr.Write(w, r, apperr.New(apperr.KindValidation, "domain query parameter is required"), deps.IsProduction)
			return
		}

		tenant, err := deps.Tenants.GetTenantByDomain(r.Context(), domain)
		if err != nil {
			httperr.Write(w, r, err, deps.IsProduction)
			return
		}

		url, err := deps.Identity.LoginURL(tenant.ID)
		if err != nil {
			httperr.Write(w, r, err, deps.IsProduction)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

// registrationRequiredResponse is spec §6's `registration_required` shape.
type registrationRequiredResponse struct {
	RegistrationRequired bool   `json:"registration_required"`
	Token                string `json:"token"`
	Email                string `json:"email"`
}

type sessionResponse struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	TenantID   string `json:"tenantId"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// Callback serves GET /auth/callback: complete the authorization-code
// exchange and either set a session cookie or hand back a registration
// token (spec §6).
func Callback(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")
		if code == "" || state == "" {
			httperr.Write(w, r, apperr.New(apperr.KindValidation, "code and state query parameters are required"), deps.IsProduction)
			return
		}

		result, pending, err := deps.Identity.Callback(r.Context(), code, state)
		if err != nil {
			httperr.Write(w, r, err, deps.IsProduction)
			return
		}
		if pending != nil {
			writeJSON(w, http.StatusOK, registrationRequiredResponse{
				RegistrationRequired: true,
				Token:                pending.Token,
				Email:                pending.Email,
			})
			return
		}

		setSessionCookie(w, result.Token, deps.Identity.SessionTTL(), deps.CookieSecure)
		writeJSON(w, http.StatusOK, sessionResponse{
			UserID:     result.Principal.UserID,
			Email:      result.Principal.Email,
			TenantID:   result.Principal.TenantID,
			Role:       result.Principal.Role,
			Department: result.Principal.Department,
		})
	}
}

// registerRequest is spec §6's POST /auth/register body: the token issued
// by Callback plus the new collaborator's self-declared profile.
type registerRequest struct {
	RegistrationToken string `json:"registration_token"`
	FullName          string `json:"full_name"`
	Department        string `json:"department"`
	Role              string `json:"role"`
}

// Register serves POST /auth/register: upgrade a PendingPrincipal into a
// full user and session.
func Register(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)).Decode(&req); err != nil {
			httperr.Write(w, r, apperr.Wrap(apperr.KindValidation, "invalid JSON body", err), deps.IsProduction)
			return
		}
		if req.RegistrationToken == "" || req.FullName == "" {
			httperr.Write(w, r, apperr.New(apperr.KindValidation, "registration_token and full_name are required"), deps.IsProduction)
			return
		}

		result, err := deps.Identity.Register(r.Context(), req.RegistrationToken, req.FullName, req.Department, req.Role)
		if err != nil {
			httperr.Write(w, r, err, deps.IsProduction)
			return
		}

		setSessionCookie(w, result.Token, deps.Identity.SessionTTL(), deps.CookieSecure)
		writeJSON(w, http.StatusCreated, sessionResponse{
			UserID:     result.Principal.UserID,
			Email:      result.Principal.Email,
			TenantID:   result.Principal.TenantID,
			Role:       result.Principal.Role,
			Department: result.Principal.Department,
		})
	}
}

// Logout serves POST /auth/logout: there is no server-side session to
// revoke (sessions are self-contained JWTs), so logout just expires the
// cookie the browser holds.
func Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
