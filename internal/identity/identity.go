// Package identity implements the OIDC external-collaborator contract of
// spec.md §6: login → callback → (session | registration_required) →
// register, plus verification of the signed session token that guards every
// authenticated endpoint.
//
// Grounded on manifold's internal/auth/oidc.go — the coreos/go-oidc/v3
// provider plus golang.org/x/oauth2 authorization-code exchange are kept
// almost unchanged (NewOIDC, LoginHandler's AuthCodeURL construction,
// CallbackHandler's Exchange-then-Verify sequence). No PKCE
// challenge/verifier is sent; the signed state token is the only binding
// between login and callback. Unlike manifold's server-side session-ID cookie backed by a
// Store, Sentinel's state, session, and registration tokens are all
// self-contained signed JWTs (golang-jwt/jwt/v5, HMAC) carrying exactly the
// claim sets spec §6 names — there is no session table to consult on every
// request, and a second instance can verify a token minted by the first.
// The teacher's internal/middleware/auth.go constant-time internal-auth
// header check is kept verbatim as InternalAuth.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/model"
)

const (
	stateTTL          = 10 * time.Minute
	registrationTTL   = 15 * time.Minute
	defaultSessionTTL = 60 * time.Minute
	issuer            = "sentinel"
)

// UserStore is the C5 identity surface the flow needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, tenantID, email string) (*model.User, error)
	EnsureUser(ctx context.Context, tenantID, email, fullName string) (*model.User, error)
	EnsureDepartment(ctx context.Context, tenantID, name string) (*model.Department, error)
	EnsureRole(ctx context.Context, tenantID, departmentID, name string) (*model.Role, error)
	GrantAccess(ctx context.Context, userID, departmentID, roleID string) error
	AccessGrants(ctx context.Context, userID string) ([]model.AccessGrant, error)
}

// AuditLogger is C10's surface for authentication events.
type AuditLogger interface {
	LogAuth(ctx context.Context, ev *model.AuditEvent, a model.AuthAuditEvent) (*model.AuditEvent, error)
}

// Principal is the authenticated identity a verified session token yields.
type Principal struct {
	UserID     string
	TenantID   string
	Email      string
	Role       string
	Department string
}

// PendingPrincipal is the half-authenticated state a registration token
// carries (spec §9: "a distinct principal kind... reject everywhere else").
type PendingPrincipal struct {
	TenantID string
	Email    string
}

// RegistrationRequired is returned by Callback when the verified email has
// no matching user; the caller hands this token back to the client instead
// of a session (the `registration_required` response spec §6 names).
type RegistrationRequired struct {
	Token string
	Email string
}

// Result is a completed, successful authentication.
type Result struct {
	Token     string
	Principal Principal
}

type sessionClaims struct {
	UserID     string `json:"user_id"`
	TenantID   string `json:"tenant_id"`
	Role       string `json:"role"`
	Department string `json:"department"`
	jwt.RegisteredClaims
}

type registrationClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

type stateClaims struct {
	TenantID string `json:"tenant_id"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// Service runs the OIDC authorization-code flow and verifies the tokens it
// issues.
type Service struct {
	provider   *oidc.Provider
	oauth2Cfg  *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	signingKey []byte
	users      UserStore
	audit      AuditLogger
	sessionTTL time.Duration
}

// New builds a Service against a live OIDC provider. signingKey must be at
// least 32 bytes (config.Load enforces this outside development).
func New(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string, signingKey []byte, users UserStore, audit AuditLogger) (*Service, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "discover oidc provider", err)
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	return &Service{
		provider:   provider,
		oauth2Cfg:  cfg,
		verifier:   provider.Verifier(&oidc.Config{ClientID: clientID}),
		signingKey: signingKey,
		users:      users,
		audit:      audit,
		sessionTTL: defaultSessionTTL,
	}, nil
}

// WithSessionTTL overrides the default 60-minute session expiry (spec §6:
// "Configurable expiry, default 60 min").
func (s *Service) WithSessionTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
	return s
}

// SessionTTL reports the expiry new sessions are issued with, so the HTTP
// layer can set a matching cookie Max-Age.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// LoginURL builds the OIDC authorization URL carrying a signed state token
// `{tenant_id, nonce, timestamp}` (spec §6) in place of a server-side
// session, so callback can validate state without consulting any store.
func (s *Service) LoginURL(tenantID string) (string, error) {
	nonce, err := randomNonce()
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "generate nonce", err)
	}
	now := time.Now()
	claims := stateClaims{
		TenantID: tenantID,
		Nonce:    nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	state, err := s.sign(claims)
	if err != nil {
		return "", err
	}
	return s.oauth2Cfg.AuthCodeURL(state), nil
}

// Callback completes the authorization-code exchange, validates the state
// token's signature and age (≤10 min, per spec §6), and either issues a
// session token for a known user or a registration token for an unknown one.
func (s *Service) Callback(ctx context.Context, code, state string) (*Result, *RegistrationRequired, error) {
	var st stateClaims
	if err := s.verify(state, &st); err != nil {
		s.auditAuth(ctx, "", "", model.OutcomeFailure, "state_validation", err)
		return nil, nil, apperr.Wrap(apperr.KindAuthentication, "invalid or expired state", err)
	}

	tok, err := s.oauth2Cfg.Exchange(ctx, code)
	if err != nil {
		s.auditAuth(ctx, st.TenantID, "", model.OutcomeFailure, "code_exchange", err)
		return nil, nil, apperr.Wrap(apperr.KindAuthentication, "authorization code exchange failed", err)
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return nil, nil, apperr.New(apperr.KindAuthentication, "provider did not return an id_token")
	}
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		s.auditAuth(ctx, st.TenantID, "", model.OutcomeFailure, "id_token_verify", err)
		return nil, nil, apperr.Wrap(apperr.KindAuthentication, "id token verification failed", err)
	}
	var userInfo struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&userInfo); err != nil || userInfo.Email == "" {
		return nil, nil, apperr.New(apperr.KindAuthentication, "id token missing email claim")
	}

	user, err := s.users.GetUserByEmail(ctx, st.TenantID, userInfo.Email)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			return nil, nil, err
		}
		regToken, rerr := s.signRegistration(st.TenantID, userInfo.Email)
		if rerr != nil {
			return nil, nil, rerr
		}
		s.auditAuth(ctx, st.TenantID, "", model.OutcomeSuccess, "", nil)
		return nil, &RegistrationRequired{Token: regToken, Email: userInfo.Email}, nil
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

// Register completes a PendingPrincipal's enrollment: it creates the
// department/role grant the new user requested and upgrades the pending
// registration into a full session (spec §9's PendingPrincipal can call
// only this operation).
func (s *Service) Register(ctx context.Context, registrationToken, fullName, department, role string) (*Result, error) {
	var rc registrationClaims
	if err := s.verify(registrationToken, &rc); err != nil {
		s.auditAuth(ctx, "", "", model.OutcomeFailure, "registration_token_verify", err)
		return nil, apperr.Wrap(apperr.KindAuthentication, "invalid or expired registration token", err)
	}

	if _, err := s.users.GetUserByEmail(ctx, rc.TenantID, rc.Subject); err == nil {
		return nil, apperr.New(apperr.KindConflict, "user already registered")
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	user, err := s.users.EnsureUser(ctx, rc.TenantID, rc.Subject, fullName)
	if err != nil {
		return nil, err
	}
	if department != "" && role != "" {
		dept, err := s.users.EnsureDepartment(ctx, rc.TenantID, department)
		if err != nil {
			return nil, err
		}
		roleRow, err := s.users.EnsureRole(ctx, rc.TenantID, dept.ID, role)
		if err != nil {
			return nil, err
		}
		if err := s.users.GrantAccess(ctx, user.ID, dept.ID, roleRow.ID); err != nil {
			return nil, err
		}
	}

	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user *model.User) (*Result, error) {
	grants, err := s.users.AccessGrants(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	var department, role string
	if len(grants) > 0 {
		department, role = grants[0].DepartmentName, grants[0].RoleName
	}

	now := time.Now()
	claims := sessionClaims{
		UserID:     user.ID,
		TenantID:   user.TenantID,
		Role:       role,
		Department: department,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
		},
	}
	token, err := s.sign(claims)
	if err != nil {
		return nil, err
	}

	s.auditAuth(ctx, user.TenantID, user.ID, model.OutcomeSuccess, "", nil)
	return &Result{
		Token: token,
		Principal: Principal{
			UserID:     user.ID,
			TenantID:   user.TenantID,
			Email:      user.Email,
			Role:       role,
			Department: department,
		},
	}, nil
}

// ParseSession verifies a session token and returns its principal. The
// authentication path fails closed (spec §7): any error here means
// unauthenticated, never "authenticated as zero-value".
func (s *Service) ParseSession(token string) (*Principal, error) {
	var claims sessionClaims
	if err := s.verify(token, &claims); err != nil {
		return nil, apperr.Wrap(apperr.KindAuthentication, "invalid or expired session", err)
	}
	return &Principal{
		UserID:     claims.UserID,
		TenantID:   claims.TenantID,
		Email:      claims.Subject,
		Role:       claims.Role,
		Department: claims.Department,
	}, nil
}

// ParseRegistration verifies a registration token and returns the pending
// principal it authorizes — valid only for the /auth/register endpoint.
func (s *Service) ParseRegistration(token string) (*PendingPrincipal, error) {
	var claims registrationClaims
	if err := s.verify(token, &claims); err != nil {
		return nil, apperr.Wrap(apperr.KindAuthentication, "invalid or expired registration token", err)
	}
	return &PendingPrincipal{TenantID: claims.TenantID, Email: claims.Subject}, nil
}

func (s *Service) signRegistration(tenantID, email string) (string, error) {
	now := time.Now()
	claims := registrationClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(registrationTTL)),
		},
	}
	return s.sign(claims)
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "sign token", err)
	}
	return tok, nil
}

func (s *Service) verify(raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithValidMethods([]string{"HS256"}))
	return err
}

func (s *Service) auditAuth(ctx context.Context, tenantID, userID string, outcome model.EventOutcome, failureStage string, cause error) {
	if s.audit == nil {
		return
	}
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	ev := &model.AuditEvent{
		TenantID: tenantID, UserID: userID, Category: model.CategoryAuthentication,
		Type: "oidc_login", Action: model.ActionLogin, Outcome: outcome, ErrorMessage: errMsg,
	}
	_, _ = s.audit.LogAuth(ctx, ev, model.AuthAuditEvent{UserID: userID, Provider: "oidc", TokenKind: "session", FailureStage: failureStage})
}

func randomNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// InternalAuth reports whether token matches secret using a constant-time
// comparison — grounded verbatim on the teacher's
// internal/middleware/auth.go InternalOrFirebaseAuth header check, used for
// service-to-service calls that bypass the OIDC flow entirely.
func InternalAuth(token, secret string) bool {
	if token == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
