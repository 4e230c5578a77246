package model

import (
	"encoding/json"
	"time"
)

// EventCategory classifies an audit event's broad domain, grounded on
// original_source/services/audit/schemas.py's EventCategory enum.
type EventCategory string

const (
	CategoryAuthentication EventCategory = "authentication"
	CategoryAuthorization  EventCategory = "authorization"
	CategoryDataAccess     EventCategory = "data_access"
	CategoryModification   EventCategory = "modification"
	CategoryAdmin          EventCategory = "admin"
	CategorySystem         EventCategory = "system"
)

// EventOutcome is the actual result of the operation the event describes (I5).
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "success"
	OutcomeFailure EventOutcome = "failure"
	OutcomePartial EventOutcome = "partial"
)

// Action is the verb performed, grounded on schemas.py's Action enum.
type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionDelete  Action = "delete"
	ActionUpdate  Action = "update"
	ActionExecute Action = "execute"
	ActionLogin   Action = "login"
	ActionLogout  Action = "logout"
)

// ResourceType names what a modification/access event touched.
type ResourceType string

const (
	ResourceDocument   ResourceType = "document"
	ResourceChunk      ResourceType = "chunk"
	ResourceUser       ResourceType = "user"
	ResourceRole       ResourceType = "role"
	ResourceDepartment ResourceType = "department"
	ResourceQuery      ResourceType = "query"
	ResourceSystem     ResourceType = "system"
)

// AuditEvent is the main event row (table `audit_logs`). It carries actor,
// classification, resource reference, access context and compliance fields
// common to every event; specialised records attach via LogID.
type AuditEvent struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenantId"`
	CreatedAt time.Time     `json:"createdAt"`
	Sequence  int64         `json:"sequence"` // monotonic per-event id, for ordering (§5)
	Archived  bool          `json:"archived"` // I6: the only field allowed to transition after write

	// Actor
	UserID    string `json:"userId,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`

	// Classification
	Category EventCategory `json:"category"`
	Type     string        `json:"type"`
	Action   Action        `json:"action"`
	Outcome  EventOutcome  `json:"outcome"`

	// Resource reference
	ResourceType ResourceType `json:"resourceType,omitempty"`
	ResourceID   string       `json:"resourceId,omitempty"`
	ResourceName string       `json:"resourceName,omitempty"`

	// Access context
	DepartmentID       string         `json:"departmentId,omitempty"`
	DepartmentName     string         `json:"departmentName,omitempty"`
	RoleID             string         `json:"roleId,omitempty"`
	RoleName           string         `json:"roleName,omitempty"`
	ClassificationName Classification `json:"classificationName,omitempty"`

	// Compliance
	PIIAccessed  bool     `json:"piiAccessed"`
	PIITypes     []string `json:"piiTypes,omitempty"`
	DataRedacted bool     `json:"dataRedacted"`

	Changes      json.RawMessage `json:"changes,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`

	// RetentionYears is captured at write time so later policy changes do not
	// retroactively expire old records.
	RetentionYears int `json:"retentionYears"`

	// PrevHash/Hash form the append-only integrity chain (supplemented
	// feature, grounded on the teacher's audit.go hash chain).
	PrevHash string `json:"prevHash,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// QueryAuditEvent specialises an AuditEvent for a retrieval-coordinator (C9)
// invocation. QueryTextHash is SHA-256 of the raw query text — the text
// itself is never persisted, since it may itself contain PII.
type QueryAuditEvent struct {
	LogID                string          `json:"logId"`
	UserID               string          `json:"userId"`
	QueryTextHash        string          `json:"queryTextHash"`
	ChunksRetrieved      int             `json:"chunksRetrieved"`
	ChunksAccessed       int             `json:"chunksAccessed"`
	DocumentsAccessed    int             `json:"documentsAccessed"`
	VectorSearchTimeMs   int64           `json:"vectorSearchTimeMs"`
	EmbeddingTimeMs      int64           `json:"embeddingTimeMs"`
	TotalResponseTimeMs  int64           `json:"totalResponseTimeMs"`
	FiltersApplied       json.RawMessage `json:"filtersApplied,omitempty"`
	ChunksFiltered       int             `json:"chunksFiltered"`
	Metadata             json.RawMessage `json:"metadata,omitempty"`
}

// AuthAuditEvent specialises an AuditEvent for an authentication/authorization
// event (OIDC login, token refresh, registration).
type AuthAuditEvent struct {
	LogID        string `json:"logId"`
	UserID       string `json:"userId,omitempty"`
	Provider     string `json:"provider,omitempty"`
	TokenKind    string `json:"tokenKind,omitempty"` // "session" | "registration"
	FailureStage string `json:"failureStage,omitempty"`
}

// ModificationAuditEvent specialises an AuditEvent for a write to a specific
// (table, record) pair — used for the compliance "modification history" query.
type ModificationAuditEvent struct {
	LogID     string          `json:"logId"`
	TableName string          `json:"tableName"`
	RecordID  string          `json:"recordId"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
}
