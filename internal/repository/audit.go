package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/model"
)

// AuditRepo owns the four audit tables and the hash chain that links them —
// grounded directly on the teacher's AuditRepo (Create/ListFilter/List/
// GetRange/GetLatestHash), extended with the query/auth/modification satellite
// tables original_source/audit_service.py and schemas.py model as separate
// rows keyed by the parent audit_logs row's id.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// GetLatestHash returns the hash of the most recently written audit row for
// a tenant, or "" if none exists yet — the seed for the next row's PrevHash.
func (r *AuditRepo) GetLatestHash(ctx context.Context, tenantID string) (string, error) {
	const q = `SELECT hash FROM audit_logs WHERE tenant_id = $1 ORDER BY sequence DESC LIMIT 1`
	var hash string
	err := r.pool.QueryRow(ctx, q, tenantID).Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", apperr.Wrap(apperr.KindDependencyFailure, "get latest audit hash", err)
	}
	return hash, nil
}

// computeHash chains this event to the previous row: sha256 over a stable
// field ordering plus prev_hash, so any row's tampering breaks every
// subsequent hash (spec's hash-chained integrity supplement).
func computeHash(ev *model.AuditEvent) string {
	h := sha256.New()
	h.Write([]byte(ev.PrevHash))
	h.Write([]byte(ev.TenantID))
	h.Write([]byte(ev.UserID))
	h.Write([]byte(ev.Category))
	h.Write([]byte(ev.Action))
	h.Write([]byte(ev.Outcome))
	h.Write([]byte(ev.ResourceType))
	h.Write([]byte(ev.ResourceID))
	h.Write([]byte(strconv.FormatInt(ev.CreatedAt.UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Log writes one audit_logs row, chaining it to the tenant's latest hash.
// Callers (internal/audit's async sink) are expected to serialize writes per
// tenant so the chain stays strictly ordered.
func (r *AuditRepo) Log(ctx context.Context, ev *model.AuditEvent) error {
	prev, err := r.GetLatestHash(ctx, ev.TenantID)
	if err != nil {
		return err
	}
	ev.PrevHash = prev
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	// created_at stores microseconds; hash the value VerifyChain reads back.
	ev.CreatedAt = ev.CreatedAt.Truncate(time.Microsecond)
	ev.Hash = computeHash(ev)

	const q = `
		INSERT INTO audit_logs (id, tenant_id, archived, user_id, user_email, session_id, ip_address, user_agent,
			category, event_type, action, outcome, resource_type, resource_id, resource_name, department_id,
			department_name, role_id, role_name, classification_name, pii_accessed, pii_types, data_redacted,
			changes, error_message, metadata, retention_years, prev_hash, hash, created_at)
		VALUES ($1,$2,false,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`
	_, err = r.pool.Exec(ctx, q,
		ev.ID, ev.TenantID, ev.UserID, ev.UserEmail, ev.SessionID, ev.IPAddress, ev.UserAgent,
		ev.Category, ev.Type, ev.Action, ev.Outcome, ev.ResourceType, ev.ResourceID, ev.ResourceName,
		ev.DepartmentID, ev.DepartmentName, ev.RoleID, ev.RoleName, ev.ClassificationName,
		ev.PIIAccessed, joinTypes(ev.PIITypes), ev.DataRedacted, rawOrNull(ev.Changes), ev.ErrorMessage, rawOrNull(ev.Metadata),
		ev.RetentionYears, ev.PrevHash, ev.Hash, ev.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "write audit log", err)
	}
	return nil
}

// LogQuery writes the query_audit satellite row alongside an already-written
// audit_logs parent row.
func (r *AuditRepo) LogQuery(ctx context.Context, logID string, q model.QueryAuditEvent) error {
	const stmt = `
		INSERT INTO query_audit (log_id, user_id, query_text_hash, chunks_retrieved, chunks_accessed,
			documents_accessed, vector_search_time_ms, embedding_time_ms, total_response_time_ms,
			filters_applied, chunks_filtered, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.pool.Exec(ctx, stmt, logID, q.UserID, q.QueryTextHash, q.ChunksRetrieved, q.ChunksAccessed,
		q.DocumentsAccessed, q.VectorSearchTimeMs, q.EmbeddingTimeMs, q.TotalResponseTimeMs,
		rawOrNull(q.FiltersApplied), q.ChunksFiltered, rawOrNull(q.Metadata))
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "write query audit", err)
	}
	return nil
}

func (r *AuditRepo) LogAuth(ctx context.Context, logID string, a model.AuthAuditEvent) error {
	const stmt = `
		INSERT INTO auth_audit (log_id, user_id, provider, token_kind, failure_stage)
		VALUES ($1,$2,$3,$4,$5)`
	if _, err := r.pool.Exec(ctx, stmt, logID, a.UserID, a.Provider, a.TokenKind, a.FailureStage); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "write auth audit", err)
	}
	return nil
}

func (r *AuditRepo) LogModification(ctx context.Context, logID string, m model.ModificationAuditEvent) error {
	const stmt = `
		INSERT INTO modification_audit (log_id, table_name, record_id, before_state, after_state)
		VALUES ($1,$2,$3,$4,$5)`
	if _, err := r.pool.Exec(ctx, stmt, logID, m.TableName, m.RecordID, rawOrNull(m.Before), rawOrNull(m.After)); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "write modification audit", err)
	}
	return nil
}

// rawOrNull passes a json.RawMessage through to pgx, substituting SQL NULL
// for an empty/nil message rather than writing the literal string "null".
func rawOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// VerifyChain recomputes every hash in sequence order and reports the id of
// the first row whose stored hash no longer matches, confirming the chain is
// intact end to end.
func (r *AuditRepo) VerifyChain(ctx context.Context, tenantID string) (intact bool, brokenAt string, err error) {
	const q = `
		SELECT id, tenant_id, user_id, category, action, outcome, resource_type, resource_id, prev_hash, hash, created_at
		FROM audit_logs WHERE tenant_id = $1 ORDER BY sequence ASC`
	rows, qerr := r.pool.Query(ctx, q, tenantID)
	if qerr != nil {
		return false, "", apperr.Wrap(apperr.KindDependencyFailure, "verify chain query", qerr)
	}
	defer rows.Close()

	expectedPrev := ""
	for rows.Next() {
		var ev model.AuditEvent
		if serr := rows.Scan(&ev.ID, &ev.TenantID, &ev.UserID, &ev.Category, &ev.Action, &ev.Outcome,
			&ev.ResourceType, &ev.ResourceID, &ev.PrevHash, &ev.Hash, &ev.CreatedAt); serr != nil {
			return false, "", apperr.Wrap(apperr.KindDependencyFailure, "scan audit row for verify", serr)
		}
		if ev.PrevHash != expectedPrev {
			return false, ev.ID, nil
		}
		if computeHash(&ev) != ev.Hash {
			return false, ev.ID, nil
		}
		expectedPrev = ev.Hash
	}
	return true, "", rows.Err()
}

// ListByUser returns recent audit_logs rows for compliance review of a
// single user's activity.
func (r *AuditRepo) ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]model.AuditEvent, error) {
	const q = `
		SELECT id, tenant_id, sequence, archived, user_id, user_email, session_id, ip_address, user_agent,
			category, event_type, action, outcome, resource_type, resource_id, resource_name, department_id,
			department_name, role_id, role_name, classification_name, pii_accessed, pii_types, data_redacted,
			error_message, retention_years, prev_hash, hash, created_at
		FROM audit_logs WHERE tenant_id = $1 AND user_id = $2 ORDER BY sequence DESC LIMIT $3`
	rows, err := r.pool.Query(ctx, q, tenantID, userID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "list audit by user", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var piiTypes string
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.Sequence, &ev.Archived, &ev.UserID, &ev.UserEmail,
			&ev.SessionID, &ev.IPAddress, &ev.UserAgent, &ev.Category, &ev.Type, &ev.Action, &ev.Outcome,
			&ev.ResourceType, &ev.ResourceID, &ev.ResourceName, &ev.DepartmentID, &ev.DepartmentName,
			&ev.RoleID, &ev.RoleName, &ev.ClassificationName, &ev.PIIAccessed, &piiTypes, &ev.DataRedacted,
			&ev.ErrorMessage, &ev.RetentionYears, &ev.PrevHash, &ev.Hash, &ev.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindDependencyFailure, "scan audit event", err)
		}
		ev.PIITypes = splitTypes(piiTypes)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Archive flags audit rows older than cutoff as archived rather than
// deleting them, preserving the hash chain. ListByUser does not filter on
// the flag, so archived rows still appear in its results.
func (r *AuditRepo) Archive(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	const q = `UPDATE audit_logs SET archived = true WHERE tenant_id = $1 AND created_at < $2 AND NOT archived`
	tag, err := r.pool.Exec(ctx, q, tenantID, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindDependencyFailure, "archive audit logs", err)
	}
	return tag.RowsAffected(), nil
}

func joinTypes(types []string) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}

func splitTypes(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
