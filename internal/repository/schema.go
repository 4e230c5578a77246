package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates every table C5 needs if it does not already exist.
// Schema creation is idempotent at startup (spec.md §4.5), so cmd/server can
// call this unconditionally on every boot.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("repository.EnsureSchema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		email TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_login_at TIMESTAMPTZ,
		UNIQUE (tenant_id, email)
	)`,

	`CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		name TEXT NOT NULL,
		UNIQUE (tenant_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		department_id TEXT NOT NULL REFERENCES departments(id),
		name TEXT NOT NULL,
		UNIQUE (department_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS user_access (
		user_id TEXT NOT NULL REFERENCES users(id),
		department_id TEXT NOT NULL REFERENCES departments(id),
		role_id TEXT NOT NULL REFERENCES roles(id),
		PRIMARY KEY (user_id, department_id, role_id)
	)`,

	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL,
		uploaded_by TEXT NOT NULL REFERENCES users(id),
		department_id TEXT NOT NULL REFERENCES departments(id),
		classification TEXT NOT NULL,
		index_status TEXT NOT NULL DEFAULT 'received',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS parent_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		page INTEGER NOT NULL DEFAULT 0,
		header TEXT NOT NULL DEFAULT '',
		chunk_type TEXT NOT NULL DEFAULT 'parent',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS child_chunks (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		document_id TEXT NOT NULL REFERENCES documents(id),
		parent_chunk_id TEXT REFERENCES parent_chunks(id),
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		page INTEGER NOT NULL DEFAULT 0,
		header TEXT NOT NULL DEFAULT '',
		embedding vector,
		chunk_type TEXT NOT NULL DEFAULT 'child',
		department TEXT NOT NULL,
		classification TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_child_chunks_doc_id ON child_chunks(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_child_chunks_tenant_dept_class ON child_chunks(tenant_id, department, classification)`,
	`CREATE INDEX IF NOT EXISTS idx_child_chunks_chunk_type ON child_chunks(chunk_type)`,
	`CREATE INDEX IF NOT EXISTS idx_child_chunks_embedding ON child_chunks USING hnsw (embedding vector_cosine_ops)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		sequence BIGSERIAL,
		archived BOOLEAN NOT NULL DEFAULT false,
		user_id TEXT NOT NULL DEFAULT '',
		user_email TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		event_type TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		outcome TEXT NOT NULL,
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		resource_name TEXT NOT NULL DEFAULT '',
		department_id TEXT NOT NULL DEFAULT '',
		department_name TEXT NOT NULL DEFAULT '',
		role_id TEXT NOT NULL DEFAULT '',
		role_name TEXT NOT NULL DEFAULT '',
		classification_name TEXT NOT NULL DEFAULT '',
		pii_accessed BOOLEAN NOT NULL DEFAULT false,
		pii_types TEXT NOT NULL DEFAULT '',
		data_redacted BOOLEAN NOT NULL DEFAULT false,
		changes JSONB,
		error_message TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		retention_years INTEGER NOT NULL DEFAULT 5,
		prev_hash TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_category ON audit_logs(category)`,

	`CREATE TABLE IF NOT EXISTS query_audit (
		log_id TEXT PRIMARY KEY REFERENCES audit_logs(id),
		user_id TEXT NOT NULL,
		query_text_hash TEXT NOT NULL,
		chunks_retrieved INTEGER NOT NULL DEFAULT 0,
		chunks_accessed INTEGER NOT NULL DEFAULT 0,
		documents_accessed INTEGER NOT NULL DEFAULT 0,
		vector_search_time_ms BIGINT NOT NULL DEFAULT 0,
		embedding_time_ms BIGINT NOT NULL DEFAULT 0,
		total_response_time_ms BIGINT NOT NULL DEFAULT 0,
		filters_applied JSONB,
		chunks_filtered INTEGER NOT NULL DEFAULT 0,
		metadata JSONB
	)`,

	`CREATE TABLE IF NOT EXISTS auth_audit (
		log_id TEXT PRIMARY KEY REFERENCES audit_logs(id),
		user_id TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		token_kind TEXT NOT NULL DEFAULT '',
		failure_stage TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS modification_audit (
		log_id TEXT PRIMARY KEY REFERENCES audit_logs(id),
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		before_state JSONB,
		after_state JSONB
	)`,

	`CREATE INDEX IF NOT EXISTS idx_modification_audit_record ON modification_audit(table_name, record_id)`,
}
