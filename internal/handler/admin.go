package handler

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelrag/sentinel/internal/httperr"
	"github.com/sentinelrag/sentinel/internal/repository"
)

// SchemaEnsurer is the one operation POST /api/admin/migrate triggers.
type SchemaEnsurer func(ctx context.Context, pool *pgxpool.Pool) error

// AdminMigrate serves POST /api/admin/migrate: an internal-auth-only trigger
// that runs repository.EnsureSchema against the live pool, for a deploy
// pipeline to call instead of running a separate migration binary —
// grounded on the teacher's own internal-auth-gated admin migrate endpoint.
func AdminMigrate(pool *pgxpool.Pool, ensure SchemaEnsurer) http.HandlerFunc {
	if ensure == nil {
		ensure = repository.EnsureSchema
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ensure(r.Context(), pool); err != nil {
			httperr.Write(w, r, err, false)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "migrated"})
	}
}
