package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sentinelrag/sentinel/internal/model"
)

func setupAuditRepo(t *testing.T) (*AuditRepo, func()) {
	t.Helper()
	pool := getTestPool(t)
	require.NoError(t, EnsureSchema(context.Background(), pool))
	return NewAuditRepo(pool), func() { pool.Close() }
}

func newAuditEvent(tenantID string) *model.AuditEvent {
	return &model.AuditEvent{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		UserID:         "user-1",
		Category:       model.CategoryDataAccess,
		Action:         model.ActionRead,
		Outcome:        model.OutcomeSuccess,
		ResourceType:   model.ResourceDocument,
		ResourceID:     "doc-1",
		RetentionYears: model.DefaultRetentionYears[model.ClassificationInternal],
	}
}

func TestAuditRepo_Log_ChainsHashToPriorRow(t *testing.T) {
	repo, cleanup := setupAuditRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenantID := uuid.NewString()

	first := newAuditEvent(tenantID)
	require.NoError(t, repo.Log(ctx, first))
	require.Empty(t, first.PrevHash)
	require.NotEmpty(t, first.Hash)

	second := newAuditEvent(tenantID)
	require.NoError(t, repo.Log(ctx, second))
	require.Equal(t, first.Hash, second.PrevHash)
}

func TestAuditRepo_VerifyChain_IntactAfterSequentialWrites(t *testing.T) {
	repo, cleanup := setupAuditRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenantID := uuid.NewString()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Log(ctx, newAuditEvent(tenantID)))
	}

	intact, brokenAt, err := repo.VerifyChain(ctx, tenantID)
	require.NoError(t, err)
	require.True(t, intact)
	require.Empty(t, brokenAt)
}

func TestAuditRepo_LogQueryAuthModification_WriteSatelliteRows(t *testing.T) {
	repo, cleanup := setupAuditRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenantID := uuid.NewString()

	ev := newAuditEvent(tenantID)
	require.NoError(t, repo.Log(ctx, ev))
	require.NoError(t, repo.LogQuery(ctx, ev.ID, model.QueryAuditEvent{
		UserID:          "user-1",
		QueryTextHash:   "deadbeef",
		ChunksRetrieved: 5,
	}))

	authEv := newAuditEvent(tenantID)
	require.NoError(t, repo.Log(ctx, authEv))
	require.NoError(t, repo.LogAuth(ctx, authEv.ID, model.AuthAuditEvent{
		UserID: "user-1", Provider: "oidc", TokenKind: "session",
	}))

	modEv := newAuditEvent(tenantID)
	require.NoError(t, repo.Log(ctx, modEv))
	require.NoError(t, repo.LogModification(ctx, modEv.ID, model.ModificationAuditEvent{
		TableName: "documents", RecordID: "doc-1",
	}))
}

func TestAuditRepo_Archive_FlagsOnlyOldRows(t *testing.T) {
	repo, cleanup := setupAuditRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenantID := uuid.NewString()
	require.NoError(t, repo.Log(ctx, newAuditEvent(tenantID)))

	n, err := repo.Archive(ctx, tenantID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = repo.Archive(ctx, tenantID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestAuditRepo_ListByUser_ReturnsMostRecentFirst(t *testing.T) {
	repo, cleanup := setupAuditRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenantID := uuid.NewString()
	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Log(ctx, newAuditEvent(tenantID)))
	}

	events, err := repo.ListByUser(ctx, tenantID, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Greater(t, events[0].Sequence, events[1].Sequence)
}
