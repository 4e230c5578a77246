package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/chunker"
	"github.com/sentinelrag/sentinel/internal/embedder"
	"github.com/sentinelrag/sentinel/internal/model"
	"github.com/sentinelrag/sentinel/internal/parser"
	"github.com/sentinelrag/sentinel/internal/redactor"
	"github.com/sentinelrag/sentinel/internal/repository"
	"github.com/sentinelrag/sentinel/internal/vectorstore"
)

type fakeDocStore struct {
	docs      map[string]*model.Document
	writes    []repository.HierarchicalWrite
	saveErr   error
	upsertErr error
	deleted   []string
	committed []string
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[string]*model.Document)}
}

func (f *fakeDocStore) CreateReceived(ctx context.Context, d *model.Document) error {
	d.IndexStatus = model.IndexReceived
	cp := *d
	f.docs[d.ID] = &cp
	return nil
}

func (f *fakeDocStore) UpdateStatus(ctx context.Context, docID string, status model.IndexStatus, errMsg string) error {
	d, ok := f.docs[docID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	d.IndexStatus = status
	d.ErrorMessage = errMsg
	return nil
}

func (f *fakeDocStore) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	d, ok := f.docs[docID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "document not found")
	}
	return d, nil
}

func (f *fakeDocStore) SaveHierarchical(ctx context.Context, docID string, w repository.HierarchicalWrite) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.writes = append(f.writes, w)
	f.docs[docID].IndexStatus = model.IndexPersisting
	f.docs[docID].ChunkCount = len(w.Children)
	return nil
}

func (f *fakeDocStore) MarkCommitted(ctx context.Context, docID string) error {
	f.committed = append(f.committed, docID)
	f.docs[docID].IndexStatus = model.IndexCommitted
	return nil
}

func (f *fakeDocStore) DeleteDocument(ctx context.Context, docID string) error {
	f.deleted = append(f.deleted, docID)
	delete(f.docs, docID)
	return nil
}

type fakeVectorStore struct {
	upsertErr error
	records   []vectorstore.ChildRecord
	deletedBy []string
}

func (f *fakeVectorStore) UpsertChildren(ctx context.Context, records []vectorstore.ChildRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeVectorStore) DeleteByDoc(ctx context.Context, docID string) error {
	f.deletedBy = append(f.deletedBy, docID)
	return nil
}

type fakeAuditLogger struct {
	events []*model.AuditEvent
}

func (f *fakeAuditLogger) Log(ctx context.Context, ev *model.AuditEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func newTestCoordinator(t *testing.T, docs DocumentStore, vectors VectorStore, audit AuditLogger) *Coordinator {
	t.Helper()
	p := parser.New(0, 0)
	c, err := chunker.New(chunker.Config{ParentSize: 200, ParentOverlap: 20, ChildSize: 50, ChildOverlap: 5})
	require.NoError(t, err)
	prov, err := embedder.New(embedder.KindFake, embedder.Config{Dimensions: 8})
	require.NoError(t, err)
	e := embedder.NewEmbedder(prov)
	r := redactor.New(1)
	return New(docs, vectors, p, c, e, r, audit)
}

func testUpload() Upload {
	return Upload{
		Title:          "Handbook",
		Filename:       "handbook.md",
		Data:           []byte("# Section One\n\nThis is the first section of the handbook, long enough to split into multiple child chunks once chunked by the coordinator under test.\n\n# Section Two\n\nThis is the second section, also padded out so that the chunker produces more than one child chunk per parent for this test fixture."),
		UploadedBy:     "user-1",
		TenantID:       "tenant-1",
		DepartmentID:   "dept-1",
		DepartmentName: "legal",
		Classification: model.ClassificationInternal,
	}
}

func TestCoordinator_Ingest_CommitsThroughFullPipeline(t *testing.T) {
	docs := newFakeDocStore()
	vectors := &fakeVectorStore{}
	audit := &fakeAuditLogger{}
	coord := newTestCoordinator(t, docs, vectors, audit)

	doc, err := coord.Ingest(context.Background(), testUpload())
	require.NoError(t, err)
	require.Equal(t, model.IndexCommitted, doc.IndexStatus)
	require.NotEmpty(t, docs.writes)
	require.NotEmpty(t, vectors.records)
	require.Equal(t, doc.ChunkCount, len(vectors.records))
	require.Contains(t, docs.committed, doc.ID)
	require.NotEmpty(t, audit.events)
	require.Equal(t, model.OutcomeSuccess, audit.events[len(audit.events)-1].Outcome)
}

func TestCoordinator_Ingest_VectorWriteFailureCompensates(t *testing.T) {
	docs := newFakeDocStore()
	vectors := &fakeVectorStore{upsertErr: apperr.New(apperr.KindDependencyFailure, "vector store unreachable")}
	audit := &fakeAuditLogger{}
	coord := newTestCoordinator(t, docs, vectors, audit)

	_, err := coord.Ingest(context.Background(), testUpload())
	require.Error(t, err)
	require.Equal(t, apperr.KindDependencyFailure, apperr.KindOf(err))

	require.Len(t, vectors.deletedBy, 1)
	require.Len(t, docs.deleted, 1)
	require.Empty(t, docs.docs, "compensated document must not remain visible")

	last := audit.events[len(audit.events)-1]
	require.Equal(t, model.OutcomeFailure, last.Outcome)
}

func TestCoordinator_Ingest_ParseFailureMarksDocumentFailed(t *testing.T) {
	docs := newFakeDocStore()
	vectors := &fakeVectorStore{}
	audit := &fakeAuditLogger{}
	coord := newTestCoordinator(t, docs, vectors, audit)

	u := testUpload()
	u.Filename = "unsupported.xyz"

	_, err := coord.Ingest(context.Background(), u)
	require.Error(t, err)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Empty(t, vectors.records)
}

func TestCoordinator_Ingest_FlatModeProducesNoParentsOrEdges(t *testing.T) {
	docs := newFakeDocStore()
	vectors := &fakeVectorStore{}
	audit := &fakeAuditLogger{}
	coord := newTestCoordinator(t, docs, vectors, audit)

	u := testUpload()
	u.FlatIngest = true

	doc, err := coord.Ingest(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, model.IndexCommitted, doc.IndexStatus)
	require.NotEmpty(t, docs.writes)

	write := docs.writes[len(docs.writes)-1]
	require.Empty(t, write.Parents, "flat mode must emit no parent chunks (I1)")
	require.Empty(t, write.Edges, "flat mode must emit no parent/child edges (I1)")
	require.NotEmpty(t, write.Children)

	for _, rec := range vectors.records {
		require.Empty(t, rec.Payload.ParentChunkID, "flat-mode children must carry no parent chunk id")
	}
}

func TestCoordinator_Ingest_RejectsDuplicateInFlightProcessing(t *testing.T) {
	docs := newFakeDocStore()
	vectors := &fakeVectorStore{}
	coord := newTestCoordinator(t, docs, vectors, nil)

	require.True(t, coord.claim("doc-x"))
	require.False(t, coord.claim("doc-x"))
	coord.release("doc-x")
	require.True(t, coord.claim("doc-x"))
}
