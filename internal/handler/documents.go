package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/httperr"
	"github.com/sentinelrag/sentinel/internal/ingest"
	"github.com/sentinelrag/sentinel/internal/middleware"
	"github.com/sentinelrag/sentinel/internal/model"
)

const maxUploadBytes = 32 << 20 // 32 MiB, matching the teacher's multipart.ParseMultipartForm budget

// Ingester is the C8 surface the upload handler drives.
type Ingester interface {
	Ingest(ctx context.Context, u ingest.Upload) (*model.Document, error)
}

// DepartmentResolver is the C5 surface needed to turn the upload form's
// department name into a department_id (spec §6's multipart fields never
// carry an ID the browser could have gotten wrong).
type DepartmentResolver interface {
	EnsureDepartment(ctx context.Context, tenantID, name string) (*model.Department, error)
}

// UploadDeps bundles the collaborators POST /api/documents/upload needs.
type UploadDeps struct {
	Pipeline     Ingester
	Departments  DepartmentResolver
	IsProduction bool
}

// UploadResponse is the JSON body returned for a committed document.
type UploadResponse struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	IndexStatus    string `json:"indexStatus"`
	ChunkCount     int    `json:"chunkCount"`
	Classification string `json:"classification"`
}

// UploadDocument serves POST /api/documents/upload: a single multipart
// request carrying file + title + description + department + classification
// that runs the full C1-C6 ingestion pipeline synchronously and returns the
// committed document (spec §6) — unlike the teacher's two-phase
// signed-URL-then-trigger-ingest flow, there is no separate ingest-trigger
// endpoint.
func UploadDocument(deps UploadDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		if principal == nil {
			httperr.Write(w, r, apperr.New(apperr.KindAuthentication, "missing session"), deps.IsProduction)
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			httperr.Write(w, r, apperr.Wrap(apperr.KindValidation, "request is not a valid multipart upload", err), deps.IsProduction)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httperr.Write(w, r, apperr.Wrap(apperr.KindValidation, "file field is required", err), deps.IsProduction)
			return
		}
		defer file.Close()

		title := r.FormValue("title")
		department := r.FormValue("department")
		classification := model.Classification(r.FormValue("classification"))
		if title == "" || department == "" {
			httperr.Write(w, r, apperr.New(apperr.KindValidation, "title and department are required"), deps.IsProduction)
			return
		}
		if !validClassification(classification) {
			httperr.Write(w, r, apperr.New(apperr.KindValidation, "classification must be one of public, internal, confidential, restricted"), deps.IsProduction)
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			httperr.Write(w, r, apperr.Wrap(apperr.KindValidation, "failed to read uploaded file", err), deps.IsProduction)
			return
		}

		dept, err := deps.Departments.EnsureDepartment(r.Context(), principal.TenantID, department)
		if err != nil {
			httperr.Write(w, r, err, deps.IsProduction)
			return
		}

		// flat_ingest is per-request configuration (spec §4.2): callers
		// uploading a short, unstructured document can skip the parent/child
		// hierarchy entirely. Defaults to hierarchical mode when absent or
		// unparseable.
		flatIngest, _ := strconv.ParseBool(r.FormValue("flat_ingest"))

		doc, err := deps.Pipeline.Ingest(r.Context(), ingest.Upload{
			Title:          title,
			Description:    r.FormValue("description"),
			Filename:       header.Filename,
			Data:           data,
			UploadedBy:     principal.UserID,
			TenantID:       principal.TenantID,
			DepartmentID:   dept.ID,
			DepartmentName: dept.Name,
			Classification: classification,
			FlatIngest:     flatIngest,
		})
		if err != nil {
			httperr.Write(w, r, err, deps.IsProduction)
			return
		}

		writeJSON(w, http.StatusCreated, UploadResponse{
			ID:             doc.ID,
			Title:          doc.Title,
			IndexStatus:    string(doc.IndexStatus),
			ChunkCount:     doc.ChunkCount,
			Classification: string(doc.Classification),
		})
	}
}

func validClassification(c model.Classification) bool {
	switch c {
	case model.ClassificationPublic, model.ClassificationInternal, model.ClassificationConfidential, model.ClassificationRestricted:
		return true
	default:
		return false
	}
}
