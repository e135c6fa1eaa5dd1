package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/api/response"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// GenerateService creates generation records for a patient.
type GenerateService interface {
	Generate(ctx context.Context, actor uuid.UUID, kind models.JobKind, patientID uuid.UUID) (any, error)
}

// NewGenerateHandler returns an http.HandlerFunc for POST /api/v1/generate/*
// that creates a record of kind in GENERATING.
func NewGenerateHandler(svc GenerateService, kind models.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}
		var req struct {
			PatientID uuid.UUID `json:"patient_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		rec, err := svc.Generate(r.Context(), userID, kind, req.PatientID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, rec)
	}
}

// JobStatusService reports job status for any job-backed record.
type JobStatusService interface {
	JobStatus(ctx context.Context, actor uuid.UUID, kind models.JobKind, id uuid.UUID) (*models.JobStatus, error)
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{kind}/{id}.
func NewJobStatusHandler(svc JobStatusService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		st, err := svc.JobStatus(r.Context(), userID, models.JobKind(urlParam(r, "kind")), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, st)
	}
}
