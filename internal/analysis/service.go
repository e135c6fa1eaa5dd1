// Package analysis accepts uploads and generation requests for a patient,
// records them in their initial status and hands them to the job
// dispatcher. It also serves the resulting records and their job status.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/cache"
	"github.com/kiranshivaraju/ayupilot/internal/clinic"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// Dispatcher schedules the job for a freshly created record.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind models.JobKind, entityID uuid.UUID, related *uuid.UUID) error
}

// Service is the entry point for every job-backed record.
type Service struct {
	store      store.Store
	cache      cache.Cache
	dispatcher Dispatcher
	policy     clinic.Policy
	maxBytes   int64
	statusTTL  time.Duration
	now        func() time.Time

	Images    *Records[*models.ImageAnalysis]
	Documents *Records[*models.DocumentAnalysis]
	Reports   *Records[*models.ClinicalReport]
	SNL       *Records[*models.SNLPrescription]
	Knowledge *Records[*models.KnowledgeReference]
}

// Config holds the limits applied to submissions.
type Config struct {
	MaxUploadBytes int64
	StatusTTL      time.Duration
}

func New(st store.Store, c cache.Cache, d Dispatcher, policy clinic.Policy, cfg Config) *Service {
	s := &Service{
		store:      st,
		cache:      c,
		dispatcher: d,
		policy:     policy,
		maxBytes:   cfg.MaxUploadBytes,
		statusTTL:  cfg.StatusTTL,
		now:        time.Now,
	}
	s.Images = &Records[*models.ImageAnalysis]{
		store: st, policy: policy,
		get: st.GetImageAnalysis, list: st.ListImageAnalyses, del: st.DeleteImageAnalysis,
		patientOf:   func(a *models.ImageAnalysis) uuid.UUID { return a.PatientID },
		validStatus: func(v string) bool { return models.AnalysisStatus(v).Valid() },
	}
	s.Documents = &Records[*models.DocumentAnalysis]{
		store: st, policy: policy,
		get: st.GetDocumentAnalysis, list: st.ListDocumentAnalyses, del: st.DeleteDocumentAnalysis,
		patientOf:   func(d *models.DocumentAnalysis) uuid.UUID { return d.PatientID },
		validStatus: func(v string) bool { return models.AnalysisStatus(v).Valid() },
	}
	s.Reports = &Records[*models.ClinicalReport]{
		store: st, policy: policy,
		get: st.GetClinicalReport, list: st.ListClinicalReports, del: st.DeleteClinicalReport,
		patientOf:   func(r *models.ClinicalReport) uuid.UUID { return r.PatientID },
		validStatus: func(v string) bool { return models.GenerationStatus(v).Valid() },
	}
	s.SNL = &Records[*models.SNLPrescription]{
		store: st, policy: policy,
		get: st.GetSNLPrescription, list: st.ListSNLPrescriptions, del: st.DeleteSNLPrescription,
		patientOf:   func(p *models.SNLPrescription) uuid.UUID { return p.PatientID },
		validStatus: func(v string) bool { return models.GenerationStatus(v).Valid() },
	}
	s.Knowledge = &Records[*models.KnowledgeReference]{
		store: st, policy: policy,
		get: st.GetKnowledgeReference, list: st.ListKnowledgeReferences, del: st.DeleteKnowledgeReference,
		patientOf:   func(k *models.KnowledgeReference) uuid.UUID { return k.PatientID },
		validStatus: func(v string) bool { return models.GenerationStatus(v).Valid() },
	}
	return s
}

// submit mirrors the initial status and dispatches the job. A record whose
// dispatch failed stays in the store; the worker marks it FAILED.
func (s *Service) submit(ctx context.Context, kind models.JobKind, id uuid.UUID, status string) error {
	if s.cache != nil {
		if err := s.cache.SetJobStatus(ctx, kind, id, status, s.statusTTL); err != nil {
			slog.Warn("failed to mirror job status", "kind", kind, "entity_id", id, "error", err)
		}
	}
	if err := s.dispatcher.Dispatch(ctx, kind, id, nil); err != nil {
		return fmt.Errorf("dispatch %s: %w", kind, err)
	}
	return nil
}

// JobStatus reports the current status of a job-backed record. The cached
// mirror answers first; the store is the fallback and the only path that
// checks ownership, since the mirror holds nothing but the status value.
func (s *Service) JobStatus(ctx context.Context, actor uuid.UUID, kind models.JobKind, id uuid.UUID) (*models.JobStatus, error) {
	if !kind.Valid() {
		return nil, clinic.Invalid("kind", fmt.Sprintf("Unknown job kind %q.", kind))
	}

	if s.cache != nil {
		status, ok, err := s.cache.GetJobStatus(ctx, kind, id)
		if err != nil {
			slog.Warn("job status cache read failed", "kind", kind, "entity_id", id, "error", err)
		} else if ok {
			return &models.JobStatus{Kind: kind, EntityID: id, Status: status, Cached: true}, nil
		}
	}

	status, updated, err := s.storedStatus(ctx, actor, kind, id)
	if err != nil {
		return nil, err
	}
	return &models.JobStatus{Kind: kind, EntityID: id, Status: status, UpdatedAt: updated}, nil
}

func (s *Service) storedStatus(ctx context.Context, actor uuid.UUID, kind models.JobKind, id uuid.UUID) (string, time.Time, error) {
	switch kind {
	case models.JobImageAnalysis:
		a, err := s.Images.Get(ctx, actor, id)
		if err != nil {
			return "", time.Time{}, err
		}
		return string(a.Status), a.UpdatedAt, nil
	case models.JobDocumentAnalysis:
		d, err := s.Documents.Get(ctx, actor, id)
		if err != nil {
			return "", time.Time{}, err
		}
		return string(d.Status), d.UpdatedAt, nil
	case models.JobClinicalReport:
		r, err := s.Reports.Get(ctx, actor, id)
		if err != nil {
			return "", time.Time{}, err
		}
		return string(r.Status), r.UpdatedAt, nil
	case models.JobSNLPrescription:
		p, err := s.SNL.Get(ctx, actor, id)
		if err != nil {
			return "", time.Time{}, err
		}
		return string(p.Status), p.UpdatedAt, nil
	case models.JobKnowledgeReference:
		k, err := s.Knowledge.Get(ctx, actor, id)
		if err != nil {
			return "", time.Time{}, err
		}
		return string(k.Status), k.UpdatedAt, nil
	default:
		m, err := s.store.GetChatMessage(ctx, id)
		if err != nil {
			return "", time.Time{}, err
		}
		if m.Role != models.ChatRoleAssistant {
			return "", time.Time{}, store.ErrNotFound
		}
		if err := s.policy.CheckOwner(actor, m.UserID); err != nil {
			return "", time.Time{}, err
		}
		if m.Answered() {
			return "COMPLETED", m.UpdatedAt, nil
		}
		return "PENDING", m.UpdatedAt, nil
	}
}

// Records serves the stored rows of one job-backed kind with the ownership
// policy applied.
type Records[T any] struct {
	store       store.Store
	policy      clinic.Policy
	get         func(context.Context, uuid.UUID) (T, error)
	list        func(context.Context, store.ListFilter) ([]T, int, error)
	del         func(context.Context, uuid.UUID) error
	patientOf   func(T) uuid.UUID
	validStatus func(string) bool
}

// Get returns the record when actor may see its patient.
func (r *Records[T]) Get(ctx context.Context, actor, id uuid.UUID) (T, error) {
	var zero T
	rec, err := r.get(ctx, id)
	if err != nil {
		return zero, err
	}
	if _, err := r.policy.Patient(ctx, r.store, actor, r.patientOf(rec)); err != nil {
		return zero, err
	}
	return rec, nil
}

// List returns one page of records visible to actor, newest first.
func (r *Records[T]) List(ctx context.Context, actor uuid.UUID, filter store.ListFilter) ([]T, int, error) {
	if filter.Status != "" && !r.validStatus(filter.Status) {
		return nil, 0, clinic.Invalid("status", fmt.Sprintf("Unknown status %q.", filter.Status))
	}
	filter.DoctorID = r.policy.Scope(actor)
	return r.list(ctx, filter)
}

// Delete removes the record when actor may act on its patient.
func (r *Records[T]) Delete(ctx context.Context, actor, id uuid.UUID) error {
	if _, err := r.Get(ctx, actor, id); err != nil {
		return err
	}
	return r.del(ctx, id)
}

// patient resolves the patient a submission targets, reporting a missing
// patient as a field error.
func (s *Service) patient(ctx context.Context, actor, patientID uuid.UUID) (*models.Patient, error) {
	if patientID == uuid.Nil {
		return nil, clinic.Invalid("patient_id", "patient_id is required.")
	}
	p, err := s.policy.Patient(ctx, s.store, actor, patientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("patient %s: %w", patientID, err)
	}
	return p, err
}
