package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid status transition")
var ErrInvalidStatus = errors.New("invalid status value")

// ErrAlreadyCompleted is returned when a status or reply write targets an
// entity that another run has already completed.
var ErrAlreadyCompleted = errors.New("already completed")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreatePatient(ctx context.Context, p *models.Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*models.Patient, error)
	UpdatePatient(ctx context.Context, p *models.Patient) error
	DeletePatient(ctx context.Context, id uuid.UUID) error
	ListPatients(ctx context.Context, filter PatientFilter) ([]*models.Patient, int, error)

	CreateAppointment(ctx context.Context, a *models.Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*models.Appointment, error)
	UpdateAppointment(ctx context.Context, a *models.Appointment) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]*models.Appointment, int, error)
	TransitionAppointment(ctx context.Context, id uuid.UUID, to models.AppointmentStatus) error
	MarkPastAppointmentsNoShow(ctx context.Context, before models.Date) (int, error)
	ListDueAppointments(ctx context.Context, day models.Date, upTo models.ClockTime) ([]*models.Appointment, error)
	PatientHasActivity(ctx context.Context, patientID uuid.UUID, from, to time.Time) (bool, error)

	CreateImageAnalysis(ctx context.Context, a *models.ImageAnalysis) error
	GetImageAnalysis(ctx context.Context, id uuid.UUID) (*models.ImageAnalysis, error)
	ListImageAnalyses(ctx context.Context, filter ListFilter) ([]*models.ImageAnalysis, int, error)
	DeleteImageAnalysis(ctx context.Context, id uuid.UUID) error

	CreateDocumentAnalysis(ctx context.Context, d *models.DocumentAnalysis) error
	GetDocumentAnalysis(ctx context.Context, id uuid.UUID) (*models.DocumentAnalysis, error)
	ListDocumentAnalyses(ctx context.Context, filter ListFilter) ([]*models.DocumentAnalysis, int, error)
	DeleteDocumentAnalysis(ctx context.Context, id uuid.UUID) error
	LatestCompletedDocumentAnalysis(ctx context.Context, patientID uuid.UUID) (*models.DocumentAnalysis, error)

	// UpdateAnalysisStatus moves an image or document analysis to status.
	// COMPLETED requires WithAnalysisResult; every other status clears the result.
	UpdateAnalysisStatus(ctx context.Context, kind models.JobKind, id uuid.UUID, status models.AnalysisStatus, opts ...AnalysisUpdateOption) error

	CreateClinicalReport(ctx context.Context, r *models.ClinicalReport) error
	GetClinicalReport(ctx context.Context, id uuid.UUID) (*models.ClinicalReport, error)
	ListClinicalReports(ctx context.Context, filter ListFilter) ([]*models.ClinicalReport, int, error)
	DeleteClinicalReport(ctx context.Context, id uuid.UUID) error

	CreateSNLPrescription(ctx context.Context, p *models.SNLPrescription) error
	GetSNLPrescription(ctx context.Context, id uuid.UUID) (*models.SNLPrescription, error)
	ListSNLPrescriptions(ctx context.Context, filter ListFilter) ([]*models.SNLPrescription, int, error)
	DeleteSNLPrescription(ctx context.Context, id uuid.UUID) error

	CreateKnowledgeReference(ctx context.Context, k *models.KnowledgeReference) error
	GetKnowledgeReference(ctx context.Context, id uuid.UUID) (*models.KnowledgeReference, error)
	ListKnowledgeReferences(ctx context.Context, filter ListFilter) ([]*models.KnowledgeReference, int, error)
	DeleteKnowledgeReference(ctx context.Context, id uuid.UUID) error

	// UpdateGenerationStatus moves a generated artefact to status. COMPLETED
	// requires the content option matching kind; every other status clears it.
	UpdateGenerationStatus(ctx context.Context, kind models.JobKind, id uuid.UUID, status models.GenerationStatus, opts ...GenerationUpdateOption) error

	// CreateChatExchange inserts a user message and its assistant placeholder atomically.
	CreateChatExchange(ctx context.Context, user, assistant *models.ChatMessage) error
	GetChatMessage(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error)
	UpdateAssistantMessage(ctx context.Context, id uuid.UUID, content string) error
	ListChatMessages(ctx context.Context, filter ChatFilter) ([]*models.ChatMessage, int, error)

	DashboardStats(ctx context.Context, doctorID *uuid.UUID, today models.Date, now models.ClockTime) (*models.DashboardStats, error)
}

// Page is the pagination part of every list filter.
type Page struct {
	Page  int
	Limit int
}

// normalize clamps the page to sane bounds and returns limit and offset.
func (p Page) normalize() (limit, offset int) {
	limit = p.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// Clamp returns the page with defaults and bounds applied, as listings see it.
func (p Page) Clamp() Page {
	limit, offset := p.normalize()
	return Page{Page: offset/limit + 1, Limit: limit}
}

// PatientFilter narrows a patient listing. A nil DoctorID lists every doctor's patients.
type PatientFilter struct {
	DoctorID *uuid.UUID
	Status   models.PatientStatus
	Gender   models.Gender
	Search   string
	Page
}

type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    models.AppointmentStatus
	Date      *models.Date
	Page
}

// ListFilter narrows listings of patient-scoped job entities. DoctorID
// filters through the owning patient.
type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    string
	Page
}

type ChatFilter struct {
	UserID    uuid.UUID
	PatientID *uuid.UUID
	Page
}

type analysisUpdateParams struct {
	Result *string
}

type AnalysisUpdateOption func(*analysisUpdateParams)

func WithAnalysisResult(result string) AnalysisUpdateOption {
	return func(p *analysisUpdateParams) {
		p.Result = &result
	}
}

type generationUpdateParams struct {
	Report *models.ClinicalReportContent
	Text   *string
}

type GenerationUpdateOption func(*generationUpdateParams)

// WithReportContent sets the structured body of a clinical report.
func WithReportContent(c models.ClinicalReportContent) GenerationUpdateOption {
	return func(p *generationUpdateParams) {
		p.Report = &c
	}
}

// WithGeneratedText sets the text body of an SNL prescription or knowledge reference.
func WithGeneratedText(text string) GenerationUpdateOption {
	return func(p *generationUpdateParams) {
		p.Text = &text
	}
}
