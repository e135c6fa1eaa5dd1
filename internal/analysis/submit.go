package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/clinic"
	"github.com/kiranshivaraju/ayupilot/internal/upload"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

const (
	maxFileNameLen = 255
	maxFileTypeLen = 100
)

// ImageUpload is the body of an image upload. Exactly one of ImageData (a
// base64 data URI) or ImageURL is required.
type ImageUpload struct {
	PatientID uuid.UUID        `json:"patient_id"`
	ImageType models.ImageType `json:"image_type"`
	ImageData string           `json:"image_data"`
	ImageURL  string           `json:"image_url"`
	FileName  string           `json:"file_name"`
}

// DocumentUpload is the body of a document upload. Exactly one of
// DocumentData (a base64 data URI) or DocumentURL is required.
type DocumentUpload struct {
	PatientID    uuid.UUID           `json:"patient_id"`
	DocumentType models.DocumentType `json:"document_type"`
	DocumentData string              `json:"document_data"`
	DocumentURL  string              `json:"document_url"`
	FileName     string              `json:"file_name"`
	FileType     string              `json:"file_type"`
}

// UploadImage records an image analysis in PENDING and dispatches it.
func (s *Service) UploadImage(ctx context.Context, actor uuid.UUID, in ImageUpload) (*models.ImageAnalysis, error) {
	verr := map[string]string{}
	if !in.ImageType.Valid() {
		verr["image_type"] = "image_type must be one of TONGUE, IRIS, NAILS, SKIN."
	}
	s.checkPayload(verr, "image_data", "image_url", in.ImageData, in.ImageURL, upload.ValidateImage)
	checkLen(verr, "file_name", in.FileName, maxFileNameLen)
	if err := fieldErrors(verr); err != nil {
		return nil, err
	}
	p, err := s.patient(ctx, actor, in.PatientID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &models.ImageAnalysis{
		ID:        uuid.New(),
		PatientID: p.ID,
		ImageType: in.ImageType,
		ImageData: in.ImageData,
		ImageURL:  in.ImageURL,
		FileName:  in.FileName,
		Status:    models.AnalysisPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateImageAnalysis(ctx, a); err != nil {
		return nil, fmt.Errorf("create image analysis: %w", err)
	}
	if err := s.submit(ctx, models.JobImageAnalysis, a.ID, string(a.Status)); err != nil {
		return nil, err
	}
	return s.reloadImage(ctx, a)
}

// UploadDocument records a document analysis in PENDING and dispatches it.
func (s *Service) UploadDocument(ctx context.Context, actor uuid.UUID, in DocumentUpload) (*models.DocumentAnalysis, error) {
	verr := map[string]string{}
	if !in.DocumentType.Valid() {
		verr["document_type"] = "document_type must be one of BLOOD_REPORTS, LAB_REPORTS, OTHER_DOCUMENTS."
	}
	s.checkPayload(verr, "document_data", "document_url", in.DocumentData, in.DocumentURL, upload.ValidateDocument)
	checkLen(verr, "file_name", in.FileName, maxFileNameLen)
	checkLen(verr, "file_type", in.FileType, maxFileTypeLen)
	if err := fieldErrors(verr); err != nil {
		return nil, err
	}
	p, err := s.patient(ctx, actor, in.PatientID)
	if err != nil {
		return nil, err
	}

	fileType := normalizeFileType(in.FileType)
	if fileType == "" && in.DocumentData != "" {
		if d, err := upload.Parse(in.DocumentData, s.maxBytes); err == nil {
			fileType = d.MIME
		}
	}

	now := s.now().UTC()
	d := &models.DocumentAnalysis{
		ID:           uuid.New(),
		PatientID:    p.ID,
		DocumentType: in.DocumentType,
		DocumentData: in.DocumentData,
		DocumentURL:  in.DocumentURL,
		FileName:     in.FileName,
		FileType:     fileType,
		Status:       models.AnalysisPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateDocumentAnalysis(ctx, d); err != nil {
		return nil, fmt.Errorf("create document analysis: %w", err)
	}
	if err := s.submit(ctx, models.JobDocumentAnalysis, d.ID, string(d.Status)); err != nil {
		return nil, err
	}
	return s.reloadDocument(ctx, d)
}

// Generate records a clinical report, SNL prescription or knowledge
// reference in GENERATING and dispatches it. It returns the created record.
func (s *Service) Generate(ctx context.Context, actor uuid.UUID, kind models.JobKind, patientID uuid.UUID) (any, error) {
	p, err := s.patient(ctx, actor, patientID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	id := uuid.New()
	switch kind {
	case models.JobClinicalReport:
		r := &models.ClinicalReport{ID: id, PatientID: p.ID, Status: models.GenerationGenerating, CreatedAt: now, UpdatedAt: now}
		err = s.store.CreateClinicalReport(ctx, r)
	case models.JobSNLPrescription:
		r := &models.SNLPrescription{ID: id, PatientID: p.ID, Status: models.GenerationGenerating, CreatedAt: now, UpdatedAt: now}
		err = s.store.CreateSNLPrescription(ctx, r)
	case models.JobKnowledgeReference:
		r := &models.KnowledgeReference{ID: id, PatientID: p.ID, Status: models.GenerationGenerating, CreatedAt: now, UpdatedAt: now}
		err = s.store.CreateKnowledgeReference(ctx, r)
	default:
		return nil, clinic.Invalid("kind", fmt.Sprintf("%s is not a generation kind.", kind))
	}
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}
	if err := s.submit(ctx, kind, id, string(models.GenerationGenerating)); err != nil {
		return nil, err
	}

	// An inline run may have finished already; return the current row.
	switch kind {
	case models.JobClinicalReport:
		return s.store.GetClinicalReport(ctx, id)
	case models.JobSNLPrescription:
		return s.store.GetSNLPrescription(ctx, id)
	default:
		return s.store.GetKnowledgeReference(ctx, id)
	}
}

func (s *Service) reloadImage(ctx context.Context, a *models.ImageAnalysis) (*models.ImageAnalysis, error) {
	fresh, err := s.store.GetImageAnalysis(ctx, a.ID)
	if err != nil {
		return a, nil
	}
	return fresh, nil
}

func (s *Service) reloadDocument(ctx context.Context, d *models.DocumentAnalysis) (*models.DocumentAnalysis, error) {
	fresh, err := s.store.GetDocumentAnalysis(ctx, d.ID)
	if err != nil {
		return d, nil
	}
	return fresh, nil
}

// checkPayload requires exactly one of an inline data URI or a URL.
func (s *Service) checkPayload(verr map[string]string, dataField, urlField, data, link string, validate func(string, int64) (*upload.DataURI, error)) {
	switch {
	case data == "" && link == "":
		verr[dataField] = fmt.Sprintf("Either %s or %s is required.", dataField, urlField)
	case data != "" && link != "":
		verr[dataField] = fmt.Sprintf("Provide %s or %s, not both.", dataField, urlField)
	case data != "":
		if _, err := validate(data, s.maxBytes); err != nil {
			verr[dataField] = payloadMessage(err)
		}
	default:
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			verr[urlField] = "Enter a valid http(s) URL."
		}
	}
}

func payloadMessage(err error) string {
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		return "File is too large."
	case errors.Is(err, upload.ErrUnsupportedType):
		return "Unsupported file type."
	default:
		return "Must be a base64 data URI."
	}
}

func checkLen(verr map[string]string, field, v string, max int) {
	if utf8.RuneCountInString(v) > max {
		verr[field] = fmt.Sprintf("Ensure this field has no more than %d characters.", max)
	}
}

func fieldErrors(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &clinic.ValidationError{Fields: fields}
}

// normalizeFileType trims media type parameters from a declared file type.
func normalizeFileType(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}
