package handler

import (
	"context"
	"errors"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/analysis"
	"github.com/kiranshivaraju/ayupilot/internal/api/response"
	"github.com/kiranshivaraju/ayupilot/internal/clinic"
	"github.com/kiranshivaraju/ayupilot/internal/upload"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling parts to temporary files.
const multipartMemory = 8 << 20

// UploadService is what the upload endpoints need.
type UploadService interface {
	UploadImage(ctx context.Context, actor uuid.UUID, in analysis.ImageUpload) (*models.ImageAnalysis, error)
	UploadDocument(ctx context.Context, actor uuid.UUID, in analysis.DocumentUpload) (*models.DocumentAnalysis, error)
}

// Uploads serves /upload/image and /upload/document. Both accept a JSON body
// carrying a data URI, or a multipart form with the file under "image" or
// "document" and the remaining fields as form values.
type Uploads struct {
	svc      UploadService
	maxBytes int64
}

func NewUploads(svc UploadService, maxBytes int64) *Uploads {
	return &Uploads{svc: svc, maxBytes: maxBytes}
}

func (h *Uploads) Image(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}

	var in analysis.ImageUpload
	if isMultipart(r) {
		f, form, err := h.readMultipart(w, r, "image")
		if err != nil {
			writeError(w, r, err)
			return
		}
		in = analysis.ImageUpload{
			ImageType: models.ImageType(form("image_type")),
			ImageData: f.DataURI,
			FileName:  firstNonEmpty(form("file_name"), f.Name),
		}
		if in.PatientID, err = formUUID(form("patient_id")); err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		if !decodeBody(w, r, &in, h.jsonLimit()) {
			return
		}
	}

	a, err := h.svc.UploadImage(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, a)
}

func (h *Uploads) Document(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}

	var in analysis.DocumentUpload
	if isMultipart(r) {
		f, form, err := h.readMultipart(w, r, "document")
		if err != nil {
			writeError(w, r, err)
			return
		}
		in = analysis.DocumentUpload{
			DocumentType: models.DocumentType(form("document_type")),
			DocumentData: f.DataURI,
			FileName:     firstNonEmpty(form("file_name"), f.Name),
			FileType:     firstNonEmpty(form("file_type"), f.MIME),
		}
		if in.PatientID, err = formUUID(form("patient_id")); err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		if !decodeBody(w, r, &in, h.jsonLimit()) {
			return
		}
	}

	d, err := h.svc.UploadDocument(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, d)
}

// jsonLimit allows for base64 expansion of a maximum-size payload plus the
// surrounding fields.
func (h *Uploads) jsonLimit() int64 {
	return h.maxBytes/3*4 + maxJSONBody
}

func (h *Uploads) readMultipart(w http.ResponseWriter, r *http.Request, part string) (*upload.File, func(string) string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+maxJSONBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, clinic.Invalid(part, "File is too large.")
		}
		return nil, nil, clinic.Invalid(part, "Malformed multipart body.")
	}
	_, fh, err := r.FormFile(part)
	if err != nil {
		return nil, nil, clinic.Invalid(part, "A file is required.")
	}
	f, err := upload.FromMultipart(fh, h.maxBytes)
	if err != nil {
		if errors.Is(err, upload.ErrTooLarge) {
			return nil, nil, clinic.Invalid(part, "File is too large.")
		}
		return nil, nil, clinic.Invalid(part, "Failed to read uploaded file.")
	}
	return f, r.FormValue, nil
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func formUUID(v string) (uuid.UUID, error) {
	if v == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, clinic.Invalid("patient_id", "Must be a UUID.")
	}
	return id, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
