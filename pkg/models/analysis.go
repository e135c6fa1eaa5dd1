package models

import (
	"time"

	"github.com/google/uuid"
)

type ImageType string

const (
	ImageTongue ImageType = "TONGUE"
	ImageIris   ImageType = "IRIS"
	ImageNails  ImageType = "NAILS"
	ImageSkin   ImageType = "SKIN"
)

func (t ImageType) Valid() bool {
	switch t {
	case ImageTongue, ImageIris, ImageNails, ImageSkin:
		return true
	default:
		return false
	}
}

type DocumentType string

const (
	DocumentBloodReports   DocumentType = "BLOOD_REPORTS"
	DocumentLabReports     DocumentType = "LAB_REPORTS"
	DocumentOtherDocuments DocumentType = "OTHER_DOCUMENTS"
)

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentBloodReports, DocumentLabReports, DocumentOtherDocuments:
		return true
	default:
		return false
	}
}

// TriggersPrescription reports whether a completed analysis of this kind
// should produce an SNL prescription for the patient.
func (t DocumentType) TriggersPrescription() bool {
	return t == DocumentBloodReports || t == DocumentLabReports
}

// ImageAnalysis is an uploaded diagnostic image and the analysis derived from it.
// AnalysisResult is non-nil iff Status is COMPLETED.
type ImageAnalysis struct {
	ID             uuid.UUID      `json:"id"`
	PatientID      uuid.UUID      `json:"patient_id"`
	ImageType      ImageType      `json:"image_type"`
	ImageURL       string         `json:"image_url,omitempty"`
	ImageData      string         `json:"image_data,omitempty"`
	FileName       string         `json:"file_name,omitempty"`
	AnalysisResult *string        `json:"analysis_result"`
	Status         AnalysisStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DocumentAnalysis is an uploaded medical document and the analysis derived
// from it. AnalysisResult is non-nil iff Status is COMPLETED.
type DocumentAnalysis struct {
	ID             uuid.UUID      `json:"id"`
	PatientID      uuid.UUID      `json:"patient_id"`
	DocumentType   DocumentType   `json:"document_type"`
	DocumentURL    string         `json:"document_url,omitempty"`
	DocumentData   string         `json:"document_data,omitempty"`
	FileName       string         `json:"file_name,omitempty"`
	FileType       string         `json:"file_type,omitempty"`
	AnalysisResult *string        `json:"analysis_result"`
	Status         AnalysisStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
