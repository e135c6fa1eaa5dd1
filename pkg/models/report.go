package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ClinicalReportContent is the structured body of a generated clinical
// report. The Ayurvedic assessment blocks are free-form JSON objects.
type ClinicalReportContent struct {
	PatientOverview        string          `json:"patient_overview"`
	KeyClinicalFindings    []string        `json:"key_clinical_findings"`
	CurrentHealthStatus    string          `json:"current_health_status"`
	FollowUpRecommendation string          `json:"follow_up_recommendation"`
	PrimaryDoshaImbalance  json.RawMessage `json:"primary_dosha_imbalance,omitempty"`
	ImpactedSrotas         json.RawMessage `json:"impacted_srotas,omitempty"`
	SuggestedCondition     json.RawMessage `json:"suggested_condition,omitempty"`
	PrakritiAssessment     json.RawMessage `json:"prakriti_assessment,omitempty"`
	VikritiAssessment      json.RawMessage `json:"vikriti_assessment,omitempty"`
	DiagnosticSummary      json.RawMessage `json:"diagnostic_summary,omitempty"`
	RecommendedActions     json.RawMessage `json:"recommended_actions,omitempty"`
}

// ClinicalReport is a generated clinical summary for a patient.
// Content is non-nil iff Status is COMPLETED.
type ClinicalReport struct {
	ID        uuid.UUID              `json:"id"`
	PatientID uuid.UUID              `json:"patient_id"`
	Content   *ClinicalReportContent `json:"content"`
	Status    GenerationStatus       `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// SNLPrescription is a generated Supplements, Nutrition and Lifestyle plan.
type SNLPrescription struct {
	ID                  uuid.UUID        `json:"id"`
	PatientID           uuid.UUID        `json:"patient_id"`
	PrescriptionContent *string          `json:"prescription_content"`
	Status              GenerationStatus `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// KnowledgeReference is a generated list of classical texts and studies.
type KnowledgeReference struct {
	ID                uuid.UUID        `json:"id"`
	PatientID         uuid.UUID        `json:"patient_id"`
	ReferencesContent *string          `json:"references_content"`
	Status            GenerationStatus `json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}
