package models

import (
	"time"

	"github.com/google/uuid"
)

// JobKind names an entity kind that is processed asynchronously. The value
// doubles as the task name on the work queue and the path segment of the
// job status endpoint.
type JobKind string

const (
	JobImageAnalysis      JobKind = "image_analysis"
	JobDocumentAnalysis   JobKind = "document_analysis"
	JobClinicalReport     JobKind = "clinical_report"
	JobSNLPrescription    JobKind = "snl_prescription"
	JobKnowledgeReference JobKind = "knowledge_reference"
	JobChat               JobKind = "chat"
)

// JobKinds lists every kind in a stable order.
var JobKinds = []JobKind{
	JobImageAnalysis,
	JobDocumentAnalysis,
	JobClinicalReport,
	JobSNLPrescription,
	JobKnowledgeReference,
	JobChat,
}

func (k JobKind) Valid() bool {
	for _, known := range JobKinds {
		if k == known {
			return true
		}
	}
	return false
}

// JobStatus is the status view of any job-backed entity, as returned by the
// job status endpoint.
type JobStatus struct {
	Kind      JobKind   `json:"kind"`
	EntityID  uuid.UUID `json:"entity_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Cached    bool      `json:"cached"`
}
