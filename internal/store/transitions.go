package store

import (
	"fmt"

	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// analysisTables maps analysis kinds to their table.
var analysisTables = map[models.JobKind]string{
	models.JobImageAnalysis:    "image_analyses",
	models.JobDocumentAnalysis: "document_analyses",
}

// generationTables maps generation kinds to their table and content column.
var generationTables = map[models.JobKind]struct{ table, column string }{
	models.JobClinicalReport:     {"clinical_reports", "content"},
	models.JobSNLPrescription:    {"snl_prescriptions", "prescription_content"},
	models.JobKnowledgeReference: {"knowledge_references", "references_content"},
}

// checkAnalysisUpdate validates an analysis status change and normalises the
// result so that it is only present alongside COMPLETED. A COMPLETED row
// accepts no further writes.
func checkAnalysisUpdate(kind models.JobKind, current, next models.AnalysisStatus, p *analysisUpdateParams) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %s %q", ErrInvalidStatus, kind, next)
	}
	if current == models.AnalysisCompleted {
		return fmt.Errorf("%w: %s", ErrAlreadyCompleted, kind)
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, kind, current, next)
	}
	if next == models.AnalysisCompleted {
		if p.Result == nil {
			return fmt.Errorf("%s: COMPLETED requires an analysis result", kind)
		}
		return nil
	}
	p.Result = nil
	return nil
}

// checkGenerationUpdate is checkAnalysisUpdate for generated artefacts.
func checkGenerationUpdate(kind models.JobKind, current, next models.GenerationStatus, p *generationUpdateParams) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %s %q", ErrInvalidStatus, kind, next)
	}
	if current == models.GenerationCompleted {
		return fmt.Errorf("%w: %s", ErrAlreadyCompleted, kind)
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, kind, current, next)
	}
	if next == models.GenerationCompleted {
		if kind == models.JobClinicalReport && p.Report == nil {
			return fmt.Errorf("%s: COMPLETED requires report content", kind)
		}
		if kind != models.JobClinicalReport && p.Text == nil {
			return fmt.Errorf("%s: COMPLETED requires generated text", kind)
		}
		return nil
	}
	p.Report = nil
	p.Text = nil
	return nil
}

func checkAppointmentTransition(current, next models.AppointmentStatus) error {
	if !next.Valid() {
		return fmt.Errorf("%w: appointment %q", ErrInvalidStatus, next)
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: appointment %s -> %s", ErrInvalidTransition, current, next)
	}
	return nil
}
