package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// Policy decides whether an acting user may reach a doctor's records. With
// EnforceOwnership off, every authenticated user sees the whole practice.
type Policy struct {
	EnforceOwnership bool
}

// Scope returns the doctor filter for listings made by actor.
func (p Policy) Scope(actor uuid.UUID) *uuid.UUID {
	if !p.EnforceOwnership {
		return nil
	}
	return &actor
}

// CheckOwner returns ErrAccessDenied when actor may not act on records owned by doctorID.
func (p Policy) CheckOwner(actor, doctorID uuid.UUID) error {
	if p.EnforceOwnership && actor != doctorID {
		return ErrAccessDenied
	}
	return nil
}

// PatientReader is the slice of the store needed to resolve a patient.
type PatientReader interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*models.Patient, error)
}

// Patient loads a patient and checks that actor may act on it.
func (p Policy) Patient(ctx context.Context, st PatientReader, actor, patientID uuid.UUID) (*models.Patient, error) {
	patient, err := st.GetPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if err := p.CheckOwner(actor, patient.DoctorID); err != nil {
		return nil, err
	}
	return patient, nil
}
