package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

const todayAppointmentsLimit = 100

// AppointmentInput is the body of an appointment create request.
type AppointmentInput struct {
	PatientID uuid.UUID              `json:"patient_id"`
	Date      models.Date            `json:"appointment_date"`
	Time      *models.ClockTime      `json:"appointment_time"`
	Type      models.AppointmentType `json:"appointment_type"`
	Reason    string                 `json:"reason"`
	Notes     string                 `json:"notes"`
}

// AppointmentPatch edits the descriptive fields of an appointment.
type AppointmentPatch struct {
	Type   *models.AppointmentType `json:"appointment_type"`
	Reason *string                 `json:"reason"`
	Notes  *string                 `json:"notes"`
}

// Reschedule moves an appointment; nil fields keep their current value.
type Reschedule struct {
	Date *models.Date      `json:"appointment_date"`
	Time *models.ClockTime `json:"appointment_time"`
}

// AppointmentService manages the appointment book.
type AppointmentService struct {
	store  store.Store
	policy Policy
	loc    *time.Location
	now    func() time.Time
}

// NewAppointmentService builds the service. loc is the practice time zone
// used to decide what "today" means.
func NewAppointmentService(s store.Store, policy Policy, loc *time.Location) *AppointmentService {
	if loc == nil {
		loc = time.UTC
	}
	return &AppointmentService{store: s, policy: policy, loc: loc, now: time.Now}
}

func (s *AppointmentService) today() models.Date {
	return models.DateOf(s.now().In(s.loc))
}

// Create books an appointment for one of the actor's patients. The acting
// user becomes the appointment's doctor.
func (s *AppointmentService) Create(ctx context.Context, actor uuid.UUID, in AppointmentInput) (*models.Appointment, error) {
	verr := &ValidationError{}
	if in.PatientID == uuid.Nil {
		verr.add("patient_id", "patient_id is required.")
	}
	if in.Date.IsZero() {
		verr.add("appointment_date", "appointment_date is required.")
	} else if in.Date.Before(s.today()) {
		verr.add("appointment_date", "Appointment date cannot be in the past.")
	}
	if in.Time == nil {
		verr.add("appointment_time", "appointment_time is required.")
	}
	if !in.Type.Valid() {
		verr.add("appointment_type", "appointment_type must be one of NEW_CASE, FOLLOW_UP, CONSULTATION.")
	}
	if err := verr.err(); err != nil {
		return nil, err
	}

	if _, err := s.policy.Patient(ctx, s.store, actor, in.PatientID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &models.Appointment{
		ID:        uuid.New(),
		PatientID: in.PatientID,
		DoctorID:  actor,
		Date:      in.Date,
		Time:      *in.Time,
		Type:      in.Type,
		Reason:    in.Reason,
		Notes:     in.Notes,
		Status:    models.AppointmentScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAppointment(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, duplicateSlot()
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return a, nil
}

func (s *AppointmentService) Get(ctx context.Context, actor, id uuid.UUID) (*models.Appointment, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if err := s.policy.CheckOwner(actor, a.DoctorID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AppointmentService) List(ctx context.Context, actor uuid.UUID, filter store.AppointmentFilter) ([]*models.Appointment, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, Invalid("status", fmt.Sprintf("unknown appointment status %q", filter.Status))
	}
	filter.DoctorID = s.policy.Scope(actor)
	appts, total, err := s.store.ListAppointments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return appts, total, nil
}

// Today lists the actor's appointments on the current practice day.
func (s *AppointmentService) Today(ctx context.Context, actor uuid.UUID) ([]*models.Appointment, error) {
	today := s.today()
	appts, _, err := s.List(ctx, actor, store.AppointmentFilter{
		Date: &today,
		Page: store.Page{Page: 1, Limit: todayAppointmentsLimit},
	})
	return appts, err
}

func (s *AppointmentService) Update(ctx context.Context, actor, id uuid.UUID, patch AppointmentPatch) (*models.Appointment, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if patch.Type != nil {
		if !patch.Type.Valid() {
			return nil, Invalid("appointment_type", "appointment_type must be one of NEW_CASE, FOLLOW_UP, CONSULTATION.")
		}
		a.Type = *patch.Type
	}
	setIf(&a.Reason, patch.Reason)
	setIf(&a.Notes, patch.Notes)
	return s.save(ctx, a)
}

// Reschedule moves a SCHEDULED appointment to a new slot.
func (s *AppointmentService) Reschedule(ctx context.Context, actor, id uuid.UUID, to Reschedule) (*models.Appointment, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.AppointmentScheduled {
		return nil, Invalid("status", fmt.Sprintf("Only scheduled appointments can be rescheduled; this one is %s.", a.Status))
	}
	if to.Date == nil && to.Time == nil {
		return nil, Invalid("appointment_date", "appointment_date or appointment_time is required.")
	}
	if to.Date != nil {
		if to.Date.Before(s.today()) {
			return nil, Invalid("appointment_date", "Appointment date cannot be in the past.")
		}
		a.Date = *to.Date
	}
	if to.Time != nil {
		a.Time = *to.Time
	}
	return s.save(ctx, a)
}

func (s *AppointmentService) save(ctx context.Context, a *models.Appointment) (*models.Appointment, error) {
	a.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateAppointment(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, duplicateSlot()
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return a, nil
}

func (s *AppointmentService) Complete(ctx context.Context, actor, id uuid.UUID) (*models.Appointment, error) {
	return s.transition(ctx, actor, id, models.AppointmentCompleted)
}

func (s *AppointmentService) Cancel(ctx context.Context, actor, id uuid.UUID) (*models.Appointment, error) {
	return s.transition(ctx, actor, id, models.AppointmentCancelled)
}

func (s *AppointmentService) transition(ctx context.Context, actor, id uuid.UUID, to models.AppointmentStatus) (*models.Appointment, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.TransitionAppointment(ctx, id, to); err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidTransition):
			return nil, Invalid("status", fmt.Sprintf("Cannot move a %s appointment to %s.", a.Status, to))
		case errors.Is(err, store.ErrNotFound):
			return nil, err
		default:
			return nil, fmt.Errorf("transition appointment: %w", err)
		}
	}
	return s.store.GetAppointment(ctx, id)
}

func (s *AppointmentService) Delete(ctx context.Context, actor, id uuid.UUID) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteAppointment(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete appointment: %w", err)
	}
	return nil
}

func duplicateSlot() error {
	return Invalid("appointment", "An appointment for this patient, doctor, date, and time already exists.")
}
