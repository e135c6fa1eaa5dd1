package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/api/response"
	"github.com/kiranshivaraju/ayupilot/internal/clinic"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// AppointmentService is what the appointment endpoints need.
type AppointmentService interface {
	Create(ctx context.Context, actor uuid.UUID, in clinic.AppointmentInput) (*models.Appointment, error)
	Get(ctx context.Context, actor, id uuid.UUID) (*models.Appointment, error)
	List(ctx context.Context, actor uuid.UUID, filter store.AppointmentFilter) ([]*models.Appointment, int, error)
	Today(ctx context.Context, actor uuid.UUID) ([]*models.Appointment, error)
	Update(ctx context.Context, actor, id uuid.UUID, patch clinic.AppointmentPatch) (*models.Appointment, error)
	Reschedule(ctx context.Context, actor, id uuid.UUID, to clinic.Reschedule) (*models.Appointment, error)
	Complete(ctx context.Context, actor, id uuid.UUID) (*models.Appointment, error)
	Cancel(ctx context.Context, actor, id uuid.UUID) (*models.Appointment, error)
	Delete(ctx context.Context, actor, id uuid.UUID) error
}

// Appointments serves /appointments.
type Appointments struct {
	svc AppointmentService
}

func NewAppointments(svc AppointmentService) *Appointments {
	return &Appointments{svc: svc}
}

func (h *Appointments) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	q := newQuery(r)
	filter := store.AppointmentFilter{
		PatientID: q.uuidParam("patient_id"),
		Status:    models.AppointmentStatus(q.param("status")),
		Page:      q.page(),
	}
	if raw := q.param("date"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			q.verr["date"] = "Must be a date in YYYY-MM-DD format."
		} else {
			filter.Date = &d
		}
	}
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	appts, total, err := h.svc.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	collection(w, appts, filter.Page, total)
}

func (h *Appointments) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	var in clinic.AppointmentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	a, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, a)
}

func (h *Appointments) Today(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	appts, err := h.svc.Today(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if appts == nil {
		appts = []*models.Appointment{}
	}
	response.JSON(w, appts)
}

func (h *Appointments) Get(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.svc.Get)
}

func (h *Appointments) Complete(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.svc.Complete)
}

func (h *Appointments) Cancel(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.svc.Cancel)
}

func (h *Appointments) Update(w http.ResponseWriter, r *http.Request) {
	var patch clinic.AppointmentPatch
	h.byID(w, r, func(ctx context.Context, userID, id uuid.UUID) (*models.Appointment, error) {
		if !decodeJSON(w, r, &patch) {
			return nil, errResponded
		}
		return h.svc.Update(ctx, userID, id, patch)
	})
}

func (h *Appointments) Reschedule(w http.ResponseWriter, r *http.Request) {
	var to clinic.Reschedule
	h.byID(w, r, func(ctx context.Context, userID, id uuid.UUID) (*models.Appointment, error) {
		if !decodeJSON(w, r, &to) {
			return nil, errResponded
		}
		return h.svc.Reschedule(ctx, userID, id, to)
	})
}

func (h *Appointments) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "appointmentID")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *Appointments) byID(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) (*models.Appointment, error)) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "appointmentID")
	if !ok {
		return
	}
	a, err := fn(r.Context(), userID, id)
	if err == errResponded {
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, a)
}
