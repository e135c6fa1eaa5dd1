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

// PatientService is what the patient endpoints need.
type PatientService interface {
	Create(ctx context.Context, actor uuid.UUID, in clinic.PatientInput) (*models.Patient, error)
	Get(ctx context.Context, actor, id uuid.UUID) (*models.Patient, error)
	List(ctx context.Context, actor uuid.UUID, filter store.PatientFilter) ([]*models.Patient, int, error)
	Recent(ctx context.Context, actor uuid.UUID) ([]*models.Patient, error)
	Update(ctx context.Context, actor, id uuid.UUID, patch clinic.PatientPatch) (*models.Patient, error)
	Delete(ctx context.Context, actor, id uuid.UUID) error
}

// patientView adds the derived dosha label to a patient record.
type patientView struct {
	*models.Patient
	Dosha string `json:"dosha"`
}

func viewPatient(p *models.Patient) patientView {
	return patientView{Patient: p, Dosha: p.Dosha()}
}

func viewPatients(ps []*models.Patient) []patientView {
	out := make([]patientView, len(ps))
	for i, p := range ps {
		out[i] = viewPatient(p)
	}
	return out
}

// Patients serves /patients.
type Patients struct {
	svc PatientService
}

func NewPatients(svc PatientService) *Patients {
	return &Patients{svc: svc}
}

func (h *Patients) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	q := newQuery(r)
	filter := store.PatientFilter{
		Status: models.PatientStatus(q.param("status")),
		Gender: models.Gender(q.param("gender")),
		Search: q.param("search"),
		Page:   q.page(),
	}
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	patients, total, err := h.svc.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	collection(w, viewPatients(patients), filter.Page, total)
}

func (h *Patients) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	var in clinic.PatientInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, viewPatient(p))
}

func (h *Patients) Recent(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	patients, err := h.svc.Recent(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, viewPatients(patients))
}

func (h *Patients) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	p, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, viewPatient(p))
}

func (h *Patients) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	var patch clinic.PatientPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	p, err := h.svc.Update(r.Context(), userID, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, viewPatient(p))
}

func (h *Patients) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}
