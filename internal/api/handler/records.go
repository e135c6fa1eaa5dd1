package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/api/response"
	"github.com/kiranshivaraju/ayupilot/internal/store"
)

// RecordService reads and deletes one kind of job-backed record.
type RecordService[T any] interface {
	Get(ctx context.Context, actor, id uuid.UUID) (T, error)
	List(ctx context.Context, actor uuid.UUID, filter store.ListFilter) ([]T, int, error)
	Delete(ctx context.Context, actor, id uuid.UUID) error
}

// Records serves the list, retrieve and delete routes of one record kind.
// List accepts patient_id and status filters.
type Records[T any] struct {
	svc RecordService[T]
}

func NewRecords[T any](svc RecordService[T]) *Records[T] {
	return &Records[T]{svc: svc}
}

func (h *Records[T]) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	q := newQuery(r)
	filter := store.ListFilter{
		PatientID: q.uuidParam("patient_id"),
		Status:    q.param("status"),
		Page:      q.page(),
	}
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	items, total, err := h.svc.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	collection(w, items, filter.Page, total)
}

func (h *Records[T]) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, rec)
}

func (h *Records[T]) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}
