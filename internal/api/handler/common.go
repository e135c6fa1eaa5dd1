// Package handler holds the HTTP handlers. Each group depends on a narrow
// service interface and maps service errors through writeError.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/ayupilot/internal/api/middleware"
	"github.com/kiranshivaraju/ayupilot/internal/api/response"
	"github.com/kiranshivaraju/ayupilot/internal/clinic"
	"github.com/kiranshivaraju/ayupilot/internal/store"
)

// maxJSONBody bounds request bodies that are not uploads.
const maxJSONBody = 1 << 20

// writeError maps service errors onto the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *clinic.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", verr.Fields)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, clinic.ErrAccessDenied):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this resource", nil)
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

// actor returns the authenticated user or writes 401.
func actor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing acting user", nil)
	}
	return id, ok
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, maxJSONBody)
}

// decodeBody decodes a JSON body of at most limit bytes or writes 400/413.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "INVALID_REQUEST", "Request body too large", nil)
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// pathID parses a UUID route parameter or writes 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(urlParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("%s must be a UUID", name), nil)
		return uuid.Nil, false
	}
	return id, true
}

// query holds the parsed list parameters shared by every listing.
type query struct {
	r    *http.Request
	verr map[string]string
}

func newQuery(r *http.Request) *query {
	return &query{r: r, verr: map[string]string{}}
}

func (q *query) intParam(name string) int {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		q.verr[name] = "Must be a non-negative integer."
		return 0
	}
	return n
}

func (q *query) uuidParam(name string) *uuid.UUID {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		q.verr[name] = "Must be a UUID."
		return nil
	}
	return &id
}

func (q *query) param(name string) string {
	return q.r.URL.Query().Get(name)
}

func (q *query) page() store.Page {
	return store.Page{Page: q.intParam("page"), Limit: q.intParam("limit")}
}

func (q *query) err() error {
	if len(q.verr) == 0 {
		return nil
	}
	return &clinic.ValidationError{Fields: q.verr}
}

// collection writes one page of a listing.
func collection[T any](w http.ResponseWriter, items []T, page store.Page, total int) {
	p := page.Clamp()
	response.Collection(w, items, response.NewMeta(p.Page, p.Limit, total))
}

// errResponded signals that a callback already wrote the response.
var errResponded = errors.New("response already written")
