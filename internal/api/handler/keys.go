package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/accounts"
	"github.com/kiranshivaraju/ayupilot/internal/api/response"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// KeyService issues and revokes the acting user's API keys.
type KeyService interface {
	CreateKey(ctx context.Context, userID uuid.UUID, name string, scopes []string) (*accounts.IssuedKey, error)
	ListKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeKey(ctx context.Context, userID, keyID uuid.UUID) error
}

// Keys serves /admin/keys.
type Keys struct {
	svc KeyService
}

func NewKeys(svc KeyService) *Keys {
	return &Keys{svc: svc}
}

// Create returns the raw key once; it cannot be retrieved again.
func (h *Keys) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Name   string   `json:"name"`
		Scopes []string `json:"scopes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	issued, err := h.svc.CreateKey(r.Context(), userID, req.Name, req.Scopes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, issued)
}

func (h *Keys) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	keys, err := h.svc.ListKeys(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	response.JSON(w, keys)
}

func (h *Keys) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "keyID")
	if !ok {
		return
	}
	if err := h.svc.RevokeKey(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}
