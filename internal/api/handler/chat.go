package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/api/response"
	"github.com/kiranshivaraju/ayupilot/internal/chat"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// ChatService answers chat requests and lists past messages.
type ChatService interface {
	HandleChatRequest(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID, message string) (*chat.Reply, error)
	History(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID, page store.Page) ([]*models.ChatMessage, int, error)
}

type Chat struct {
	svc ChatService
}

func NewChat(svc ChatService) *Chat {
	return &Chat{svc: svc}
}

// Ask handles POST /api/v1/chat. It blocks until the reply arrives or the
// wait ceiling passes, in which case the response says so and carries
// pending=true.
func (h *Chat) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Message   string     `json:"message"`
		PatientID *uuid.UUID `json:"patient_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := h.svc.HandleChatRequest(r.Context(), userID, req.PatientID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, reply)
}

// History handles GET /api/v1/chat-messages.
func (h *Chat) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	q := newQuery(r)
	patientID := q.uuidParam("patient_id")
	page := q.page()
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	msgs, total, err := h.svc.History(r.Context(), userID, patientID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	collection(w, msgs, page, total)
}
