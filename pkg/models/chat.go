package models

import (
	"time"

	"github.com/google/uuid"
)

// AssistantPlaceholder is the content of an assistant message that has not
// been answered yet.
const AssistantPlaceholder = "Thinking..."

// ChatMessage is one side of a conversation turn. PatientID is nil for
// general questions that are not tied to a patient.
type ChatMessage struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
	Role      ChatRole   `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Answered reports whether an assistant message holds a generated reply.
func (m *ChatMessage) Answered() bool {
	return m.Content != AssistantPlaceholder
}
