// Package chat answers assistant questions synchronously on top of the
// asynchronous chat job: it records the exchange, dispatches the job and
// waits a bounded time for the reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/clinic"
	"github.com/kiranshivaraju/ayupilot/internal/metrics"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// StillProcessing is returned when the reply did not arrive in time.
const StillProcessing = "I'm still processing your request. Please try again in a moment."

const maxMessageRunes = 4000

// Dispatcher schedules the chat job.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind models.JobKind, entityID uuid.UUID, related *uuid.UUID) error
}

// Reply is the outcome of one chat request.
type Reply struct {
	Response           string    `json:"response"`
	UserMessageID      uuid.UUID `json:"user_message_id"`
	AssistantMessageID uuid.UUID `json:"assistant_message_id"`
	Pending            bool      `json:"pending"`
}

// Orchestrator runs chat requests.
type Orchestrator struct {
	store        store.Store
	dispatcher   Dispatcher
	policy       clinic.Policy
	metrics      *metrics.Metrics
	pollInterval time.Duration
	timeout      time.Duration
	now          func() time.Time
}

func New(st store.Store, d Dispatcher, policy clinic.Policy, m *metrics.Metrics, pollInterval, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		store:        st,
		dispatcher:   d,
		policy:       policy,
		metrics:      m,
		pollInterval: pollInterval,
		timeout:      timeout,
		now:          time.Now,
	}
}

// HandleChatRequest records the user's message with an assistant
// placeholder, dispatches the chat job and polls for the answer. When the
// wait expires the placeholder stays in place and StillProcessing is
// returned without error. The wait starts before dispatch and bounds the
// request even when the dispatcher runs the job inline; such a run goes on
// in the background and may still fill the placeholder later.
func (o *Orchestrator) HandleChatRequest(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, clinic.Invalid("message", "message is required.")
	}
	if len([]rune(message)) > maxMessageRunes {
		return nil, clinic.Invalid("message", fmt.Sprintf("message must be at most %d characters.", maxMessageRunes))
	}
	if patientID != nil {
		if _, err := o.policy.Patient(ctx, o.store, userID, *patientID); err != nil {
			return nil, err
		}
	}

	now := o.now().UTC()
	user := &models.ChatMessage{
		ID: uuid.New(), UserID: userID, PatientID: patientID, Role: models.ChatRoleUser,
		Content: message, CreatedAt: now, UpdatedAt: now,
	}
	assistant := &models.ChatMessage{
		ID: uuid.New(), UserID: userID, PatientID: patientID, Role: models.ChatRoleAssistant,
		Content: models.AssistantPlaceholder, CreatedAt: now, UpdatedAt: now,
	}
	if err := o.store.CreateChatExchange(ctx, user, assistant); err != nil {
		return nil, fmt.Errorf("create chat exchange: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	dispatched := make(chan error, 1)
	go func() {
		dispatched <- o.dispatcher.Dispatch(context.WithoutCancel(ctx), models.JobChat, assistant.ID, &user.ID)
	}()

	reply := &Reply{UserMessageID: user.ID, AssistantMessageID: assistant.ID}
	content, err := o.await(waitCtx, assistant.ID, dispatched)
	switch {
	case err == nil:
		reply.Response = content
		o.metrics.ChatReply("answered")
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		slog.Info("chat reply not ready in time", "message_id", assistant.ID, "timeout", o.timeout)
		reply.Response = StillProcessing
		reply.Pending = true
		o.metrics.ChatReply("timeout")
	default:
		return nil, err
	}
	return reply, nil
}

// await polls the assistant message until it leaves the placeholder or ctx
// expires. Every read carries the deadline. A dispatch error ends the wait.
func (o *Orchestrator) await(ctx context.Context, id uuid.UUID, dispatched <-chan error) (string, error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		msg, err := o.store.GetChatMessage(ctx, id)
		switch {
		case err == nil && msg.Answered():
			return msg.Content, nil
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil:
			return "", fmt.Errorf("poll chat reply: %w", err)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err := <-dispatched:
			if err != nil {
				return "", fmt.Errorf("dispatch chat: %w", err)
			}
			// An inline run has written its reply by now.
			dispatched = nil
		case <-ticker.C:
		}
	}
}

// History lists the acting user's messages, optionally for one patient.
func (o *Orchestrator) History(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID, page store.Page) ([]*models.ChatMessage, int, error) {
	if patientID != nil {
		if _, err := o.policy.Patient(ctx, o.store, userID, *patientID); err != nil {
			return nil, 0, err
		}
	}
	msgs, total, err := o.store.ListChatMessages(ctx, store.ChatFilter{UserID: userID, PatientID: patientID, Page: page})
	if err != nil {
		return nil, 0, fmt.Errorf("list chat messages: %w", err)
	}
	return msgs, total, nil
}
