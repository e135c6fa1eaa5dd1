package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

const chatColumns = `id, user_id, patient_id, role, content, created_at, updated_at`

func scanChatMessage(row rowScanner) (*models.ChatMessage, error) {
	var m models.ChatMessage
	if err := row.Scan(&m.ID, &m.UserID, &m.PatientID, &m.Role, &m.Content, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateChatExchange writes the user message and the assistant placeholder in
// one transaction so a poller never sees one without the other.
func (s *PostgresStore) CreateChatExchange(ctx context.Context, user, assistant *models.ChatMessage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, m := range []*models.ChatMessage{user, assistant} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_messages (`+chatColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, m.UserID, m.PatientID, m.Role, m.Content, m.CreatedAt, m.UpdatedAt); err != nil {
			return fmt.Errorf("create chat message: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetChatMessage(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	m, err := scanChatMessage(s.pool.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chat_messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat message: %w", err)
	}
	return m, nil
}

// UpdateAssistantMessage replaces the placeholder of an assistant message.
// It succeeds once per message; user messages are never rewritten.
func (s *PostgresStore) UpdateAssistantMessage(ctx context.Context, id uuid.UUID, content string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_messages SET content = $2, updated_at = NOW()
		WHERE id = $1 AND role = 'ASSISTANT' AND content = $3`,
		id, content, models.AssistantPlaceholder)
	if err != nil {
		return fmt.Errorf("update assistant message: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_messages WHERE id = $1 AND role = 'ASSISTANT')`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check assistant message: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyCompleted
}

// ListChatMessages returns a user's messages oldest first. A nil PatientID
// lists every conversation of the user.
func (s *PostgresStore) ListChatMessages(ctx context.Context, filter ChatFilter) ([]*models.ChatMessage, int, error) {
	var w whereBuilder
	w.add("user_id = ?", filter.UserID)
	if filter.PatientID != nil {
		w.add("patient_id = ?", *filter.PatientID)
	}
	where := w.sql()

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chat_messages WHERE "+where, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count chat messages: %w", err)
	}

	limit, offset := filter.Page.normalize()
	query := fmt.Sprintf(`SELECT `+chatColumns+` FROM chat_messages WHERE %s
		ORDER BY created_at, role DESC LIMIT %s OFFSET %s`, where, w.next(limit), w.next(offset))

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, total, rows.Err()
}
