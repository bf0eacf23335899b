package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one user or assistant turn with a lifecycle status.
type Message struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"projectId"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func validStatus(status string) bool {
	switch status {
	case StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CreateMessage inserts a message and bumps the conversation timestamp.
func (s *Store) CreateMessage(ctx context.Context, projectID, conversationID, role, content, status string) (Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return Message{}, fmt.Errorf("role %q: %w", role, ErrValidation)
	}
	if !validStatus(status) {
		return Message{}, fmt.Errorf("status %q: %w", status, ErrValidation)
	}
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return Message{}, err
	}
	now := time.Now().UTC()
	m := Message{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO messages (id, project_id, conversation_id, role, content, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ProjectID, m.ConversationID, m.Role, m.Content, m.Status, m.CreatedAt, m.UpdatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// GetMessage fetches a message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (Message, error) {
	var m Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, conversation_id, role, content, status, created_at, updated_at
		 FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ProjectID, &m.ConversationID, &m.Role, &m.Content, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListMessages returns a conversation's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, conversation_id, role, content, status, created_at, updated_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns at most limit messages from the tail of the
// conversation, oldest first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, conversation_id, role, content, status, created_at, updated_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListProcessing returns all messages in the project still in processing state.
func (s *Store) ListProcessing(ctx context.Context, projectID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, conversation_id, role, content, status, created_at, updated_at
		 FROM messages WHERE project_id = ? AND status = ?`, projectID, StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("list processing: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// UpdateMessageContent replaces the content and status of a message.
func (s *Store) UpdateMessageContent(ctx context.Context, id, content, status string) error {
	if !validStatus(status) {
		return fmt.Errorf("status %q: %w", status, ErrValidation)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, status = ?, updated_at = ? WHERE id = ?`,
		content, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update message content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateMessageStatus flips the status of a message, leaving content untouched.
func (s *Store) UpdateMessageStatus(ctx context.Context, id, status string) error {
	if !validStatus(status) {
		return fmt.Errorf("status %q: %w", status, ErrValidation)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.ConversationID, &m.Role, &m.Content, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
