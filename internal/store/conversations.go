package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is an ordered thread of messages scoped to one project.
type Conversation struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasGeneratedTitle reports whether the title has moved past the sentinel.
func (c Conversation) HasGeneratedTitle() bool {
	return c.Title != DefaultConversationTitle
}

// CreateConversation inserts a conversation under the project. An empty title
// gets the sentinel default. The owning project's updated_at is bumped.
func (s *Store) CreateConversation(ctx context.Context, projectID, title string) (Conversation, error) {
	if title == "" {
		title = DefaultConversationTitle
	}
	now := time.Now().UTC()
	c := Conversation{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO conversations (id, project_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.ProjectID, c.Title, c.CreatedAt, c.UpdatedAt); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		return touchProjectTx(tx, projectID, now)
	})
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// GetConversation fetches a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.ProjectID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns a project's conversations, most recent first.
func (s *Store) ListConversations(ctx context.Context, projectID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, title, created_at, updated_at FROM conversations
		 WHERE project_id = ? ORDER BY updated_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateConversationTitle replaces the conversation title and bumps the
// conversation and owning project timestamps.
func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	if title == "" {
		return fmt.Errorf("title is required: %w", ErrValidation)
	}
	c, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, title, now, id); err != nil {
			return fmt.Errorf("update conversation title: %w", err)
		}
		return touchProjectTx(tx, c.ProjectID, now)
	})
}
