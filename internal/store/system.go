package store

import (
	"context"
	"crypto/subtle"
	"fmt"
)

// System exposes the subset of store operations the workflow engine and tools
// call without a user session. Every call carries the shared internal key and
// is rejected before touching the database when the key does not match.
type System struct {
	store  *Store
	secret string
}

// NewSystem wraps the store with internal-key checks. An empty secret leaves
// the facade locked: every call fails until a key is configured.
func NewSystem(store *Store, secret string) *System {
	return &System{store: store, secret: secret}
}

func (s *System) validate(key string) error {
	if s.secret == "" {
		return fmt.Errorf("internal key not configured: %w", ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.secret)) != 1 {
		return fmt.Errorf("invalid internal key: %w", ErrUnauthorized)
	}
	return nil
}

func (s *System) GetProject(ctx context.Context, key, id string) (Project, error) {
	if err := s.validate(key); err != nil {
		return Project{}, err
	}
	return s.store.GetProject(ctx, id)
}

func (s *System) GetConversation(ctx context.Context, key, id string) (Conversation, error) {
	if err := s.validate(key); err != nil {
		return Conversation{}, err
	}
	return s.store.GetConversation(ctx, id)
}

func (s *System) UpdateConversationTitle(ctx context.Context, key, id, title string) error {
	if err := s.validate(key); err != nil {
		return err
	}
	return s.store.UpdateConversationTitle(ctx, id, title)
}

func (s *System) GetMessage(ctx context.Context, key, id string) (Message, error) {
	if err := s.validate(key); err != nil {
		return Message{}, err
	}
	return s.store.GetMessage(ctx, id)
}

func (s *System) RecentMessages(ctx context.Context, key, conversationID string, limit int) ([]Message, error) {
	if err := s.validate(key); err != nil {
		return nil, err
	}
	return s.store.RecentMessages(ctx, conversationID, limit)
}

func (s *System) CreateMessage(ctx context.Context, key, projectID, conversationID, role, content, status string) (Message, error) {
	if err := s.validate(key); err != nil {
		return Message{}, err
	}
	return s.store.CreateMessage(ctx, projectID, conversationID, role, content, status)
}

func (s *System) UpdateMessageContent(ctx context.Context, key, id, content, status string) error {
	if err := s.validate(key); err != nil {
		return err
	}
	return s.store.UpdateMessageContent(ctx, id, content, status)
}

func (s *System) UpdateMessageStatus(ctx context.Context, key, id, status string) error {
	if err := s.validate(key); err != nil {
		return err
	}
	return s.store.UpdateMessageStatus(ctx, id, status)
}

func (s *System) ListProcessing(ctx context.Context, key, projectID string) ([]Message, error) {
	if err := s.validate(key); err != nil {
		return nil, err
	}
	return s.store.ListProcessing(ctx, projectID)
}

func (s *System) GetNode(ctx context.Context, key, id string) (FileNode, error) {
	if err := s.validate(key); err != nil {
		return FileNode{}, err
	}
	return s.store.GetNode(ctx, id)
}

func (s *System) NodeContent(ctx context.Context, key, id string) (string, error) {
	if err := s.validate(key); err != nil {
		return "", err
	}
	return s.store.NodeContent(ctx, id)
}

func (s *System) ResolvePath(ctx context.Context, key, id string) ([]PathSegment, error) {
	if err := s.validate(key); err != nil {
		return nil, err
	}
	return s.store.ResolvePath(ctx, id)
}

func (s *System) ListChildren(ctx context.Context, key, projectID string, parentID *string) ([]FileNode, error) {
	if err := s.validate(key); err != nil {
		return nil, err
	}
	return s.store.ListChildren(ctx, projectID, parentID)
}

func (s *System) ListAll(ctx context.Context, key, projectID string) ([]FileNode, error) {
	if err := s.validate(key); err != nil {
		return nil, err
	}
	return s.store.ListAll(ctx, projectID)
}

func (s *System) CreateFiles(ctx context.Context, key, projectID string, parentID *string, files []BatchFile) ([]BatchResult, error) {
	if err := s.validate(key); err != nil {
		return nil, err
	}
	return s.store.CreateBatch(ctx, projectID, parentID, files)
}

func (s *System) CreateFolder(ctx context.Context, key, projectID string, parentID *string, name string) (FileNode, error) {
	if err := s.validate(key); err != nil {
		return FileNode{}, err
	}
	return s.store.Create(ctx, projectID, parentID, name, TypeFolder, "")
}

func (s *System) Rename(ctx context.Context, key, nodeID, newName, expectType string) (FileNode, error) {
	if err := s.validate(key); err != nil {
		return FileNode{}, err
	}
	return s.store.Rename(ctx, nodeID, newName, expectType)
}

func (s *System) Delete(ctx context.Context, key, nodeID string) (int, error) {
	if err := s.validate(key); err != nil {
		return 0, err
	}
	return s.store.Delete(ctx, nodeID)
}

func (s *System) UpdateContent(ctx context.Context, key, nodeID, content string) (FileNode, error) {
	if err := s.validate(key); err != nil {
		return FileNode{}, err
	}
	return s.store.UpdateContent(ctx, nodeID, content)
}
