package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newTestConversation(t *testing.T, s *Store, projectID string) Conversation {
	t.Helper()
	c, err := s.CreateConversation(context.Background(), projectID, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return c
}

func TestCreateMessageValidation(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	c := newTestConversation(t, s, p.ID)
	ctx := context.Background()

	tests := []struct {
		name   string
		role   string
		status string
	}{
		{"bad role", "system", StatusCompleted},
		{"bad status", RoleUser, "pending"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.CreateMessage(ctx, p.ID, c.ID, tc.role, "hi", tc.status); !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}

	if _, err := s.CreateMessage(ctx, p.ID, "missing-conv", RoleUser, "hi", StatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing conversation: got %v, want ErrNotFound", err)
	}
}

func TestRecentMessagesTailOldestFirst(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	c := newTestConversation(t, s, p.ID)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.CreateMessage(ctx, p.ID, c.ID, RoleUser, fmt.Sprintf("msg-%d", i), StatusCompleted); err != nil {
			t.Fatalf("create message %d: %v", i, err)
		}
	}
	msgs, err := s.RecentMessages(ctx, c.ID, 3)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	want := []string{"msg-2", "msg-3", "msg-4"}
	for i, m := range msgs {
		if m.Content != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, m.Content, want[i])
		}
	}
}

func TestMessageStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	c := newTestConversation(t, s, p.ID)
	ctx := context.Background()

	m, err := s.CreateMessage(ctx, p.ID, c.ID, RoleAssistant, "", StatusProcessing)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	processing, err := s.ListProcessing(ctx, p.ID)
	if err != nil {
		t.Fatalf("list processing: %v", err)
	}
	if len(processing) != 1 || processing[0].ID != m.ID {
		t.Fatalf("expected the placeholder in processing list, got %+v", processing)
	}

	if err := s.UpdateMessageContent(ctx, m.ID, "done", StatusCompleted); err != nil {
		t.Fatalf("update content: %v", err)
	}
	got, err := s.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Content != "done" || got.Status != StatusCompleted {
		t.Fatalf("got %q/%s, want done/completed", got.Content, got.Status)
	}

	processing, err = s.ListProcessing(ctx, p.ID)
	if err != nil {
		t.Fatalf("list processing: %v", err)
	}
	if len(processing) != 0 {
		t.Fatalf("processing list should be empty, got %d", len(processing))
	}

	if err := s.UpdateMessageStatus(ctx, "missing", StatusCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing message: got %v, want ErrNotFound", err)
	}
}

func TestConversationTitleLifecycle(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	c := newTestConversation(t, s, p.ID)
	ctx := context.Background()

	if c.Title != DefaultConversationTitle {
		t.Fatalf("got title %q, want sentinel", c.Title)
	}
	if c.HasGeneratedTitle() {
		t.Fatal("sentinel title should not count as generated")
	}
	if err := s.UpdateConversationTitle(ctx, c.ID, "Build a snake game"); err != nil {
		t.Fatalf("update title: %v", err)
	}
	got, err := s.GetConversation(ctx, c.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if !got.HasGeneratedTitle() || got.Title != "Build a snake game" {
		t.Fatalf("got %q, want generated title", got.Title)
	}
}
