package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"codeloft/internal/agent"
	"codeloft/internal/engine"
	"codeloft/internal/llm"
	"codeloft/internal/llm/mockclient"
	"codeloft/internal/store"
)

const testKey = "server-test-key"

type testEnv struct {
	store  *store.Store
	client *mockclient.Client
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	client := mockclient.New()
	eng := engine.New(engine.Options{
		Store:       s,
		System:      store.NewSystem(s, testKey),
		InternalKey: testKey,
		Router:      &agent.Router{Client: client, Model: "test-model", MaxIterations: 5},
		SettleDelay: time.Millisecond,
		RecentLimit: 20,
	})
	eng.Start(1)
	t.Cleanup(eng.Stop)

	srv := httptest.NewServer(New(s, eng).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{store: s, client: client, server: srv}
}

func (e *testEnv) do(t *testing.T, user, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func (e *testEnv) mustJSON(t *testing.T, user, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	resp, data := e.do(t, user, method, path, body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: got %d, want %d: %s", method, path, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.do(t, "", http.MethodGet, "/api/projects", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", resp.StatusCode)
	}
	resp, _ = e.do(t, "", http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz should be public, got %d", resp.StatusCode)
	}
}

func TestProjectOwnership(t *testing.T) {
	e := newTestEnv(t)
	var project store.Project
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects",
		map[string]string{"name": "demo"}, http.StatusCreated, &project)

	e.mustJSON(t, "alice", http.MethodGet, "/api/projects/"+project.ID, nil, http.StatusOK, nil)
	resp, _ := e.do(t, "bob", http.MethodGet, "/api/projects/"+project.ID, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign access: got %d, want 403", resp.StatusCode)
	}
}

func TestFileEndpoints(t *testing.T) {
	e := newTestEnv(t)
	var project store.Project
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects",
		map[string]string{"name": "demo"}, http.StatusCreated, &project)
	base := "/api/projects/" + project.ID

	var folder store.FileNode
	e.mustJSON(t, "alice", http.MethodPost, base+"/files",
		map[string]any{"name": "src", "type": "folder"}, http.StatusCreated, &folder)

	var file store.FileNode
	e.mustJSON(t, "alice", http.MethodPost, base+"/files",
		map[string]any{"name": "main.go", "type": "file", "parentId": folder.ID, "content": "package main"},
		http.StatusCreated, &file)

	// Duplicate sibling name of the same type conflicts.
	resp, _ := e.do(t, "alice", http.MethodPost, base+"/files",
		map[string]any{"name": "main.go", "type": "file", "parentId": folder.ID})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate: got %d, want 409", resp.StatusCode)
	}

	// Renaming with the wrong expected type is a bad request.
	resp, _ = e.do(t, "alice", http.MethodPut, "/api/files/"+file.ID+"/rename",
		map[string]any{"newName": "x.go", "type": "folder"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("type mismatch: got %d, want 400", resp.StatusCode)
	}

	var path []store.PathSegment
	e.mustJSON(t, "alice", http.MethodGet, "/api/files/"+file.ID+"/path", nil, http.StatusOK, &path)
	if len(path) != 2 || path[0].Name != "src" || path[1].Name != "main.go" {
		t.Fatalf("got path %+v, want src/main.go", path)
	}

	var del map[string]int
	e.mustJSON(t, "alice", http.MethodDelete, "/api/files/"+folder.ID, nil, http.StatusOK, &del)
	if del["deleted"] != 2 {
		t.Fatalf("got %d deleted, want 2", del["deleted"])
	}
}

func TestSendAndCancelMessage(t *testing.T) {
	e := newTestEnv(t)
	var project store.Project
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects",
		map[string]string{"name": "demo"}, http.StatusCreated, &project)
	var conv store.Conversation
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects/"+project.ID+"/conversations",
		map[string]string{}, http.StatusCreated, &conv)

	e.client.Enqueue(llm.ChatResponse{Choices: []llm.ChatChoice{{
		Message: llm.Message{Role: "assistant", Content: "done"}, FinishReason: "stop",
	}}})
	e.client.Enqueue(llm.ChatResponse{Choices: []llm.ChatChoice{{
		Message: llm.Message{Role: "assistant", Content: "A title"}, FinishReason: "stop",
	}}})

	var accepted struct {
		JobID            string        `json:"jobId"`
		UserMessage      store.Message `json:"userMessage"`
		AssistantMessage store.Message `json:"assistantMessage"`
	}
	e.mustJSON(t, "alice", http.MethodPost, "/api/messages", map[string]string{
		"projectId":      project.ID,
		"conversationId": conv.ID,
		"message":        "hello",
	}, http.StatusAccepted, &accepted)
	if accepted.AssistantMessage.Status != store.StatusProcessing {
		t.Fatalf("placeholder status %s, want processing", accepted.AssistantMessage.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		msg, err := e.store.GetMessage(context.Background(), accepted.AssistantMessage.ID)
		if err != nil {
			t.Fatalf("get message: %v", err)
		}
		if msg.Status == store.StatusCompleted {
			if msg.Content != "done" {
				t.Fatalf("got %q, want done", msg.Content)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message stuck in %s", msg.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Cancelling a finished message is accepted and changes nothing.
	e.mustJSON(t, "alice", http.MethodPost, "/api/messages/cancel",
		map[string]string{"messageId": accepted.AssistantMessage.ID}, http.StatusOK, nil)
	msg, err := e.store.GetMessage(context.Background(), accepted.AssistantMessage.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if msg.Status != store.StatusCompleted {
		t.Fatalf("late cancel flipped status to %s", msg.Status)
	}
}

func TestSendCancelsStaleProcessingMessage(t *testing.T) {
	e := newTestEnv(t)
	var project store.Project
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects",
		map[string]string{"name": "demo"}, http.StatusCreated, &project)
	var conv store.Conversation
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects/"+project.ID+"/conversations",
		map[string]string{}, http.StatusCreated, &conv)

	// A placeholder stranded in processing with no job behind it, as after
	// a crash. Sending again must flip it, not leave it processing forever.
	ctx := context.Background()
	stale, err := e.store.CreateMessage(ctx, project.ID, conv.ID,
		store.RoleAssistant, "", store.StatusProcessing)
	if err != nil {
		t.Fatalf("create stale placeholder: %v", err)
	}

	e.client.Enqueue(llm.ChatResponse{Choices: []llm.ChatChoice{{
		Message: llm.Message{Role: "assistant", Content: "done"}, FinishReason: "stop",
	}}})
	e.client.Enqueue(llm.ChatResponse{Choices: []llm.ChatChoice{{
		Message: llm.Message{Role: "assistant", Content: "A title"}, FinishReason: "stop",
	}}})

	var accepted struct {
		AssistantMessage store.Message `json:"assistantMessage"`
	}
	e.mustJSON(t, "alice", http.MethodPost, "/api/messages", map[string]string{
		"projectId":      project.ID,
		"conversationId": conv.ID,
		"message":        "try again",
	}, http.StatusAccepted, &accepted)

	got, err := e.store.GetMessage(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get stale message: %v", err)
	}
	if got.Status != store.StatusCancelled {
		t.Fatalf("stale placeholder is %s, want cancelled", got.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		msg, err := e.store.GetMessage(ctx, accepted.AssistantMessage.ID)
		if err != nil {
			t.Fatalf("get message: %v", err)
		}
		if msg.Status == store.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("new message stuck in %s", msg.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSendMessageValidation(t *testing.T) {
	e := newTestEnv(t)
	var project store.Project
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects",
		map[string]string{"name": "demo"}, http.StatusCreated, &project)
	var other store.Project
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects",
		map[string]string{"name": "other"}, http.StatusCreated, &other)
	var conv store.Conversation
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects/"+project.ID+"/conversations",
		map[string]string{}, http.StatusCreated, &conv)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"empty message", map[string]string{"projectId": project.ID, "conversationId": conv.ID}, http.StatusBadRequest},
		{"wrong project", map[string]string{"projectId": other.ID, "conversationId": conv.ID, "message": "x"}, http.StatusBadRequest},
		{"missing conversation", map[string]string{"projectId": project.ID, "conversationId": "nope", "message": "x"}, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, data := e.do(t, "alice", http.MethodPost, "/api/messages", tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("got %d, want %d: %s", resp.StatusCode, tc.want, data)
			}
		})
	}
}

func TestListMessagesOrder(t *testing.T) {
	e := newTestEnv(t)
	var project store.Project
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects",
		map[string]string{"name": "demo"}, http.StatusCreated, &project)
	var conv store.Conversation
	e.mustJSON(t, "alice", http.MethodPost, "/api/projects/"+project.ID+"/conversations",
		map[string]string{}, http.StatusCreated, &conv)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := e.store.CreateMessage(ctx, project.ID, conv.ID,
			store.RoleUser, fmt.Sprintf("m-%d", i), store.StatusCompleted); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}
	var msgs []store.Message
	e.mustJSON(t, "alice", http.MethodGet, "/api/conversations/"+conv.ID+"/messages",
		nil, http.StatusOK, &msgs)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != fmt.Sprintf("m-%d", i) {
			t.Fatalf("position %d: got %q", i, m.Content)
		}
	}
}
