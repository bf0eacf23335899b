package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"codeloft/internal/store"
)

const testKey = "test-internal-key"

func newTestDeps(t *testing.T) (*store.Store, deps, string) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	p, err := s.CreateProject(context.Background(), "user-1", "demo")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	sys := store.NewSystem(s, testKey)
	return s, deps{sys: sys, key: testKey, projectID: p.ID}, p.ID
}

func TestReadFilesToolNoMatches(t *testing.T) {
	_, d, _ := newTestDeps(t)
	tool := &ReadFilesTool{d}

	out, err := tool.Call(context.Background(), map[string]any{
		"fileIds": []any{"missing-1", "missing-2"},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.HasPrefix(out, "Error:no files found") {
		t.Fatalf("got %q, want no-files error", out)
	}
}

func TestReadFilesToolReturnsContent(t *testing.T) {
	s, d, projectID := newTestDeps(t)
	ctx := context.Background()
	f, err := s.Create(ctx, projectID, nil, "main.go", store.TypeFile, "package main")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	tool := &ReadFilesTool{d}
	out, err := tool.Call(ctx, map[string]any{"fileIds": []any{f.ID, "missing"}})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var results []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode result %q: %v", out, err)
	}
	if len(results) != 1 || results[0].Content != "package main" {
		t.Fatalf("got %+v, want single main.go entry", results)
	}
}

func TestCreateFilesToolCrossProjectParent(t *testing.T) {
	s, d, _ := newTestDeps(t)
	ctx := context.Background()
	other, err := s.CreateProject(ctx, "user-2", "other")
	if err != nil {
		t.Fatalf("create other project: %v", err)
	}
	foreign, err := s.Create(ctx, other.ID, nil, "dir", store.TypeFolder, "")
	if err != nil {
		t.Fatalf("create foreign folder: %v", err)
	}

	tool := &CreateFilesTool{d}
	out, err := tool.Call(ctx, map[string]any{
		"parentId": foreign.ID,
		"files":    []any{map[string]any{"name": "a.txt", "content": "x"}},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.HasPrefix(out, "Error:") || !strings.Contains(out, "not in the same project") {
		t.Fatalf("got %q, want cross-project error", out)
	}
}

func TestCreateFilesToolReportsPartialConflicts(t *testing.T) {
	s, d, projectID := newTestDeps(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, projectID, nil, "taken.txt", store.TypeFile, ""); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tool := &CreateFilesTool{d}
	out, err := tool.Call(ctx, map[string]any{
		"parentId": "",
		"files": []any{
			map[string]any{"name": "new.txt", "content": "1"},
			map[string]any{"name": "taken.txt", "content": "2"},
		},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.HasPrefix(out, "Created 1 file(s)") {
		t.Fatalf("got %q, want created-1 summary", out)
	}
	if !strings.Contains(out, "taken.txt (") {
		t.Fatalf("got %q, want the conflict reported", out)
	}
}

func TestDeleteFilesToolRejectsMixedProjects(t *testing.T) {
	s, d, projectID := newTestDeps(t)
	ctx := context.Background()
	mine, err := s.Create(ctx, projectID, nil, "mine.txt", store.TypeFile, "")
	if err != nil {
		t.Fatalf("create mine: %v", err)
	}
	other, err := s.CreateProject(ctx, "user-2", "other")
	if err != nil {
		t.Fatalf("create other project: %v", err)
	}
	theirs, err := s.Create(ctx, other.ID, nil, "theirs.txt", store.TypeFile, "")
	if err != nil {
		t.Fatalf("create theirs: %v", err)
	}

	tool := &DeleteFilesTool{d}
	out, err := tool.Call(ctx, map[string]any{"fileIds": []any{mine.ID, theirs.ID}})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != "Error:not all files have the same projectID" {
		t.Fatalf("got %q, want whole-batch rejection", out)
	}
	// Nothing was deleted.
	if _, err := s.GetNode(ctx, mine.ID); err != nil {
		t.Fatalf("mine.txt should survive: %v", err)
	}
}

func TestUpdateFileToolRejectsFolders(t *testing.T) {
	s, d, projectID := newTestDeps(t)
	ctx := context.Background()
	dir, err := s.Create(ctx, projectID, nil, "dir", store.TypeFolder, "")
	if err != nil {
		t.Fatalf("create dir: %v", err)
	}

	tool := &UpdateFileTool{d}
	out, err := tool.Call(ctx, map[string]any{"fileId": dir.ID, "content": "x"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.Contains(out, "is a folder not a file") {
		t.Fatalf("got %q, want folder rejection", out)
	}
}

func TestRenameFileTool(t *testing.T) {
	s, d, projectID := newTestDeps(t)
	ctx := context.Background()
	f, err := s.Create(ctx, projectID, nil, "old.txt", store.TypeFile, "")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	tool := &RenameFileTool{d}
	out, err := tool.Call(ctx, map[string]any{"fileId": f.ID, "newName": "new.txt"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.Contains(out, "has been renamed to new.txt") {
		t.Fatalf("got %q, want rename confirmation", out)
	}
	got, err := s.GetNode(ctx, f.ID)
	if err != nil || got.Name != "new.txt" {
		t.Fatalf("got %q/%v, want new.txt", got.Name, err)
	}

	// A file in another project is out of reach, even with a valid id.
	other, err := s.CreateProject(ctx, "user-2", "other")
	if err != nil {
		t.Fatalf("create other project: %v", err)
	}
	foreign, err := s.Create(ctx, other.ID, nil, "notes.txt", store.TypeFile, "")
	if err != nil {
		t.Fatalf("create foreign file: %v", err)
	}
	out, err = tool.Call(ctx, map[string]any{"fileId": foreign.ID, "newName": "stolen.txt"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.HasPrefix(out, "Error:") {
		t.Fatalf("got %q, want cross-project rejection", out)
	}
	if got, err := s.GetNode(ctx, foreign.ID); err != nil || got.Name != "notes.txt" {
		t.Fatalf("foreign file changed to %q/%v, want untouched", got.Name, err)
	}

	out, err = tool.Call(ctx, map[string]any{"fileId": "missing", "newName": "x"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != "Error:missing not found" {
		t.Fatalf("got %q, want not-found error", out)
	}
}

type fakeScraper struct {
	pages map[string]string
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (string, error) {
	if content, ok := f.pages[url]; ok {
		return content, nil
	}
	return "", errors.New("fetch failed")
}

func TestScrapeURLsToolPlaceholderOnFailure(t *testing.T) {
	tool := &ScrapeURLsTool{scraper: &fakeScraper{pages: map[string]string{
		"https://good.example": "# Docs",
	}}}

	out, err := tool.Call(context.Background(), map[string]any{
		"urls": []any{"https://good.example", "https://bad.example"},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var results []struct {
		URL     string `json:"url"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Content != "# Docs" {
		t.Fatalf("got %q, want scraped content", results[0].Content)
	}
	if results[1].Content != "Failed to scrape Url" {
		t.Fatalf("got %q, want placeholder", results[1].Content)
	}
}
