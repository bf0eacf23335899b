package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"codeloft/internal/store"
)

// ownedNode fetches a file-tree node and verifies the caller owns its
// project.
func (s *Server) ownedNode(w http.ResponseWriter, r *http.Request) (store.FileNode, bool) {
	node, err := s.store.GetNode(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, err)
		return store.FileNode{}, false
	}
	if _, err := s.store.GetProjectOwned(r.Context(), node.ProjectID, userID(r)); err != nil {
		writeError(w, err)
		return store.FileNode{}, false
	}
	return node, true
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProjectOwned(r.Context(), chi.URLParam(r, "projectID"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	nodes, err := s.store.ListAll(r.Context(), project.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if nodes == nil {
		nodes = []store.FileNode{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProjectOwned(r.Context(), chi.URLParam(r, "projectID"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	var parentID *string
	if raw := r.URL.Query().Get("parentId"); raw != "" {
		parentID = &raw
	}
	nodes, err := s.store.ListChildren(r.Context(), project.ID, parentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if nodes == nil {
		nodes = []store.FileNode{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProjectOwned(r.Context(), chi.URLParam(r, "projectID"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		ParentID *string `json:"parentId"`
		Name     string  `json:"name"`
		Type     string  `json:"type"`
		Content  string  `json:"content"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	node, err := s.store.Create(r.Context(), project.ID, req.ParentID, req.Name, req.Type, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProjectOwned(r.Context(), chi.URLParam(r, "projectID"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		ParentID *string           `json:"parentId"`
		Files    []store.BatchFile `json:"files"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	results, err := s.store.CreateBatch(r.Context(), project.ID, req.ParentID, req.Files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	node, ok := s.ownedNode(w, r)
	if !ok {
		return
	}
	if node.Type == store.TypeFile {
		content, err := s.store.NodeContent(r.Context(), node.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		node.Content = content
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleFilePath(w http.ResponseWriter, r *http.Request) {
	node, ok := s.ownedNode(w, r)
	if !ok {
		return
	}
	path, err := s.store.ResolvePath(r.Context(), node.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	node, ok := s.ownedNode(w, r)
	if !ok {
		return
	}
	var req struct {
		NewName string `json:"newName"`
		Type    string `json:"type"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	expect := req.Type
	if expect == "" {
		expect = node.Type
	}
	renamed, err := s.store.Rename(r.Context(), node.ID, req.NewName, expect)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renamed)
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	node, ok := s.ownedNode(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.store.UpdateContent(r.Context(), node.ID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	node, ok := s.ownedNode(w, r)
	if !ok {
		return
	}
	count, err := s.store.Delete(r.Context(), node.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": count})
}
