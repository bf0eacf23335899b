package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"codeloft/internal/engine"
	"codeloft/internal/logging"
	"codeloft/internal/store"
)

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	project, err := s.store.CreateProject(r.Context(), userID(r), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []store.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProjectOwned(r.Context(), chi.URLParam(r, "projectID"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProjectOwned(r.Context(), chi.URLParam(r, "projectID"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	conv, err := s.store.CreateConversation(r.Context(), project.ID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProjectOwned(r.Context(), chi.URLParam(r, "projectID"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	convs, err := s.store.ListConversations(r.Context(), project.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.GetProjectOwned(r.Context(), conv.ProjectID, userID(r)); err != nil {
		writeError(w, err)
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleSendMessage is the pipeline entry point: cancel whatever the project
// is still processing, take the project lease, persist the user/assistant
// message pair, and enqueue the durable job.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID      string `json:"projectId"`
		ConversationID string `json:"conversationId"`
		Message        string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}
	project, err := s.store.GetProjectOwned(r.Context(), req.ProjectID, userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	conv, err := s.store.GetConversation(r.Context(), req.ConversationID)
	if err != nil {
		writeError(w, err)
		return
	}
	if conv.ProjectID != project.ID {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "conversation is not in this project"})
		return
	}

	// One run per project: every still-processing message is cancelled
	// before the new one is accepted.
	processing, err := s.store.ListProcessing(r.Context(), project.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, m := range processing {
		logging.UserLog("cancelling in-flight message %s for project %s", m.ID, project.ID)
		s.engine.Cancel(m.ID)
		// Flip the status here as well: a placeholder orphaned by a crash
		// has no job left to finalize it. The job finalizer only touches
		// still-processing messages, so the two paths compose.
		if err := s.store.UpdateMessageStatus(r.Context(), m.ID, store.StatusCancelled); err != nil {
			writeError(w, err)
			return
		}
	}

	// Steal rather than acquire: the displaced run is already cancelled
	// above and its token can no longer release the lease we now hold.
	token := uuid.NewString()
	s.engine.Lease().Steal(project.ID, token)

	userMsg, err := s.store.CreateMessage(r.Context(), project.ID, conv.ID,
		store.RoleUser, req.Message, store.StatusCompleted)
	if err != nil {
		s.engine.Lease().Release(project.ID, token)
		writeError(w, err)
		return
	}
	assistantMsg, err := s.store.CreateMessage(r.Context(), project.ID, conv.ID,
		store.RoleAssistant, "", store.StatusProcessing)
	if err != nil {
		s.engine.Lease().Release(project.ID, token)
		writeError(w, err)
		return
	}

	job, err := s.engine.Enqueue(r.Context(), engine.Event{
		MessageID:      assistantMsg.ID,
		ProjectID:      project.ID,
		ConversationID: conv.ID,
		Message:        req.Message,
	}, token)
	if err != nil {
		s.engine.Lease().Release(project.ID, token)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":            job.ID,
		"userMessage":      userMsg,
		"assistantMessage": assistantMsg,
	})
}

func (s *Server) handleCancelMessage(w http.ResponseWriter, r *http.Request) {
	var req engine.CancelEvent
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MessageID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "messageId is required"})
		return
	}
	msg, err := s.store.GetMessage(r.Context(), req.MessageID)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.GetProjectOwned(r.Context(), msg.ProjectID, userID(r)); err != nil {
		writeError(w, err)
		return
	}
	s.engine.Cancel(msg.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}
