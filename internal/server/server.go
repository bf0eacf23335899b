package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"codeloft/internal/engine"
	"codeloft/internal/metrics"
	"codeloft/internal/store"
)

// Server assembles the HTTP API over the store and the workflow engine.
type Server struct {
	store  *store.Store
	engine *engine.Engine
}

// New builds a server.
func New(st *store.Store, eng *engine.Engine) *Server {
	return &Server{store: st, engine: eng}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticator)

		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects", s.handleListProjects)
		r.Get("/projects/{projectID}", s.handleGetProject)

		r.Post("/projects/{projectID}/conversations", s.handleCreateConversation)
		r.Get("/projects/{projectID}/conversations", s.handleListConversations)
		r.Get("/conversations/{conversationID}/messages", s.handleListMessages)

		r.Post("/messages", s.handleSendMessage)
		r.Post("/messages/cancel", s.handleCancelMessage)

		r.Get("/projects/{projectID}/files", s.handleListFiles)
		r.Get("/projects/{projectID}/files/children", s.handleListChildren)
		r.Post("/projects/{projectID}/files", s.handleCreateNode)
		r.Post("/projects/{projectID}/files/batch", s.handleCreateBatch)
		r.Get("/files/{fileID}", s.handleGetFile)
		r.Get("/files/{fileID}/path", s.handleFilePath)
		r.Put("/files/{fileID}/rename", s.handleRenameFile)
		r.Put("/files/{fileID}/content", s.handleUpdateFile)
		r.Delete("/files/{fileID}", s.handleDeleteFile)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
