// Package httpapi exposes the tutoring gateway over HTTP: the chat and
// artifact endpoints, conversation management, session configuration,
// the integration registry, and the duplex voice WebSocket.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/classtide/omnitutor/pkg/artifact"
	"github.com/classtide/omnitutor/pkg/convo"
	"github.com/classtide/omnitutor/pkg/live"
	"github.com/classtide/omnitutor/pkg/registry"
	"github.com/classtide/omnitutor/pkg/tutor"
)

const maxUploadBytes = 32 << 20

// Server carries the handlers' collaborators.
type Server struct {
	tutor     *tutor.Service
	artifacts *artifact.Registry
	convos    *convo.Store
	live      *live.Manager
	config    *live.ConfigStore
	mcps      *registry.Registry
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// Config wires the server. All fields except Logger are required.
type Config struct {
	Tutor     *tutor.Service
	Artifacts *artifact.Registry
	Convos    *convo.Store
	Live      *live.Manager
	LiveConf  *live.ConfigStore
	MCPs      *registry.Registry
	Logger    *slog.Logger
}

// New builds the server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		tutor:     cfg.Tutor,
		artifacts: cfg.Artifacts,
		convos:    cfg.Convos,
		live:      cfg.Live,
		config:    cfg.LiveConf,
		mcps:      cfg.MCPs,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/files", s.handleListFiles)
	mux.HandleFunc("DELETE /api/files/{id}", s.handleDeleteFile)

	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /api/clear", s.handleClear)

	mux.HandleFunc("GET /config", s.handleGetConfig)
	mux.HandleFunc("POST /config", s.handlePostConfig)

	mux.HandleFunc("GET /api/mcps", s.handleListMCPs)
	mux.HandleFunc("POST /api/mcps", s.handleCreateMCP)
	mux.HandleFunc("PUT /api/mcps/{id}", s.handleUpdateMCP)
	mux.HandleFunc("PATCH /api/mcps/{id}/enable", s.handleEnableMCP)
	mux.HandleFunc("DELETE /api/mcps/{id}", s.handleDeleteMCP)

	mux.HandleFunc("GET /ws/{session_id}", s.handleWS)

	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
