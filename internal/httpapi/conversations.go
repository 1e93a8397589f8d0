package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shrimp/shrimp/pkg/models"
)

// handleConversations implements GET /api/conversations and
// POST /api/conversations (creates a blank conversation with the default model).
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		convs, err := s.Orchestrator.Store.ListConversations(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	case http.MethodPost:
		conv, err := s.Orchestrator.Store.CreateConversation(r.Context(), s.Orchestrator.DefaultModel, models.DefaultConversationTitle)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	default:
		writeMethodNotAllowed(w)
	}
}

type renameRequest struct {
	Title string `json:"title"`
}

// handleConversationByID implements GET/PATCH /api/conversations/:id.
func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	if id == "" {
		writeError(w, models.NewError(models.KindBadRequest, "conversation id is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		conv, err := s.Orchestrator.Store.GetConversation(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		messages, err := s.Orchestrator.Store.ListMessages(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		toolCalls, err := s.Orchestrator.Store.ListToolCalls(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"conversation": conv,
			"messages":     messages,
			"toolCalls":    toolCalls,
		})
	case http.MethodPatch:
		var req renameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, models.WrapError(models.KindBadRequest, err))
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			writeError(w, models.NewError(models.KindBadRequest, "title must not be empty"))
			return
		}
		conv, err := s.Orchestrator.Store.RenameConversation(r.Context(), id, req.Title)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	default:
		writeMethodNotAllowed(w)
	}
}
