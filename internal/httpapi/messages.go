package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shrimp/shrimp/pkg/models"
)

type editMessageRequest struct {
	Content string `json:"content"`
}

// handleMessageByID implements PATCH /api/messages/:id (edit content) and
// DELETE /api/messages/:id.
func (s *Server) handleMessageByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/messages/")
	if id == "" {
		writeError(w, models.NewError(models.KindBadRequest, "message id is required"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req editMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, models.WrapError(models.KindBadRequest, err))
			return
		}
		msg, err := s.Orchestrator.Store.UpdateMessageContent(r.Context(), id, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	case http.MethodDelete:
		if err := s.Orchestrator.Store.DeleteMessage(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}
