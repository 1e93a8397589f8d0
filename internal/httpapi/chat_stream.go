package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shrimp/shrimp/internal/agent"
	"github.com/shrimp/shrimp/pkg/models"
)

type chatStreamRequest struct {
	ConversationID   string              `json:"conversationId"`
	Message          string              `json:"message"`
	Model            string              `json:"model"`
	ReplyToMessageID string              `json:"replyToMessageId"`
	Attachments      []models.Attachment `json:"attachments"`
}

// handleChatStream implements POST /api/chat/stream: runs one turn and
// relays every orchestrator event as an SSE frame, terminated by a literal
// "data: [DONE]\n\n" frame once the turn settles (success or error).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.WrapError(models.KindBadRequest, err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, models.NewError(models.KindIoError, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := agent.EventSinkFunc(func(evt models.TurnEvent) {
		writeSSEFrame(w, evt)
		flusher.Flush()
	})

	ctx := r.Context()
	_, err := s.Orchestrator.RunTurn(ctx, agent.RunTurnInput{
		ConversationID:   req.ConversationID,
		Message:          req.Message,
		Model:            req.Model,
		ReplyToMessageID: req.ReplyToMessageID,
		Attachments:      req.Attachments,
	}, sink)
	if err != nil {
		_, message := classify(err)
		writeSSEFrame(w, models.TurnEvent{Type: models.EventError, Error: message})
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSEFrame(w http.ResponseWriter, evt models.TurnEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
