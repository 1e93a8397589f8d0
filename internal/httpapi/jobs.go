package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/shrimp/shrimp/internal/agent"
	"github.com/shrimp/shrimp/pkg/models"
)

type jobRequest struct {
	Message string             `json:"message"`
	Model   string             `json:"model"`
	Trigger models.TriggerKind `json:"trigger"`
	Payload string             `json:"payload"`
}

// handleJobs implements GET /api/jobs and POST /api/jobs, the latter
// invoking the trigger-run executor (4.F) and returning
// {run, conversationId, finalResult, resultPreview}.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		runs, err := s.Orchestrator.Store.ListTriggerRuns(r.Context(), 50)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	case http.MethodPost:
		var req jobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, models.WrapError(models.KindBadRequest, err))
			return
		}
		if req.Trigger == "" {
			req.Trigger = models.TriggerAPI
		}
		result, err := s.Orchestrator.RunTrigger(r.Context(), agent.TriggerRunInput{
			Message: req.Message,
			Model:   req.Model,
			Trigger: req.Trigger,
			Payload: req.Payload,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"run":            result.Run,
			"conversationId": result.ConversationID,
			"finalResult":    result.FinalResult,
			"resultPreview":  result.ResultPreview,
		})
	default:
		writeMethodNotAllowed(w)
	}
}
