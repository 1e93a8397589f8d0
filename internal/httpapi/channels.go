package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shrimp/shrimp/pkg/models"
)

type channelStartRequest struct {
	Channel string `json:"channel"`
}

// handleChannelsStatus implements GET /api/channels/status.
func (s *Server) handleChannelsStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	statuses := make([]any, 0, len(s.Channels))
	for _, adapter := range s.Channels {
		statuses = append(statuses, adapter.Status())
	}
	writeJSON(w, http.StatusOK, statuses)
}

// handleChannelsStart implements POST /api/channels/start with
// {channel: "telegram"|"whatsapp"|"all"}. A channel whose Status already
// reports Running is not started again and is reported as "already running".
func (s *Server) handleChannelsStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req channelStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.WrapError(models.KindBadRequest, err))
		return
	}

	targets := make([]string, 0, len(s.Channels))
	if req.Channel == "" || req.Channel == "all" {
		for name := range s.Channels {
			targets = append(targets, name)
		}
	} else {
		targets = append(targets, req.Channel)
	}

	results := make(map[string]string, len(targets))
	for _, name := range targets {
		adapter, exists := s.Channels[name]
		if !exists {
			results[name] = "unknown channel"
			continue
		}
		if adapter.Status().Running {
			results[name] = "already running"
			continue
		}
		if err := adapter.Start(context.Background()); err != nil {
			results[name] = err.Error()
			continue
		}
		results[name] = "started"
	}
	writeJSON(w, http.StatusOK, results)
}
