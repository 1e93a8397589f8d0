package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/shrimp/shrimp/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

// writeError maps a models.Error's Kind to an HTTP status code, per the
// error taxonomy's propagation policy: validation and not-found kinds are
// client errors, storage/upstream failures are server errors.
func writeError(w http.ResponseWriter, err error) {
	kind, message := classify(err)
	status := http.StatusInternalServerError
	switch kind {
	case models.KindBadRequest, models.KindInvalidRange:
		status = http.StatusBadRequest
	case models.KindUnknownSession, models.KindFileNotFound:
		status = http.StatusNotFound
	case models.KindSessionBusy:
		status = http.StatusConflict
	case models.KindUpstreamError:
		status = http.StatusBadGateway
	case models.KindStorageError, models.KindIoError, models.KindToolError:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func classify(err error) (models.Kind, string) {
	var tagged *models.Error
	if as, ok := err.(*models.Error); ok {
		tagged = as
	}
	if tagged == nil {
		return "", err.Error()
	}
	return tagged.Kind, tagged.Error()
}
