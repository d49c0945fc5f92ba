package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/modai-platform/message-service/internal/apperr"
	"github.com/modai-platform/message-service/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps an error from the service layer onto an HTTP
// status. Unrecognized errors become 500 with the fallback message so
// internals never leak to clients.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, fallback string) {
	switch {
	case apperr.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case apperr.IsInvalidState(err):
		writeError(w, http.StatusConflict, err.Error())
	case apperr.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case apperr.IsLimitExceeded(err):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
