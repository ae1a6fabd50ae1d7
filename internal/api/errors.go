package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jbweber/homelab/policyd/internal/service"
	"github.com/jbweber/homelab/policyd/internal/validation"
)

// ErrorResponse is the body of every non-2xx JSON response.
// Fields is set only for validation failures and maps JSON field names to messages.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps a service or validation error to its HTTP status.
// Anything unrecognised is a storage failure and is logged with the request's trace id.
func writeServiceError(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error, failure string) {
	var notFound *service.NotFoundError
	if errors.As(err, &notFound) {
		writeError(logger, w, http.StatusNotFound, notFound.Error())
		return
	}

	var invalid *validation.Error
	if errors.As(err, &invalid) {
		writeJSON(logger, w, http.StatusBadRequest, ErrorResponse{
			Error:  invalid.Error(),
			Fields: invalid.FieldMap(),
		})
		return
	}

	logger.Error(failure,
		zap.String("trace_id", TraceIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(logger, w, http.StatusInternalServerError, failure)
}
