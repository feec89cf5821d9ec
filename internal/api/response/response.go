// Package response provides utilities for sending consistent HTTP responses.
// It includes helpers for JSON responses and standardized error responses.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/validation"
)

// ErrorResponse represents a structured error response returned by the API.
// The Details field is optional and can contain additional context about the error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
// Sets the Content-Type header to application/json and writes the status code.
// If data is nil, only the status code is sent (useful for 204 No Content).
// Logs encoding errors but does not fail the response.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Warn().Err(err).Msg("failed to encode JSON response")
		}
	}
}

// RespondError sends a structured error response with the given status code.
// The message should be a user-friendly error description.
// The details parameter can be an error string, additional context, or nil.
//
// Example:
//
//	response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
//	response.RespondError(w, http.StatusNotFound, "resource not found", "")
func RespondError(w http.ResponseWriter, status int, message string, details any) {
	RespondJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// RespondServiceError maps err onto a status code. Known sentinels keep their own message;
// anything else is reported as fallback with a 500.
func RespondServiceError(w http.ResponseWriter, err error, fallback error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		RespondError(w, http.StatusBadRequest, "validation failed", verr.Fields)
	case errors.Is(err, apperrors.ErrInvalidDateRange), errors.Is(err, apperrors.ErrInvalidUUID):
		RespondError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, apperrors.ErrTradeNotFound),
		errors.Is(err, apperrors.ErrAccountNotFound),
		errors.Is(err, apperrors.ErrImportRunNotFound):
		RespondError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, apperrors.ErrImportInProgress):
		RespondError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, apperrors.ErrResetDisabled):
		RespondError(w, http.StatusForbidden, err.Error(), "")
	case errors.Is(err, apperrors.ErrEmptyInput),
		errors.Is(err, apperrors.ErrNoHeader),
		errors.Is(err, apperrors.ErrBrokerUndetected),
		errors.Is(err, apperrors.ErrUnsupportedFormat):
		RespondError(w, http.StatusUnprocessableEntity, fallback.Error(), err.Error())
	default:
		RespondError(w, http.StatusInternalServerError, fallback.Error(), err.Error())
	}
}
