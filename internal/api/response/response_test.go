package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/validation"
)

func TestRespondServiceError(t *testing.T) {
	fallback := errors.New("operation failed")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &validation.Error{Fields: map[string]string{"limit": "bad"}}, http.StatusBadRequest},
		{"date range", apperrors.ErrInvalidDateRange, http.StatusBadRequest},
		{"not found wrapped", fmt.Errorf("lookup: %w", apperrors.ErrTradeNotFound), http.StatusNotFound},
		{"run not found", apperrors.ErrImportRunNotFound, http.StatusNotFound},
		{"busy", apperrors.ErrImportInProgress, http.StatusConflict},
		{"reset disabled", apperrors.ErrResetDisabled, http.StatusForbidden},
		{"unknown broker", fmt.Errorf("%w: header", apperrors.ErrBrokerUndetected), http.StatusUnprocessableEntity},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondServiceError(w, tt.err, fallback)

			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
			var body ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error == "" {
				t.Errorf("Expected error body, got %q (%v)", w.Body.String(), err)
			}
		})
	}
}

func TestRespondJSON_NoContent(t *testing.T) {
	w := httptest.NewRecorder()
	RespondJSON(w, http.StatusNoContent, nil)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("Expected empty 204, got %d %q", w.Code, w.Body.String())
	}
}
