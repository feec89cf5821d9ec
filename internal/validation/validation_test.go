package validation

import (
	"errors"
	"testing"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
)

func TestValidateUUID(t *testing.T) {
	if err := ValidateUUID("550e8400-e29b-41d4-a716-446655440000"); err != nil {
		t.Errorf("Expected valid UUID, got %v", err)
	}
	if err := ValidateUUID("nope"); !errors.Is(err, apperrors.ErrInvalidUUID) {
		t.Errorf("Expected ErrInvalidUUID, got %v", err)
	}
}

func TestError(t *testing.T) {
	var e Error
	if e.OrNil() != nil {
		t.Error("Expected nil for an empty error")
	}

	e.Add("start_date", "invalid date")
	e.Add("limit", "must be positive")
	if err := e.OrNil(); err == nil || err.Error() != "limit: must be positive; start_date: invalid date" {
		t.Errorf("Unexpected error text %v", err)
	}
}
