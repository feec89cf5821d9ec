package testutil

import (
	"context"
	"database/sql"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/ibkr"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/service"
)

// NewTestImportService creates an ImportService over db with default options.
// The ledger service, when given, is invalidated after every import.
func NewTestImportService(t *testing.T, db *sql.DB, ledger *service.LedgerService) *service.ImportService {
	t.Helper()

	opts := service.ImportOptions{ChunkSize: 2}
	if ledger != nil {
		opts.Invalidator = ledger
	}
	return service.NewImportService(db, opts, zerolog.Nop())
}

// NewTestLedgerService creates a LedgerService over db storing raw rows in clear.
func NewTestLedgerService(t *testing.T, db *sql.DB) *service.LedgerService {
	t.Helper()

	return service.NewLedgerService(db, nil, zerolog.Nop())
}

// NewTestSystemService creates a SystemService over db.
func NewTestSystemService(t *testing.T, db *sql.DB, allowReset bool) *service.SystemService {
	t.Helper()

	ledger := NewTestLedgerService(t, db)
	return service.NewSystemService(db, NewTestImportService(t, db, ledger), ledger, allowReset, zerolog.Nop())
}

// MockFlexClient is a mock implementation of ibkr.Client for testing.
// It returns a predefined report instead of calling the Flex web service.
type MockFlexClient struct {
	// MockReport is the report to return from FetchStatement
	MockReport ibkr.Report
	// MockError is the error to return from FetchStatement
	MockError error
	// FetchCount tracks how many times FetchStatement was called
	FetchCount int
}

// NewMockFlexClient creates a mock Flex client serving csv as the statement.
func NewMockFlexClient(csv string) *MockFlexClient {
	return &MockFlexClient{MockReport: ibkr.Report{
		ReferenceCode: "TESTREF",
		FileName:      "flex-test.csv",
		Data:          []byte(csv),
	}}
}

// FetchStatement returns the configured report or error.
func (m *MockFlexClient) FetchStatement(_ context.Context) (ibkr.Report, error) {
	m.FetchCount++
	if m.MockError != nil {
		return ibkr.Report{}, m.MockError
	}
	return m.MockReport, nil
}

// WithError configures the mock to return the specified error.
func (m *MockFlexClient) WithError(err error) *MockFlexClient {
	m.MockError = err
	return m
}

// MakeID generates a UUID string for use in tests.
//
// Example usage:
//
//	id := testutil.MakeID()
//	// Returns: "550e8400-e29b-41d4-a716-446655440000"
func MakeID() string {
	return uuid.New().String()
}

// MakeSymbol generates a stock ticker symbol for testing.
//
// Example usage:
//
//	symbol := testutil.MakeSymbol("AAPL")
//	// Returns: "AAPL1A2B"
func MakeSymbol(base string) string {
	if base == "" {
		base = "TEST"
	}
	return base + randomAlphanumeric(4)
}

// randomAlphanumeric generates a random alphanumeric string of specified length.
func randomAlphanumeric(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		//nolint:gosec // G404: Using math/rand for test data generation is acceptable
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}
