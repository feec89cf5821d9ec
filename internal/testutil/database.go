package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/database"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/repository"
)

// SetupTestDB creates an in-memory SQLite database for testing.
// The schema is created by the same Initialize call the server runs at startup, so tests
// always see the migrated production schema.
// The database is automatically cleaned up when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // db is ready to use with schema created
//	}
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// In-memory database lives as long as its single connection
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		t.Fatalf("Failed to set pragma: %v", err)
	}

	if err := database.Initialize(context.Background(), db, zerolog.Nop()); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// SeedTrades stores trades directly through the trade repository, bypassing import
// runs, and fails the test unless every trade is inserted.
//
// Example usage:
//
//	testutil.SeedTrades(t, db, testutil.NewTrade().WithSymbol("AAPL").Build())
func SeedTrades(t *testing.T, db *sql.DB, trades ...model.Trade) {
	t.Helper()

	result, err := repository.NewTradeRepository(db, zerolog.Nop()).InsertNormalizedTrades(context.Background(), trades)
	if err != nil {
		t.Fatalf("Failed to seed trades: %v", err)
	}
	if result.Inserted != len(trades) {
		t.Fatalf("Expected %d seeded trades, %d inserted", len(trades), result.Inserted)
	}
}

// CountRows returns the number of rows in a table.
//
// Example usage:
//
//	count := testutil.CountRows(t, db, "trades")
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	//nolint:gosec // G202: table names come from test code
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}

	return count
}

// AssertRowCount asserts that a table has the expected number of rows.
//
// Example usage:
//
//	testutil.AssertRowCount(t, db, "trades", 2)
func AssertRowCount(t *testing.T, db *sql.DB, table string, expected int) {
	t.Helper()

	actual := CountRows(t, db, table)
	if actual != expected {
		t.Errorf("Expected %d rows in %s, got %d", expected, table, actual)
	}
}
