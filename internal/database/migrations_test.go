package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n); err != nil {
		t.Fatalf("Failed to query sqlite_master: %v", err)
	}
	return n > 0
}

func TestInitialize_FreshStore(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	if err := Initialize(ctx, db, zerolog.Nop()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for _, table := range []string{"schema_version", "trades", "positions", "accounts", "trade_daily_summary", "import_error_log", "import_run"} {
		if !tableExists(t, db, table) {
			t.Errorf("Expected table %s to exist", table)
		}
	}

	version, err := SchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != LatestVersion() {
		t.Errorf("Expected version %d, got %d", LatestVersion(), version)
	}

	t.Run("second run is a no-op", func(t *testing.T) {
		if err := Initialize(ctx, db, zerolog.Nop()); err != nil {
			t.Fatalf("Second Initialize failed: %v", err)
		}
		var rows int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
			t.Fatal(err)
		}
		if rows != 1 {
			t.Errorf("Expected one version row, got %d", rows)
		}
	})
}

func TestSchemaVersion_Uninitialized(t *testing.T) {
	version, err := SchemaVersion(context.Background(), openMemory(t))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if version != 0 {
		t.Errorf("Expected version 0, got %d", version)
	}
}

// TestInitialize_UpgradesOldStore starts from a trades table that predates every
// migration and checks existing rows survive the upgrade.
func TestInitialize_UpgradesOldStore(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	setup := []string{
		`CREATE TABLE trades (id TEXT PRIMARY KEY, trade_date TEXT, symbol TEXT, quantity REAL, currency TEXT)`,
		`INSERT INTO trades (id, trade_date, symbol, quantity, currency) VALUES ('legacy-1', '2024-03-01', 'AAPL', 10, 'USD')`,
	}
	for _, stmt := range setup {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}

	if err := Initialize(ctx, db, zerolog.Nop()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	var symbol, broker string
	var netAmount float64
	err := db.QueryRow(`SELECT symbol, broker, net_amount FROM trades WHERE id = 'legacy-1'`).Scan(&symbol, &broker, &netAmount)
	if err != nil {
		t.Fatalf("Expected legacy row to be readable, got %v", err)
	}
	if symbol != "AAPL" || broker != "unknown" || netAmount != 0 {
		t.Errorf("Unexpected legacy row: symbol=%s broker=%s net=%v", symbol, broker, netAmount)
	}

	var count int
	if err := db.QueryRow(`SELECT trade_count FROM trade_daily_summary WHERE trade_date = '2024-03-01'`).Scan(&count); err != nil {
		t.Fatalf("Expected backfilled daily summary, got %v", err)
	}
	if count != 1 {
		t.Errorf("Expected trade_count 1, got %d", count)
	}

	version, _ := SchemaVersion(ctx, db)
	if version != LatestVersion() {
		t.Errorf("Expected version %d, got %d", LatestVersion(), version)
	}
}

func TestInitialize_FailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	steps := append([]Migration{}, migrations...)
	steps = append(steps, Migration{
		Version: LatestVersion() + 1,
		Name:    "broken",
		Statements: []string{
			`CREATE TABLE probe (x INTEGER)`,
			`THIS IS NOT SQL`,
		},
	})

	err := migrate(ctx, db, zerolog.Nop(), steps)
	if !errors.Is(err, apperrors.ErrMigrationFailed) {
		t.Fatalf("Expected ErrMigrationFailed, got %v", err)
	}

	if tableExists(t, db, "probe") {
		t.Error("Expected partial migration to be rolled back")
	}
	if tableExists(t, db, "trades") {
		t.Error("Expected base tables of the failed run to be rolled back")
	}
	version, err := SchemaVersion(ctx, db)
	if err != nil || version != 0 {
		t.Errorf("Expected version 0 after failure, got %d (%v)", version, err)
	}
}

func TestInitialize_SchemaTooNew(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	if err := Initialize(ctx, db, zerolog.Nop()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, err := db.Exec(`UPDATE schema_version SET version = ?`, LatestVersion()+5); err != nil {
		t.Fatal(err)
	}

	err := Initialize(ctx, db, zerolog.Nop())
	if !errors.Is(err, apperrors.ErrSchemaTooNew) {
		t.Fatalf("Expected ErrSchemaTooNew, got %v", err)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	if err := Initialize(ctx, db, zerolog.Nop()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO accounts (account_id) VALUES ('U1')`); err != nil {
		t.Fatal(err)
	}

	if err := Reset(ctx, db, zerolog.Nop()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		t.Fatalf("Expected accounts table after reset, got %v", err)
	}
	if n != 0 {
		t.Errorf("Expected empty accounts after reset, got %d", n)
	}
	version, _ := SchemaVersion(ctx, db)
	if version != LatestVersion() {
		t.Errorf("Expected version %d after reset, got %d", LatestVersion(), version)
	}
}
