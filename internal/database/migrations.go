package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
)

// Migration is one forward-only schema step. Statements run in order inside the
// migration transaction; an ADD COLUMN for a column that already exists is skipped.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// migrations must stay ordered by version and may only ever be appended to.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "trade ledger columns",
		Statements: []string{
			`ALTER TABLE trades ADD COLUMN import_timestamp DATETIME NOT NULL DEFAULT '1970-01-01T00:00:00Z'`,
			`ALTER TABLE trades ADD COLUMN broker TEXT NOT NULL DEFAULT 'unknown'`,
			`ALTER TABLE trades ADD COLUMN account_id TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE trades ADD COLUMN trade_date TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE trades ADD COLUMN settle_date TEXT`,
			`ALTER TABLE trades ADD COLUMN symbol TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE trades ADD COLUMN description TEXT`,
			`ALTER TABLE trades ADD COLUMN asset_category TEXT NOT NULL DEFAULT 'unknown'`,
			`ALTER TABLE trades ADD COLUMN action TEXT`,
			`ALTER TABLE trades ADD COLUMN quantity REAL NOT NULL DEFAULT 0`,
			`ALTER TABLE trades ADD COLUMN trade_price REAL NOT NULL DEFAULT 0`,
			`ALTER TABLE trades ADD COLUMN currency TEXT NOT NULL DEFAULT 'USD'`,
			`ALTER TABLE trades ADD COLUMN proceeds REAL`,
			`ALTER TABLE trades ADD COLUMN cost REAL`,
			`ALTER TABLE trades ADD COLUMN commission REAL`,
			`ALTER TABLE trades ADD COLUMN fees REAL`,
			`ALTER TABLE trades ADD COLUMN net_amount REAL NOT NULL DEFAULT 0`,
			`ALTER TABLE trades ADD COLUMN open_close TEXT`,
			`ALTER TABLE trades ADD COLUMN cost_basis REAL`,
			`ALTER TABLE trades ADD COLUMN realized_pl REAL`,
			`ALTER TABLE trades ADD COLUMN option_symbol TEXT`,
			`ALTER TABLE trades ADD COLUMN expiry_date TEXT`,
			`ALTER TABLE trades ADD COLUMN strike_price REAL`,
			`ALTER TABLE trades ADD COLUMN put_call TEXT`,
			`ALTER TABLE trades ADD COLUMN multiplier REAL`,
			`ALTER TABLE trades ADD COLUMN order_id TEXT`,
			`ALTER TABLE trades ADD COLUMN execution_id TEXT`,
			`ALTER TABLE trades ADD COLUMN notes TEXT`,
			`CREATE INDEX IF NOT EXISTS idx_trades_trade_date ON trades(trade_date)`,
			`CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id)`,
			`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		},
	},
	{
		Version: 2,
		Name:    "validation flags and audit payload",
		Statements: []string{
			`ALTER TABLE trades ADD COLUMN validation_flags TEXT`,
			`ALTER TABLE trades ADD COLUMN raw_data TEXT`,
			`ALTER TABLE import_error_log ADD COLUMN context TEXT`,
		},
	},
	{
		Version: 3,
		Name:    "import run tracking",
		Statements: []string{
			`ALTER TABLE trades ADD COLUMN import_id TEXT`,
			`ALTER TABLE import_error_log ADD COLUMN import_id TEXT`,
			`CREATE INDEX IF NOT EXISTS idx_import_error_log_import ON import_error_log(import_id)`,
			`CREATE INDEX IF NOT EXISTS idx_trades_open_close ON trades(open_close)`,
		},
	},
	{
		Version: 4,
		Name:    "daily summary backfill",
		Statements: []string{
			`ALTER TABLE trade_daily_summary ADD COLUMN commissions REAL NOT NULL DEFAULT 0`,
			`INSERT INTO trade_daily_summary (trade_date, account_id, trade_count, realized_pl, net_amount, commissions)
			 SELECT substr(trade_date, 1, 10), COALESCE(account_id, ''), COUNT(*),
			        COALESCE(SUM(realized_pl), 0), COALESCE(SUM(net_amount), 0), COALESCE(SUM(commission), 0)
			 FROM trades
			 WHERE trade_date <> ''
			 GROUP BY substr(trade_date, 1, 10), COALESCE(account_id, '')
			 ON CONFLICT(trade_date, account_id) DO UPDATE SET
			   trade_count = excluded.trade_count,
			   realized_pl = excluded.realized_pl,
			   net_amount = excluded.net_amount,
			   commissions = excluded.commissions`,
		},
	},
}

// LatestVersion is the schema version this build migrates to.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// Initialize creates missing tables and applies pending migrations. Everything runs in one
// transaction: on failure nothing is applied and the version marker is unchanged.
// Running it again on an up-to-date store is a no-op.
func Initialize(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	return migrate(ctx, db, log, migrations)
}

func migrate(ctx context.Context, db *sql.DB, log zerolog.Logger, steps []Migration) error {
	log = log.With().Str("component", "migrations").Logger()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", apperrors.ErrMigrationFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, stmt := range baseTables {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create tables: %w", apperrors.ErrMigrationFailed, err)
		}
	}

	current, err := readVersion(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: read schema version: %w", apperrors.ErrMigrationFailed, err)
	}

	latest := 0
	if len(steps) > 0 {
		latest = steps[len(steps)-1].Version
	}
	if current > latest {
		return fmt.Errorf("%w: store is at version %d, this build supports %d", apperrors.ErrSchemaTooNew, current, latest)
	}

	applied := current
	for _, m := range steps {
		if m.Version <= current {
			continue
		}
		for _, stmt := range m.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				if isDuplicateColumn(err) {
					continue
				}
				log.Error().Err(err).Int("version", m.Version).Str("migration", m.Name).Msg("migration failed, rolling back")
				return fmt.Errorf("%w: version %d (%s): %w", apperrors.ErrMigrationFailed, m.Version, m.Name, err)
			}
		}
		applied = m.Version
		log.Info().Int("version", m.Version).Str("migration", m.Name).Msg("migration applied")
	}

	if applied != current || !hasVersionRow(ctx, tx) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schema_version (id, version, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at
		`, applied); err != nil {
			return fmt.Errorf("%w: write schema version: %w", apperrors.ErrMigrationFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", apperrors.ErrMigrationFailed, err)
	}
	return nil
}

// SchemaVersion returns the version recorded in the store, 0 for an uninitialized store.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id = 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) || isNoSuchTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Reset drops every table and re-initializes an empty store.
func Reset(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, stmt := range dropStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}

	log.Warn().Msg("database reset, recreating schema")
	return Initialize(ctx, db, log)
}

func readVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var version int
	err := tx.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id = 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

func hasVersionRow(ctx context.Context, tx *sql.Tx) bool {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&n); err != nil {
		return false
	}
	return n > 0
}

func isDuplicateColumn(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such table")
}
