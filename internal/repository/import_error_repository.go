package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

const defaultErrorLimit = 500

// ImportErrorRepository provides data access methods for the import_error_log table.
type ImportErrorRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewImportErrorRepository creates a new ImportErrorRepository with the provided database connection.
func NewImportErrorRepository(db *sql.DB) *ImportErrorRepository {
	return &ImportErrorRepository{db: db}
}

// WithTx returns a new ImportErrorRepository scoped to the provided transaction.
func (r *ImportErrorRepository) WithTx(tx *sql.Tx) *ImportErrorRepository {
	return &ImportErrorRepository{db: r.db, tx: tx}
}

// getQuerier returns the active transaction if one is set, otherwise the database connection.
func (r *ImportErrorRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// LogErrors writes entries in one transaction and returns how many were written.
func (r *ImportErrorRepository) LogErrors(ctx context.Context, entries []model.ImportErrorLog) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	err := runInTx(ctx, r.db, r.tx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO import_error_log (import_id, trade_id, kind, code, message, context, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare error log insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			createdAt := e.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx,
				nullString(e.ImportID), nullString(e.TradeID), e.Kind, e.Code, e.Message,
				nullString(e.Context), formatTimestamp(createdAt),
			); err != nil {
				return fmt.Errorf("failed to insert error log entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// GetErrors lists log entries matching filter, newest first.
func (r *ImportErrorRepository) GetErrors(ctx context.Context, filter model.ImportErrorFilter) ([]model.ImportErrorLog, error) {
	var conds []string
	var args []any
	if filter.ImportID != "" {
		conds = append(conds, "import_id = ?")
		args = append(args, filter.ImportID)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filter.Kind)
	}

	query := `SELECT id, import_id, trade_id, kind, code, message, context, created_at FROM import_error_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultErrorLimit
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import_error_log table: %w", err)
	}
	defer rows.Close()

	entries := []model.ImportErrorLog{}
	for rows.Next() {
		var e model.ImportErrorLog
		var importID, tradeID, errContext sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &importID, &tradeID, &e.Kind, &e.Code, &e.Message, &errContext, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan error log entry: %w", err)
		}
		e.ImportID = importID.String
		e.TradeID = tradeID.String
		e.Context = errContext.String
		e.CreatedAt = parseSQLiteTimestamp(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error log: %w", err)
	}
	return entries, nil
}
