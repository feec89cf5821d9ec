package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

const defaultRunLimit = 50

// ImportRunRepository provides data access methods for the import_run table.
type ImportRunRepository struct {
	db *sql.DB
}

// NewImportRunRepository creates a new ImportRunRepository with the provided database connection.
func NewImportRunRepository(db *sql.DB) *ImportRunRepository {
	return &ImportRunRepository{db: db}
}

// CreateRun records the start of an import.
func (r *ImportRunRepository) CreateRun(ctx context.Context, s model.ImportSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_run (id, file_name, format, broker, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.FileName, s.Format, nullString(string(s.Broker)), s.Status, formatTimestamp(s.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert import run: %w", err)
	}
	return nil
}

// CompleteRun stores the final counts and status of an import.
func (r *ImportRunRepository) CompleteRun(ctx context.Context, s model.ImportSummary) error {
	var completedAt any
	if s.CompletedAt != nil {
		completedAt = formatTimestamp(*s.CompletedAt)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE import_run SET
			format = ?, broker = ?, status = ?, rows_processed = ?, inserted = ?, duplicates = ?,
			anomalies = ?, positions = ?, error_count = ?, warning_count = ?, message = ?, completed_at = ?
		WHERE id = ?
	`,
		s.Format, nullString(string(s.Broker)), s.Status, s.RowsProcessed, s.Inserted, s.Duplicates,
		s.Anomalies, s.Positions, len(s.Errors), len(s.Warnings), nullString(s.Message), completedAt,
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update import run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.ErrImportRunNotFound
	}
	return nil
}

const selectRunQuery = `
	SELECT id, file_name, format, broker, status, rows_processed, inserted, duplicates,
		anomalies, positions, message, started_at, completed_at
	FROM import_run
`

// GetRuns lists the most recent import runs, newest first. Errors and warnings are not
// loaded; they live in import_error_log.
func (r *ImportRunRepository) GetRuns(ctx context.Context, limit int) ([]model.ImportSummary, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	rows, err := r.db.QueryContext(ctx, selectRunQuery+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import_run table: %w", err)
	}
	defer rows.Close()

	runs := []model.ImportSummary{}
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import runs: %w", err)
	}
	return runs, nil
}

// GetRun retrieves one import run. Returns ErrImportRunNotFound if it does not exist.
func (r *ImportRunRepository) GetRun(ctx context.Context, id string) (model.ImportSummary, error) {
	s, err := scanRun(r.db.QueryRowContext(ctx, selectRunQuery+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ImportSummary{}, apperrors.ErrImportRunNotFound
	}
	return s, err
}

func scanRun(s rowScanner) (model.ImportSummary, error) {
	var run model.ImportSummary
	var broker, message, completedAt sql.NullString
	var startedAt string
	err := s.Scan(
		&run.ID, &run.FileName, &run.Format, &broker, &run.Status, &run.RowsProcessed, &run.Inserted,
		&run.Duplicates, &run.Anomalies, &run.Positions, &message, &startedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return run, err
	}
	if err != nil {
		return run, fmt.Errorf("failed to scan import run: %w", err)
	}
	run.Broker = model.Broker(broker.String)
	run.Message = message.String
	run.StartedAt = parseSQLiteTimestamp(startedAt)
	if completedAt.Valid {
		t := parseSQLiteTimestamp(completedAt.String)
		run.CompletedAt = &t
	}
	run.Errors = []model.ValidationIssue{}
	run.Warnings = []model.ValidationIssue{}
	return run, nil
}
