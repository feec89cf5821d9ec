package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

// AccountRepository provides data access methods for the accounts table.
type AccountRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewAccountRepository creates a new AccountRepository with the provided database connection.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// WithTx returns a new AccountRepository scoped to the provided transaction.
func (r *AccountRepository) WithTx(tx *sql.Tx) *AccountRepository {
	return &AccountRepository{db: r.db, tx: tx}
}

// getQuerier returns the active transaction if one is set, otherwise the database connection.
func (r *AccountRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// UpsertAccount inserts or replaces the account keyed by AccountID.
// Empty fields of a re-imported account do not overwrite stored values.
func (r *AccountRepository) UpsertAccount(ctx context.Context, a model.Account) error {
	if a.AccountID == "" {
		return errors.New("account id is required")
	}

	query := `
		INSERT INTO accounts (account_id, account_name, account_type, base_currency, balance, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_id) DO UPDATE SET
			account_name = COALESCE(excluded.account_name, accounts.account_name),
			account_type = COALESCE(excluded.account_type, accounts.account_type),
			base_currency = COALESCE(excluded.base_currency, accounts.base_currency),
			balance = COALESCE(excluded.balance, accounts.balance),
			updated_at = excluded.updated_at
	`
	_, err := r.getQuerier().ExecContext(ctx, query,
		a.AccountID,
		nullString(a.AccountName),
		nullString(a.AccountType),
		nullString(a.BaseCurrency),
		nullFloat(a.Balance),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// GetAccounts lists every account ordered by id.
func (r *AccountRepository) GetAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `
		SELECT account_id, account_name, account_type, base_currency, balance, updated_at
		FROM accounts
		ORDER BY account_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts table: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// GetAccount retrieves one account. Returns ErrAccountNotFound if it does not exist.
func (r *AccountRepository) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	row := r.getQuerier().QueryRowContext(ctx, `
		SELECT account_id, account_name, account_type, base_currency, balance, updated_at
		FROM accounts
		WHERE account_id = ?
	`, accountID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, apperrors.ErrAccountNotFound
	}
	return a, err
}

func scanAccount(s rowScanner) (model.Account, error) {
	var a model.Account
	var name, accountType, currency sql.NullString
	var balance sql.NullFloat64
	var updatedAt string
	if err := s.Scan(&a.AccountID, &name, &accountType, &currency, &balance, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan account: %w", err)
	}
	a.AccountName = name.String
	a.AccountType = accountType.String
	a.BaseCurrency = currency.String
	a.Balance = floatPtr(balance)
	a.UpdatedAt = parseSQLiteTimestamp(updatedAt)
	return a, nil
}
