package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

// PositionRepository provides data access methods for the positions table.
type PositionRepository struct {
	db  *sql.DB
	tx  *sql.Tx
	log zerolog.Logger
}

// NewPositionRepository creates a new PositionRepository with the provided database connection.
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{db: db, log: log.With().Str("component", "position_repository").Logger()}
}

// WithTx returns a new PositionRepository scoped to the provided transaction.
func (r *PositionRepository) WithTx(tx *sql.Tx) *PositionRepository {
	return &PositionRepository{db: r.db, tx: tx, log: r.log}
}

// getQuerier returns the active transaction if one is set, otherwise the database connection.
func (r *PositionRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InsertPositions upserts positions keyed by (account, symbol) in one transaction and
// returns how many were written. The first failing row rolls back the whole batch.
func (r *PositionRepository) InsertPositions(ctx context.Context, positions []model.Position) (int, error) {
	if len(positions) == 0 {
		return 0, nil
	}

	written := 0
	err := runInTx(ctx, r.db, r.tx, func(tx *sql.Tx) error {
		written = 0
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO positions (
				id, account_id, symbol, description, asset_category, currency, quantity, multiplier,
				cost_price, cost_basis, market_price, market_value, unrealized_pl, realized_pl,
				put_call, strike, expiry, statement_date, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(account_id, symbol) DO UPDATE SET
				description = excluded.description,
				asset_category = excluded.asset_category,
				currency = excluded.currency,
				quantity = excluded.quantity,
				multiplier = excluded.multiplier,
				cost_price = excluded.cost_price,
				cost_basis = excluded.cost_basis,
				market_price = excluded.market_price,
				market_value = excluded.market_value,
				unrealized_pl = excluded.unrealized_pl,
				realized_pl = excluded.realized_pl,
				put_call = excluded.put_call,
				strike = excluded.strike,
				expiry = excluded.expiry,
				statement_date = excluded.statement_date,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare position upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range positions {
			category := p.AssetCategory
			if category == "" {
				category = model.AssetUnknown
			}
			multiplier := p.Multiplier
			if multiplier == 0 {
				multiplier = 1
			}
			_, err := stmt.ExecContext(ctx,
				p.ID, p.AccountID, p.Symbol, nullString(p.Description), string(category), p.Currency,
				p.Quantity, multiplier, p.CostPrice, p.CostBasis, p.MarketPrice, p.MarketValue,
				p.UnrealizedPL, p.RealizedPL, nullString(p.PutCall), nullFloat(p.Strike), nullDate(p.Expiry),
				p.StatementDate.UTC().Format(dateLayout),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert position %s: %w", p.Symbol, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.log.Debug().Int("positions", written).Msg("positions upserted")
	return written, nil
}

// GetPositions lists positions ordered by symbol. An empty accountID returns every account.
func (r *PositionRepository) GetPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	query := `
		SELECT id, account_id, symbol, description, asset_category, currency, quantity, multiplier,
			cost_price, cost_basis, market_price, market_value, unrealized_pl, realized_pl,
			put_call, strike, expiry, statement_date
		FROM positions
	`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY account_id ASC, symbol ASC`

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions table: %w", err)
	}
	defer rows.Close()

	positions := []model.Position{}
	for rows.Next() {
		var p model.Position
		var category, statementDate string
		var description, putCall, expiry sql.NullString
		var costPrice, costBasis, marketPrice, marketValue, unrealized, realized, strike sql.NullFloat64

		if err := rows.Scan(
			&p.ID, &p.AccountID, &p.Symbol, &description, &category, &p.Currency, &p.Quantity, &p.Multiplier,
			&costPrice, &costBasis, &marketPrice, &marketValue, &unrealized, &realized,
			&putCall, &strike, &expiry, &statementDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		p.AssetCategory = model.AssetCategory(category)
		p.Description = description.String
		p.PutCall = putCall.String
		p.CostPrice = costPrice.Float64
		p.CostBasis = costBasis.Float64
		p.MarketPrice = marketPrice.Float64
		p.MarketValue = marketValue.Float64
		p.UnrealizedPL = unrealized.Float64
		p.RealizedPL = realized.Float64
		p.Strike = floatPtr(strike)
		if p.Expiry, err = datePtr(expiry); err != nil {
			return nil, err
		}
		if p.StatementDate, err = ParseTime(statementDate); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}
