package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/secret"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/validation"
)

// tradeColumns is the persisted column order shared by inserts and selects.
var tradeColumns = []string{
	"id", "import_timestamp", "broker", "account_id", "trade_date", "settle_date",
	"symbol", "description", "asset_category", "action", "quantity", "trade_price",
	"currency", "proceeds", "cost", "commission", "fees", "net_amount", "open_close",
	"cost_basis", "realized_pl", "option_symbol", "expiry_date", "strike_price",
	"put_call", "multiplier", "order_id", "execution_id", "notes", "validation_flags",
	"raw_data", "import_id",
}

var (
	insertTradeQuery = `INSERT INTO trades (` + strings.Join(tradeColumns, ", ") + `)
		VALUES (` + strings.TrimSuffix(strings.Repeat("?, ", len(tradeColumns)), ", ") + `)
		ON CONFLICT(id) DO NOTHING`

	selectTradeQuery = `SELECT ` + strings.Join(tradeColumns, ", ") + ` FROM trades`
)

// TradeRepository provides data access methods for the trades table and the tables
// derived from it (daily summary, anomaly log).
type TradeRepository struct {
	db     *sql.DB
	tx     *sql.Tx
	rules  validation.Rules
	sealer *secret.Sealer
	log    zerolog.Logger
}

// NewTradeRepository creates a new TradeRepository with the provided database connection.
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:    db,
		rules: validation.DefaultRules(),
		log:   log.With().Str("component", "trade_repository").Logger(),
	}
}

// WithTx returns a new TradeRepository scoped to the provided transaction.
// Writes through it join tx instead of committing on their own.
func (r *TradeRepository) WithTx(tx *sql.Tx) *TradeRepository {
	c := *r
	c.tx = tx
	return &c
}

// WithRules returns a copy that detects anomalies with rules.
func (r *TradeRepository) WithRules(rules validation.Rules) *TradeRepository {
	c := *r
	c.rules = rules
	return &c
}

// WithSealer returns a copy that encrypts raw_data payloads with s.
func (r *TradeRepository) WithSealer(s *secret.Sealer) *TradeRepository {
	c := *r
	c.sealer = s
	return &c
}

// getQuerier returns the active transaction if one is set, otherwise the database connection.
func (r *TradeRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InsertNormalizedTrades inserts a batch of trades in one transaction.
func (r *TradeRepository) InsertNormalizedTrades(ctx context.Context, trades []model.Trade) (model.InsertResult, error) {
	return r.InsertImportBatch(ctx, "", trades)
}

// InsertImportBatch inserts a batch of trades tagged with importID, all or nothing.
//
// A trade whose id already exists, in the store or earlier in the same batch, is skipped
// and counted in Duplicates. Any other failure rolls back the whole batch and the result is
// zero with an error wrapping ErrBatchRolledBack. Anomalies of the inserted trades are
// logged to import_error_log and the daily summary of every touched day is recomputed,
// both inside the same transaction.
func (r *TradeRepository) InsertImportBatch(ctx context.Context, importID string, trades []model.Trade) (model.InsertResult, error) {
	if len(trades) == 0 {
		return model.InsertResult{}, nil
	}

	var result model.InsertResult
	err := runInTx(ctx, r.db, r.tx, func(tx *sql.Tx) error {
		result = model.InsertResult{}

		stmt, err := tx.PrepareContext(ctx, insertTradeQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare trade insert: %w", err)
		}
		defer stmt.Close()

		touched := make(map[summaryKey]struct{})
		var inserted []model.Trade

		for i, t := range trades {
			args, err := r.tradeArgs(t, importID)
			if err != nil {
				return fmt.Errorf("row %d (%s): %w", i+1, t.ID, err)
			}
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return fmt.Errorf("failed to insert row %d (%s): %w", i+1, t.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if n == 0 {
				result.Duplicates++
				continue
			}
			result.Inserted++
			inserted = append(inserted, t)
			touched[summaryKey{date: t.TradeDate.UTC().Format(dateLayout), account: t.AccountID}] = struct{}{}
		}

		anomalies, err := r.logAnomalies(ctx, tx, importID, inserted)
		if err != nil {
			return err
		}
		result.Anomalies = anomalies

		return r.recomputeDailySummary(ctx, tx, touched)
	})
	if err != nil {
		r.log.Error().Err(err).Int("batch", len(trades)).Msg("trade batch rolled back")
		return model.InsertResult{}, fmt.Errorf("%w: %w", apperrors.ErrBatchRolledBack, err)
	}

	r.log.Debug().
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("anomalies", result.Anomalies).
		Msg("trade batch committed")
	return result, nil
}

func (r *TradeRepository) tradeArgs(t model.Trade, importID string) ([]any, error) {
	if t.ID == "" {
		return nil, errors.New("trade id is required")
	}

	raw, err := r.encodeRaw(t.Raw)
	if err != nil {
		return nil, err
	}

	broker := t.Broker
	if broker == "" {
		broker = model.BrokerUnknown
	}
	category := t.AssetCategory
	if category == "" {
		category = model.AssetUnknown
	}

	return []any{
		t.ID,
		formatTimestamp(t.ImportTimestamp),
		string(broker),
		t.AccountID,
		formatTimestamp(t.TradeDate),
		nullDate(t.SettleDate),
		t.Symbol,
		nullString(t.Description),
		string(category),
		nullString(t.Action),
		t.Quantity,
		t.TradePrice,
		t.Currency,
		nullFloat(t.Proceeds),
		nullFloat(t.Cost),
		nullFloat(t.Commission),
		nullFloat(t.Fees),
		t.NetAmount,
		nullString(string(t.OpenClose)),
		nullFloat(t.CostBasis),
		nullFloat(t.RealizedPL),
		nullString(t.OptionSymbol),
		nullDate(t.ExpiryDate),
		nullFloat(t.StrikePrice),
		nullString(t.PutCall),
		nullFloat(t.Multiplier),
		nullString(t.OrderID),
		nullString(t.ExecutionID),
		nullString(t.Notes),
		encodeFlags(t.ValidationFlags),
		raw,
		nullString(importID),
	}, nil
}

// encodeRaw serializes the source row for audit, sealed when a sealer is configured.
func (r *TradeRepository) encodeRaw(raw map[string]string) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw data: %w", err)
	}
	if r.sealer == nil {
		return string(b), nil
	}
	sealed, err := r.sealer.Seal(b)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

func (r *TradeRepository) decodeRaw(v sql.NullString) map[string]string {
	if !v.Valid || v.String == "" {
		return nil
	}
	payload := []byte(v.String)
	if r.sealer != nil && !strings.HasPrefix(v.String, "{") {
		opened, err := r.sealer.Unseal(v.String)
		if err != nil {
			r.log.Warn().Err(err).Msg("raw data could not be unsealed")
			return nil
		}
		payload = opened
	}
	var raw map[string]string
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil
	}
	return raw
}

func (r *TradeRepository) logAnomalies(ctx context.Context, tx *sql.Tx, importID string, trades []model.Trade) (int, error) {
	count := 0
	for _, t := range trades {
		for _, a := range validation.DetectAnomalies(t, r.rules) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO import_error_log (import_id, trade_id, kind, code, message, context, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`,
				nullString(importID),
				t.ID,
				model.ErrorKindAnomaly,
				a.Code,
				a.Message,
				fmt.Sprintf("%s %s qty=%g price=%g net=%g", t.Symbol, t.TradeDate.UTC().Format(dateLayout), t.Quantity, t.TradePrice, t.NetAmount),
				formatTimestamp(time.Now()),
			)
			if err != nil {
				return 0, fmt.Errorf("failed to log anomaly for %s: %w", t.ID, err)
			}
			count++
		}
	}
	return count, nil
}

type summaryKey struct {
	date    string
	account string
}

// recomputeDailySummary rebuilds the summary rows of the touched days from the trades table.
func (r *TradeRepository) recomputeDailySummary(ctx context.Context, tx *sql.Tx, touched map[summaryKey]struct{}) error {
	keys := make([]summaryKey, 0, len(touched))
	for k := range touched {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].account < keys[j].account
	})

	for _, k := range keys {
		rows, err := tx.QueryContext(ctx, `
			SELECT realized_pl, net_amount, commission
			FROM trades
			WHERE substr(trade_date, 1, 10) = ? AND account_id = ?
		`, k.date, k.account)
		if err != nil {
			return fmt.Errorf("failed to query trades for daily summary: %w", err)
		}

		count := 0
		realized, net, commissions := decimal.Zero, decimal.Zero, decimal.Zero
		for rows.Next() {
			var pl, commission sql.NullFloat64
			var amount float64
			if err := rows.Scan(&pl, &amount, &commission); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan trade for daily summary: %w", err)
			}
			count++
			if pl.Valid {
				realized = realized.Add(decimal.NewFromFloat(pl.Float64))
			}
			net = net.Add(decimal.NewFromFloat(amount))
			if commission.Valid {
				commissions = commissions.Add(decimal.NewFromFloat(commission.Float64))
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("error iterating trades for daily summary: %w", err)
		}
		rows.Close()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO trade_daily_summary (trade_date, account_id, trade_count, realized_pl, net_amount, commissions, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(trade_date, account_id) DO UPDATE SET
				trade_count = excluded.trade_count,
				realized_pl = excluded.realized_pl,
				net_amount = excluded.net_amount,
				commissions = excluded.commissions,
				updated_at = excluded.updated_at
		`,
			k.date, k.account, count,
			realized.Round(6).InexactFloat64(),
			net.Round(6).InexactFloat64(),
			commissions.Round(6).InexactFloat64(),
		)
		if err != nil {
			return fmt.Errorf("failed to update daily summary for %s: %w", k.date, err)
		}
	}
	return nil
}

// GetTrade retrieves a single trade by id. Returns ErrTradeNotFound if it does not exist.
func (r *TradeRepository) GetTrade(ctx context.Context, id string) (model.Trade, error) {
	row := r.getQuerier().QueryRowContext(ctx, selectTradeQuery+` WHERE id = ?`, id)
	t, err := r.scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Trade{}, apperrors.ErrTradeNotFound
	}
	if err != nil {
		return model.Trade{}, fmt.Errorf("failed to get trade: %w", err)
	}
	return t, nil
}

// GetTrades lists trades matching filter, newest first.
func (r *TradeRepository) GetTrades(ctx context.Context, filter model.TradeFilter) ([]model.Trade, error) {
	return r.queryTrades(ctx, filter, "")
}

// GetClosedTrades lists trades that closed a position, newest first.
func (r *TradeRepository) GetClosedTrades(ctx context.Context, filter model.TradeFilter) ([]model.Trade, error) {
	return r.queryTrades(ctx, filter, `open_close = 'close'`)
}

// CountTrades counts trades matching filter, ignoring its paging.
func (r *TradeRepository) CountTrades(ctx context.Context, filter model.TradeFilter) (int, error) {
	where, args := tradeWhere(filter, "")
	var n int
	if err := r.getQuerier().QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

func (r *TradeRepository) queryTrades(ctx context.Context, filter model.TradeFilter, extra string) ([]model.Trade, error) {
	where, args := tradeWhere(filter, extra)
	query := selectTradeQuery + where + ` ORDER BY trade_date DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades table: %w", err)
	}
	defer rows.Close()

	trades := []model.Trade{}
	for rows.Next() {
		t, err := r.scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

func tradeWhere(filter model.TradeFilter, extra string) (string, []any) {
	var conds []string
	var args []any
	if filter.Symbol != "" {
		conds = append(conds, "(symbol = ? OR option_symbol = ?)")
		args = append(args, strings.ToUpper(filter.Symbol), strings.ToUpper(filter.Symbol))
	}
	if filter.Broker != "" {
		conds = append(conds, "broker = ?")
		args = append(args, string(filter.Broker))
	}
	if filter.AccountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.StartDate != nil {
		conds = append(conds, "substr(trade_date, 1, 10) >= ?")
		args = append(args, filter.StartDate.UTC().Format(dateLayout))
	}
	if filter.EndDate != nil {
		conds = append(conds, "substr(trade_date, 1, 10) <= ?")
		args = append(args, filter.EndDate.UTC().Format(dateLayout))
	}
	if extra != "" {
		conds = append(conds, extra)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TradeRepository) scanTrade(s rowScanner) (model.Trade, error) {
	var t model.Trade
	var importTS, tradeDate string
	var broker, category string
	var settle, description, action, openClose, optionSymbol, expiry, putCall sql.NullString
	var orderID, executionID, notes, flags, raw, importID sql.NullString
	var proceeds, cost, commission, fees, costBasis, realized, strike, multiplier sql.NullFloat64

	err := s.Scan(
		&t.ID, &importTS, &broker, &t.AccountID, &tradeDate, &settle,
		&t.Symbol, &description, &category, &action, &t.Quantity, &t.TradePrice,
		&t.Currency, &proceeds, &cost, &commission, &fees, &t.NetAmount, &openClose,
		&costBasis, &realized, &optionSymbol, &expiry, &strike,
		&putCall, &multiplier, &orderID, &executionID, &notes, &flags,
		&raw, &importID,
	)
	if err != nil {
		return model.Trade{}, err
	}

	if t.ImportTimestamp, err = ParseTime(importTS); err != nil {
		return model.Trade{}, err
	}
	if t.TradeDate, err = ParseTime(tradeDate); err != nil {
		return model.Trade{}, err
	}
	if t.SettleDate, err = datePtr(settle); err != nil {
		return model.Trade{}, err
	}
	if t.ExpiryDate, err = datePtr(expiry); err != nil {
		return model.Trade{}, err
	}

	t.Broker = model.Broker(broker)
	t.AssetCategory = model.AssetCategory(category)
	t.Description = description.String
	t.Action = action.String
	t.OpenClose = model.OpenClose(openClose.String)
	t.OptionSymbol = optionSymbol.String
	t.PutCall = putCall.String
	t.OrderID = orderID.String
	t.ExecutionID = executionID.String
	t.Notes = notes.String
	t.Proceeds = floatPtr(proceeds)
	t.Cost = floatPtr(cost)
	t.Commission = floatPtr(commission)
	t.Fees = floatPtr(fees)
	t.CostBasis = floatPtr(costBasis)
	t.RealizedPL = floatPtr(realized)
	t.StrikePrice = floatPtr(strike)
	t.Multiplier = floatPtr(multiplier)
	t.ValidationFlags = decodeFlags(flags)
	t.Raw = r.decodeRaw(raw)
	return t, nil
}

// GetDailyPnL returns the daily summary rows between start and end (inclusive, either may
// be nil), oldest first. An empty accountID returns every account.
func (r *TradeRepository) GetDailyPnL(ctx context.Context, start, end *time.Time, accountID string) ([]model.DailyPnL, error) {
	if start != nil && end != nil && start.After(*end) {
		return nil, apperrors.ErrInvalidDateRange
	}

	var conds []string
	var args []any
	if start != nil {
		conds = append(conds, "trade_date >= ?")
		args = append(args, start.UTC().Format(dateLayout))
	}
	if end != nil {
		conds = append(conds, "trade_date <= ?")
		args = append(args, end.UTC().Format(dateLayout))
	}
	if accountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, accountID)
	}

	query := `SELECT trade_date, account_id, trade_count, realized_pl, net_amount, commissions FROM trade_daily_summary`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY trade_date ASC, account_id ASC"

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade_daily_summary table: %w", err)
	}
	defer rows.Close()

	days := []model.DailyPnL{}
	for rows.Next() {
		var d model.DailyPnL
		var dateStr string
		if err := rows.Scan(&dateStr, &d.AccountID, &d.TradeCount, &d.RealizedPL, &d.NetAmount, &d.Commissions); err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		if d.Date, err = ParseTime(dateStr); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily summary: %w", err)
	}
	return days, nil
}
