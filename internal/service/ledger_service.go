package service

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/repository"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/secret"
)

// Ledger cache lifetimes. Imports invalidate the cache, so expiry only bounds staleness
// from writes made outside this process.
const (
	ledgerCacheTTL     = 5 * time.Minute
	ledgerCacheCleanup = 10 * time.Minute
)

// LedgerService serves read queries over stored trades, positions, accounts and import runs.
// Aggregations are cached until the next import.
type LedgerService struct {
	tradeRepo    *repository.TradeRepository
	positionRepo *repository.PositionRepository
	accountRepo  *repository.AccountRepository
	runRepo      *repository.ImportRunRepository
	errorRepo    *repository.ImportErrorRepository
	cache        *cache.Cache
	log          zerolog.Logger
}

// NewLedgerService creates a new LedgerService. sealer may be nil when raw rows are stored in clear.
func NewLedgerService(db *sql.DB, sealer *secret.Sealer, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		tradeRepo:    repository.NewTradeRepository(db, log).WithSealer(sealer),
		positionRepo: repository.NewPositionRepository(db, log),
		accountRepo:  repository.NewAccountRepository(db),
		runRepo:      repository.NewImportRunRepository(db),
		errorRepo:    repository.NewImportErrorRepository(db),
		cache:        cache.New(ledgerCacheTTL, ledgerCacheCleanup),
		log:          log.With().Str("component", "ledger_service").Logger(),
	}
}

// Invalidate drops every cached aggregation.
func (s *LedgerService) Invalidate() {
	s.cache.Flush()
	s.log.Debug().Msg("ledger cache flushed")
}

// GetTrades returns one page of trades matching filter and the total number of matches.
func (s *LedgerService) GetTrades(ctx context.Context, filter model.TradeFilter) ([]model.Trade, int, error) {
	trades, err := s.tradeRepo.GetTrades(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.tradeRepo.CountTrades(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

// GetTrade returns one trade by id.
func (s *LedgerService) GetTrade(ctx context.Context, id string) (model.Trade, error) {
	return s.tradeRepo.GetTrade(ctx, id)
}

// GetClosedTrades returns trades that closed a position.
func (s *LedgerService) GetClosedTrades(ctx context.Context, filter model.TradeFilter) ([]model.Trade, error) {
	key := "closed:" + filterKey(filter)
	if cached, ok := s.cache.Get(key); ok {
		return slices.Clone(cached.([]model.Trade)), nil
	}

	trades, err := s.tradeRepo.GetClosedTrades(ctx, filter)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, trades)
	return slices.Clone(trades), nil
}

// GetDailyPnL returns daily aggregates between start and end, both optional.
func (s *LedgerService) GetDailyPnL(ctx context.Context, start, end *time.Time, accountID string) ([]model.DailyPnL, error) {
	if start != nil && end != nil && start.After(*end) {
		return nil, apperrors.ErrInvalidDateRange
	}

	key := fmt.Sprintf("pnl:%s:%s:%s", dateKey(start), dateKey(end), accountID)
	if cached, ok := s.cache.Get(key); ok {
		return slices.Clone(cached.([]model.DailyPnL)), nil
	}

	days, err := s.tradeRepo.GetDailyPnL(ctx, start, end, accountID)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, days)
	return slices.Clone(days), nil
}

// GetPositions returns the latest statement positions, optionally for one account.
func (s *LedgerService) GetPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	return s.positionRepo.GetPositions(ctx, accountID)
}

// GetAccounts returns every known account.
func (s *LedgerService) GetAccounts(ctx context.Context) ([]model.Account, error) {
	return s.accountRepo.GetAccounts(ctx)
}

// GetImportRuns returns the most recent import runs.
func (s *LedgerService) GetImportRuns(ctx context.Context, limit int) ([]model.ImportSummary, error) {
	return s.runRepo.GetRuns(ctx, limit)
}

// GetImportRun returns one import run.
func (s *LedgerService) GetImportRun(ctx context.Context, id string) (model.ImportSummary, error) {
	return s.runRepo.GetRun(ctx, id)
}

// GetImportErrors returns error log entries matching filter.
func (s *LedgerService) GetImportErrors(ctx context.Context, filter model.ImportErrorFilter) ([]model.ImportErrorLog, error) {
	return s.errorRepo.GetErrors(ctx, filter)
}

func filterKey(f model.TradeFilter) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d", f.Symbol, f.Broker, f.AccountID, dateKey(f.StartDate), dateKey(f.EndDate), f.Limit, f.Offset)
}

func dateKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
