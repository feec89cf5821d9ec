package repository_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/repository"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/secret"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/testutil"
)

// TestTradeRepository_InsertNormalizedTrades tests batch inserts and deduplication.
//
// WHY: Re-importing a statement is the normal way users refresh their ledger. The same
// rows must never be stored twice and a repeated import must not be treated as a failure.
func TestTradeRepository_InsertNormalizedTrades(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts every trade of a batch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewTradeRepository(db, zerolog.Nop())

		result, err := repo.InsertNormalizedTrades(ctx, testutil.CreateTrades(3))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if result.Inserted != 3 || result.Duplicates != 0 {
			t.Errorf("Expected 3 inserted, got %+v", result)
		}
		testutil.AssertRowCount(t, db, "trades", 3)
	})

	t.Run("second insert of the same batch only counts duplicates", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewTradeRepository(db, zerolog.Nop())
		trades := testutil.CreateTrades(3)

		if _, err := repo.InsertNormalizedTrades(ctx, trades); err != nil {
			t.Fatalf("First insert failed: %v", err)
		}
		result, err := repo.InsertNormalizedTrades(ctx, trades)
		if err != nil {
			t.Fatalf("Expected duplicates not to be an error, got %v", err)
		}
		if result.Inserted != 0 || result.Duplicates != 3 {
			t.Errorf("Expected 0 inserted and 3 duplicates, got %+v", result)
		}
		testutil.AssertRowCount(t, db, "trades", 3)
	})

	t.Run("duplicate inside one batch is skipped", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewTradeRepository(db, zerolog.Nop())
		trade := testutil.NewTrade().Build()

		result, err := repo.InsertNormalizedTrades(ctx, []model.Trade{trade, trade})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if result.Inserted != 1 || result.Duplicates != 1 {
			t.Errorf("Expected 1 inserted and 1 duplicate, got %+v", result)
		}
		testutil.AssertRowCount(t, db, "trades", 1)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewTradeRepository(db, zerolog.Nop())

		result, err := repo.InsertNormalizedTrades(ctx, nil)
		if err != nil || result != (model.InsertResult{}) {
			t.Errorf("Expected empty result, got %+v, %v", result, err)
		}
	})
}

// TestTradeRepository_InsertAllOrNothing tests that a failing row rolls back its batch.
//
// WHY: A partially imported statement leaves the ledger in a state nobody can reason about.
// Whatever the position of the bad row, nothing of the batch may remain.
func TestTradeRepository_InsertAllOrNothing(t *testing.T) {
	ctx := context.Background()

	for bad := 0; bad < 5; bad++ {
		db := testutil.SetupTestDB(t)
		repo := repository.NewTradeRepository(db, zerolog.Nop())

		trades := testutil.CreateTrades(5)
		trades[bad].Symbol = ""

		result, err := repo.InsertNormalizedTrades(ctx, trades)
		if !errors.Is(err, apperrors.ErrBatchRolledBack) {
			t.Fatalf("bad row %d: expected ErrBatchRolledBack, got %v", bad, err)
		}
		if result != (model.InsertResult{}) {
			t.Errorf("bad row %d: expected zero result, got %+v", bad, result)
		}
		testutil.AssertRowCount(t, db, "trades", 0)
		testutil.AssertRowCount(t, db, "trade_daily_summary", 0)
		testutil.AssertRowCount(t, db, "import_error_log", 0)
	}

	t.Run("non-finite quantity rolls back", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewTradeRepository(db, zerolog.Nop())

		trades := testutil.CreateTrades(2)
		trades[1].Quantity = math.NaN()

		if _, err := repo.InsertNormalizedTrades(ctx, trades); !errors.Is(err, apperrors.ErrBatchRolledBack) {
			t.Fatalf("Expected ErrBatchRolledBack, got %v", err)
		}
		testutil.AssertRowCount(t, db, "trades", 0)
	})

	t.Run("joins an outer transaction", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		repo := repository.NewTradeRepository(db, zerolog.Nop()).WithTx(tx)

		if _, err := repo.InsertNormalizedTrades(ctx, testutil.CreateTrades(2)); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if err := tx.Rollback(); err != nil {
			t.Fatal(err)
		}
		testutil.AssertRowCount(t, db, "trades", 0)
	})
}

func TestTradeRepository_Anomalies(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewTradeRepository(db, zerolog.Nop())

	odd := testutil.NewTrade().WithQuantity(20000).WithPrice(0).WithNetAmount(-1).Build()
	normal := testutil.NewTrade().WithSymbol("MSFT").Build()

	result, err := repo.InsertImportBatch(ctx, "run-1", []model.Trade{odd, normal})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Anomalies != 2 {
		t.Errorf("Expected 2 anomalies, got %d", result.Anomalies)
	}

	entries, err := repository.NewImportErrorRepository(db).GetErrors(ctx, model.ImportErrorFilter{ImportID: "run-1"})
	if err != nil {
		t.Fatalf("GetErrors failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.TradeID != odd.ID || e.Kind != model.ErrorKindAnomaly {
			t.Errorf("Unexpected log entry %+v", e)
		}
	}

	t.Run("duplicates are not logged again", func(t *testing.T) {
		result, err := repo.InsertImportBatch(ctx, "run-2", []model.Trade{odd})
		if err != nil {
			t.Fatal(err)
		}
		if result.Anomalies != 0 || result.Duplicates != 1 {
			t.Errorf("Expected only a duplicate, got %+v", result)
		}
		testutil.AssertRowCount(t, db, "import_error_log", 2)
	})
}

func TestTradeRepository_GetTrade(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewTradeRepository(db, zerolog.Nop())

	expiry := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
	option := testutil.NewTrade().
		WithSymbol("SPY").
		Option("SPY   250117C00570000", model.PutCallCall, 570, expiry).
		Closing(42.5).
		Build()
	option.ValidationFlags = []string{"large_quantity"}

	if _, err := repo.InsertNormalizedTrades(ctx, []model.Trade{option}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	t.Run("round trips every field", func(t *testing.T) {
		got, err := repo.GetTrade(ctx, option.ID)
		if err != nil {
			t.Fatalf("GetTrade failed: %v", err)
		}
		if !got.TradeDate.Equal(option.TradeDate) {
			t.Errorf("Expected trade date %v, got %v", option.TradeDate, got.TradeDate)
		}
		if got.OptionSymbol != option.OptionSymbol || got.PutCall != model.PutCallCall {
			t.Errorf("Expected option fields to survive, got %q %q", got.OptionSymbol, got.PutCall)
		}
		if got.StrikePrice == nil || *got.StrikePrice != 570 {
			t.Errorf("Expected strike 570, got %v", got.StrikePrice)
		}
		if got.ExpiryDate == nil || !got.ExpiryDate.Equal(expiry) {
			t.Errorf("Expected expiry %v, got %v", expiry, got.ExpiryDate)
		}
		if got.OpenClose != model.Close || got.RealizedPL == nil || *got.RealizedPL != 42.5 {
			t.Errorf("Expected closing trade with P/L 42.5, got %s %v", got.OpenClose, got.RealizedPL)
		}
		if len(got.ValidationFlags) != 1 || got.ValidationFlags[0] != "large_quantity" {
			t.Errorf("Expected flags to survive, got %v", got.ValidationFlags)
		}
		if got.Raw["Symbol"] != "SPY" {
			t.Errorf("Expected raw row to survive, got %v", got.Raw)
		}
		if got.Cost != nil || got.Fees != nil {
			t.Errorf("Expected absent optionals to stay nil, got cost=%v fees=%v", got.Cost, got.Fees)
		}
	})

	t.Run("missing trade", func(t *testing.T) {
		_, err := repo.GetTrade(ctx, testutil.MakeID())
		if !errors.Is(err, apperrors.ErrTradeNotFound) {
			t.Errorf("Expected ErrTradeNotFound, got %v", err)
		}
	})
}

func TestTradeRepository_SealedRawData(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	key, err := secret.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	sealer, err := secret.NewSealer(key)
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewTradeRepository(db, zerolog.Nop()).WithSealer(sealer)
	trade := testutil.NewTrade().Build()

	if _, err := repo.InsertNormalizedTrades(ctx, []model.Trade{trade}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	var stored string
	if err := db.QueryRow(`SELECT raw_data FROM trades WHERE id = ?`, trade.ID).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored == "" || stored[0] == '{' {
		t.Errorf("Expected sealed payload, got %q", stored)
	}

	got, err := repo.GetTrade(ctx, trade.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Raw["Symbol"] != "AAPL" {
		t.Errorf("Expected unsealed raw row, got %v", got.Raw)
	}
}

func TestTradeRepository_GetTrades(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewTradeRepository(db, zerolog.Nop())

	day := func(d int) time.Time { return time.Date(2025, 1, d, 15, 0, 0, 0, time.UTC) }
	trades := []model.Trade{
		testutil.NewTrade().WithSymbol("AAPL").WithDate(day(2)).Build(),
		testutil.NewTrade().WithSymbol("AAPL").WithDate(day(3)).WithQuantity(-10).Closing(25).Build(),
		testutil.NewTrade().WithSymbol("MSFT").WithDate(day(6)).WithAccount("U7654321").Build(),
		testutil.NewTrade().WithSymbol("TSLA").WithDate(day(7)).WithBroker(model.BrokerSchwab).Build(),
	}
	if _, err := repo.InsertNormalizedTrades(ctx, trades); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	tests := []struct {
		name   string
		filter model.TradeFilter
		want   int
	}{
		{"all", model.TradeFilter{}, 4},
		{"by symbol", model.TradeFilter{Symbol: "aapl"}, 2},
		{"by account", model.TradeFilter{AccountID: "U7654321"}, 1},
		{"by broker", model.TradeFilter{Broker: model.BrokerSchwab}, 1},
		{"by date range", model.TradeFilter{StartDate: model.Time(day(3)), EndDate: model.Time(day(6))}, 2},
		{"paged", model.TradeFilter{Limit: 3, Offset: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetTrades(ctx, tt.filter)
			if err != nil {
				t.Fatalf("GetTrades failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Expected %d trades, got %d", tt.want, len(got))
			}
		})
	}

	t.Run("newest first", func(t *testing.T) {
		got, _ := repo.GetTrades(ctx, model.TradeFilter{})
		if got[0].Symbol != "TSLA" {
			t.Errorf("Expected TSLA first, got %s", got[0].Symbol)
		}
	})

	t.Run("closed trades", func(t *testing.T) {
		got, err := repo.GetClosedTrades(ctx, model.TradeFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].OpenClose != model.Close {
			t.Errorf("Expected one closing trade, got %+v", got)
		}
	})

	t.Run("count ignores paging", func(t *testing.T) {
		n, err := repo.CountTrades(ctx, model.TradeFilter{Limit: 1})
		if err != nil || n != 4 {
			t.Errorf("Expected 4, got %d (%v)", n, err)
		}
	})
}

// TestTradeRepository_GetDailyPnL tests the daily summary maintained by inserts.
//
// WHY: Dashboards read the daily table instead of scanning every trade, so it must always
// match the trades it summarizes, including after re-imports.
func TestTradeRepository_GetDailyPnL(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewTradeRepository(db, zerolog.Nop())

	jan2 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	jan3 := time.Date(2025, 1, 3, 15, 0, 0, 0, time.UTC)
	batch := []model.Trade{
		testutil.NewTrade().WithDate(jan2).Closing(10.1).WithNetAmount(100).WithCommission(-1).Build(),
		testutil.NewTrade().WithSymbol("MSFT").WithDate(jan2.Add(time.Hour)).Closing(20.2).WithNetAmount(200).WithCommission(-1.5).Build(),
		testutil.NewTrade().WithSymbol("TSLA").WithDate(jan3).Build(),
	}
	if _, err := repo.InsertNormalizedTrades(ctx, batch); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	// Re-import must not double the totals.
	if _, err := repo.InsertNormalizedTrades(ctx, batch); err != nil {
		t.Fatalf("Re-insert failed: %v", err)
	}

	days, err := repo.GetDailyPnL(ctx, nil, nil, "")
	if err != nil {
		t.Fatalf("GetDailyPnL failed: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("Expected 2 days, got %d", len(days))
	}

	first := days[0]
	if !first.Date.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected 2025-01-02 first, got %v", first.Date)
	}
	if first.TradeCount != 2 {
		t.Errorf("Expected 2 trades, got %d", first.TradeCount)
	}
	if math.Abs(first.RealizedPL-30.3) > 1e-9 {
		t.Errorf("Expected realized 30.3, got %v", first.RealizedPL)
	}
	if first.NetAmount != 300 || first.Commissions != -2.5 {
		t.Errorf("Expected net 300 and commissions -2.5, got %v %v", first.NetAmount, first.Commissions)
	}

	t.Run("date range", func(t *testing.T) {
		got, err := repo.GetDailyPnL(ctx, model.Time(jan3), nil, "")
		if err != nil || len(got) != 1 {
			t.Errorf("Expected 1 day, got %d (%v)", len(got), err)
		}
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := repo.GetDailyPnL(ctx, model.Time(jan3), model.Time(jan2), "")
		if !errors.Is(err, apperrors.ErrInvalidDateRange) {
			t.Errorf("Expected ErrInvalidDateRange, got %v", err)
		}
	})
}
