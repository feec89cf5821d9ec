package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/testutil"
)

// setupTradeHandler imports the flat IBKR fixture and the activity statement.
func setupTradeHandler(t *testing.T) *TradeHandler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ledger := testutil.NewTestLedgerService(t, db)
	imports := testutil.NewTestImportService(t, db, ledger)
	for name, content := range map[string]string{
		"trades.csv":   testutil.IBKRTradesCSV,
		"activity.csv": testutil.ActivityStatement,
	} {
		if _, err := imports.ImportReader(t.Context(), name, strings.NewReader(content), 0); err != nil {
			t.Fatalf("Import of %s failed: %v", name, err)
		}
	}
	return NewTradeHandler(ledger)
}

func TestTradeHandler_Trades(t *testing.T) {
	h := setupTradeHandler(t)

	tests := []struct {
		name      string
		query     url.Values
		wantCode  int
		wantTotal int
	}{
		{"all trades", nil, http.StatusOK, 6},
		{"by symbol", url.Values{"symbol": {"MSFT"}}, http.StatusOK, 1},
		{"by account", url.Values{"account": {"U1234567"}}, http.StatusOK, 3},
		{"by date range", url.Values{"start_date": {"2025-01-03"}, "end_date": {"2025-01-03"}}, http.StatusOK, 2},
		{"invalid date", url.Values{"start_date": {"yesterday"}}, http.StatusBadRequest, 0},
		{"inverted range", url.Values{"start_date": {"2025-02-01"}, "end_date": {"2025-01-01"}}, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Trades(w, testutil.NewRequest("/api/trade", nil, tt.query))

			if w.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			page := testutil.DecodeJSON[ListResponse[model.Trade]](t, w)
			if page.Total != tt.wantTotal {
				t.Errorf("Expected total %d, got %d", tt.wantTotal, page.Total)
			}
		})
	}
}

func TestTradeHandler_Trade(t *testing.T) {
	h := setupTradeHandler(t)

	w := httptest.NewRecorder()
	h.Trades(w, testutil.NewRequest("/api/trade", nil, url.Values{"symbol": {"MSFT"}}))
	page := testutil.DecodeJSON[ListResponse[model.Trade]](t, w)
	if len(page.Items) != 1 {
		t.Fatalf("Expected one MSFT trade, got %d", len(page.Items))
	}
	id := page.Items[0].ID

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Trade(w, testutil.NewRequest("/api/trade/"+id, map[string]string{"uuid": id}, nil))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		trade := testutil.DecodeJSON[model.Trade](t, w)
		if trade.Symbol != "MSFT" || trade.RealizedPL == nil || *trade.RealizedPL != 49 {
			t.Errorf("Unexpected trade %+v", trade)
		}
	})

	t.Run("not found", func(t *testing.T) {
		missing := testutil.MakeID()
		w := httptest.NewRecorder()
		h.Trade(w, testutil.NewRequest("/api/trade/"+missing, map[string]string{"uuid": missing}, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}

func TestTradeHandler_Aggregates(t *testing.T) {
	h := setupTradeHandler(t)

	t.Run("closed trades", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ClosedTrades(w, testutil.NewRequest("/api/trade/closed", nil, nil))
		closed := testutil.DecodeJSON[ListResponse[model.Trade]](t, w)
		if closed.Total != 1 || closed.Items[0].Symbol != "MSFT" {
			t.Errorf("Expected MSFT as the only closed trade, got %+v", closed.Items)
		}
	})

	t.Run("daily pnl", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.DailyPnL(w, testutil.NewRequest("/api/pnl/daily", nil, url.Values{"account": {"U1234567"}}))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		days := testutil.DecodeJSON[ListResponse[model.DailyPnL]](t, w)
		if days.Total == 0 {
			t.Error("Expected daily rows for the statement account")
		}
		for _, d := range days.Items {
			if d.AccountID != "U1234567" {
				t.Errorf("Expected only U1234567, got %s", d.AccountID)
			}
		}
	})

	t.Run("positions", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Positions(w, testutil.NewRequest("/api/position", nil, nil))
		positions := testutil.DecodeJSON[ListResponse[model.Position]](t, w)
		if positions.Total != 2 {
			t.Errorf("Expected 2 positions, got %d", positions.Total)
		}
	})

	t.Run("accounts", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Accounts(w, testutil.NewRequest("/api/account", nil, nil))
		accounts := testutil.DecodeJSON[ListResponse[model.Account]](t, w)
		if accounts.Total != 1 || accounts.Items[0].AccountID != "U1234567" {
			t.Errorf("Expected account U1234567, got %+v", accounts.Items)
		}
	})
}
