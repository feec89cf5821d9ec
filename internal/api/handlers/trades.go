package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/api/request"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/api/response"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/service"
)

// TradeHandler handles trade and ledger queries.
type TradeHandler struct {
	ledgerService *service.LedgerService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(ledgerService *service.LedgerService) *TradeHandler {
	return &TradeHandler{ledgerService: ledgerService}
}

// Trades lists trades newest first.
//
// Endpoint: GET /api/trade?symbol=&broker=&account=&start_date=&end_date=&limit=&offset=
// Response: 200 OK with a page of trades and the total count
func (h *TradeHandler) Trades(w http.ResponseWriter, r *http.Request) {
	filter, err := request.ParseTradeFilter(r.URL.Query())
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveTrades)
		return
	}
	trades, total, err := h.ledgerService.GetTrades(r.Context(), filter)
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveTrades)
		return
	}
	respondList(w, trades, total)
}

// ClosedTrades lists trades that closed a position.
//
// Endpoint: GET /api/trade/closed with the same filters as Trades
func (h *TradeHandler) ClosedTrades(w http.ResponseWriter, r *http.Request) {
	filter, err := request.ParseTradeFilter(r.URL.Query())
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveTrades)
		return
	}
	trades, err := h.ledgerService.GetClosedTrades(r.Context(), filter)
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveTrades)
		return
	}
	respondList(w, trades, len(trades))
}

// Trade returns one trade with its raw source row.
//
// Endpoint: GET /api/trade/{uuid}
func (h *TradeHandler) Trade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.ledgerService.GetTrade(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveTrade)
		return
	}
	response.RespondJSON(w, http.StatusOK, trade)
}

// DailyPnL returns realized P/L, net amount and commissions per day and account.
//
// Endpoint: GET /api/pnl/daily?start_date=&end_date=&account=
func (h *TradeHandler) DailyPnL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := request.ParseDateRange(q)
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrievePnL)
		return
	}
	days, err := h.ledgerService.GetDailyPnL(r.Context(), start, end, q.Get("account"))
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrievePnL)
		return
	}
	respondList(w, days, len(days))
}

// Positions lists statement positions.
//
// Endpoint: GET /api/position?account=
func (h *TradeHandler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.ledgerService.GetPositions(r.Context(), r.URL.Query().Get("account"))
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrievePositions)
		return
	}
	respondList(w, positions, len(positions))
}

// Accounts lists known accounts.
//
// Endpoint: GET /api/account
func (h *TradeHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledgerService.GetAccounts(r.Context())
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveAccounts)
		return
	}
	respondList(w, accounts, len(accounts))
}
