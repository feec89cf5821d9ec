package testutil

import (
	"time"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

// TradeBuilder provides a fluent interface for building canonical trades.
// Trades are returned rather than written so tests exercise the real insert path.
//
// Example usage:
//
//	trade := testutil.NewTrade().
//	    WithSymbol("MSFT").
//	    WithQuantity(-5).
//	    Closing(120.5).
//	    Build()
type TradeBuilder struct {
	trade model.Trade
}

// NewTrade creates a TradeBuilder for a 10 share stock buy with sensible defaults.
func NewTrade() *TradeBuilder {
	now := time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC)
	return &TradeBuilder{trade: model.Trade{
		ID:              MakeID(),
		ImportTimestamp: now,
		Broker:          model.BrokerIBKR,
		AccountID:       "U1234567",
		TradeDate:       now,
		Symbol:          "AAPL",
		AssetCategory:   model.AssetStock,
		Action:          model.ActionBuy,
		Quantity:        10,
		TradePrice:      185.5,
		Currency:        "USD",
		Proceeds:        model.Float(-1855),
		Commission:      model.Float(-1),
		NetAmount:       -1856,
		OpenClose:       model.Open,
		Raw:             map[string]string{"Symbol": "AAPL"},
	}}
}

// WithID sets a custom ID.
func (b *TradeBuilder) WithID(id string) *TradeBuilder {
	b.trade.ID = id
	return b
}

// WithSymbol sets a custom symbol.
func (b *TradeBuilder) WithSymbol(symbol string) *TradeBuilder {
	b.trade.Symbol = symbol
	b.trade.Raw = map[string]string{"Symbol": symbol}
	return b
}

// WithAccount sets a custom account.
func (b *TradeBuilder) WithAccount(accountID string) *TradeBuilder {
	b.trade.AccountID = accountID
	return b
}

// WithBroker sets a custom broker.
func (b *TradeBuilder) WithBroker(broker model.Broker) *TradeBuilder {
	b.trade.Broker = broker
	return b
}

// WithDate sets the trade date.
func (b *TradeBuilder) WithDate(date time.Time) *TradeBuilder {
	b.trade.TradeDate = date
	return b
}

// WithQuantity sets the signed quantity and the matching action.
func (b *TradeBuilder) WithQuantity(qty float64) *TradeBuilder {
	b.trade.Quantity = qty
	if qty < 0 {
		b.trade.Action = model.ActionSell
	} else {
		b.trade.Action = model.ActionBuy
	}
	return b
}

// WithPrice sets the trade price.
func (b *TradeBuilder) WithPrice(price float64) *TradeBuilder {
	b.trade.TradePrice = price
	return b
}

// WithNetAmount sets the net amount.
func (b *TradeBuilder) WithNetAmount(net float64) *TradeBuilder {
	b.trade.NetAmount = net
	return b
}

// WithCommission sets the commission.
func (b *TradeBuilder) WithCommission(commission float64) *TradeBuilder {
	b.trade.Commission = model.Float(commission)
	return b
}

// Closing marks the trade as closing a position with the given realized P/L.
func (b *TradeBuilder) Closing(realizedPL float64) *TradeBuilder {
	b.trade.OpenClose = model.Close
	b.trade.RealizedPL = model.Float(realizedPL)
	return b
}

// Option turns the trade into an option trade on contract.
func (b *TradeBuilder) Option(optionSymbol, putCall string, strike float64, expiry time.Time) *TradeBuilder {
	b.trade.AssetCategory = model.AssetOption
	b.trade.OptionSymbol = optionSymbol
	b.trade.PutCall = putCall
	b.trade.StrikePrice = model.Float(strike)
	b.trade.ExpiryDate = model.Time(expiry)
	b.trade.Multiplier = model.Float(100)
	return b
}

// Build returns the trade.
func (b *TradeBuilder) Build() model.Trade {
	return b.trade
}

// CreateTrades returns count distinct stock trades on consecutive days.
func CreateTrades(count int) []model.Trade {
	trades := make([]model.Trade, count)
	start := time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC)
	for i := range trades {
		trades[i] = NewTrade().WithSymbol(MakeSymbol("T")).WithDate(start.AddDate(0, 0, i)).Build()
	}
	return trades
}

// PositionBuilder provides a fluent interface for building statement positions.
type PositionBuilder struct {
	position model.Position
}

// NewPosition creates a PositionBuilder for a 100 share stock holding.
func NewPosition(symbol string) *PositionBuilder {
	return &PositionBuilder{position: model.Position{
		ID:            model.NewRecordID("position", "U1234567", symbol),
		AccountID:     "U1234567",
		Symbol:        symbol,
		AssetCategory: model.AssetStock,
		Currency:      "USD",
		Quantity:      100,
		Multiplier:    1,
		CostPrice:     150,
		CostBasis:     15000,
		MarketPrice:   160,
		MarketValue:   16000,
		UnrealizedPL:  1000,
		StatementDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}}
}

// WithQuantity sets the position size.
func (b *PositionBuilder) WithQuantity(qty float64) *PositionBuilder {
	b.position.Quantity = qty
	return b
}

// WithAccount sets the account and recomputes the id.
func (b *PositionBuilder) WithAccount(accountID string) *PositionBuilder {
	b.position.AccountID = accountID
	b.position.ID = model.NewRecordID("position", accountID, b.position.Symbol)
	return b
}

// Build returns the position.
func (b *PositionBuilder) Build() model.Position {
	return b.position
}
