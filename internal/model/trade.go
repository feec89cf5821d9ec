package model

import "time"

// Broker identifies the export schema a trade was read from.
type Broker string

// Known brokers. BrokerUnknown is returned by detection when no schema matches.
const (
	BrokerIBKR       Broker = "ibkr"
	BrokerSchwab     Broker = "schwab"
	BrokerTastytrade Broker = "tastytrade"
	BrokerUnknown    Broker = "unknown"
)

// AssetCategory is the canonical instrument class of a trade.
type AssetCategory string

// Asset categories.
const (
	AssetStock   AssetCategory = "stock"
	AssetOption  AssetCategory = "option"
	AssetUnknown AssetCategory = "unknown"
)

// OpenClose tells whether a trade opened or closed a position.
type OpenClose string

// Open/close indicators.
const (
	Open             OpenClose = "open"
	Close            OpenClose = "close"
	OpenCloseUnknown OpenClose = "unknown"
)

// Trade actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Option rights.
const (
	PutCallCall = "CALL"
	PutCallPut  = "PUT"
)

// Trade is the canonical, broker-independent trade record every import path converges on.
// Quantity is signed: positive for buys, negative for sells. Pointer fields are optional
// and stored as NULL when absent.
type Trade struct {
	ID              string            `json:"id"`
	ImportTimestamp time.Time         `json:"importTimestamp"`
	Broker          Broker            `json:"broker"`
	AccountID       string            `json:"accountId"`
	TradeDate       time.Time         `json:"tradeDate"`
	SettleDate      *time.Time        `json:"settleDate,omitempty"`
	Symbol          string            `json:"symbol"`
	Description     string            `json:"description,omitempty"`
	AssetCategory   AssetCategory     `json:"assetCategory"`
	Action          string            `json:"action,omitempty"`
	Quantity        float64           `json:"quantity"`
	TradePrice      float64           `json:"tradePrice"`
	Currency        string            `json:"currency"`
	Proceeds        *float64          `json:"proceeds,omitempty"`
	Cost            *float64          `json:"cost,omitempty"`
	Commission      *float64          `json:"commission,omitempty"`
	Fees            *float64          `json:"fees,omitempty"`
	NetAmount       float64           `json:"netAmount"`
	OpenClose       OpenClose         `json:"openCloseIndicator,omitempty"`
	CostBasis       *float64          `json:"costBasis,omitempty"`
	RealizedPL      *float64          `json:"realizedPL,omitempty"`
	OptionSymbol    string            `json:"optionSymbol,omitempty"`
	ExpiryDate      *time.Time        `json:"expiryDate,omitempty"`
	StrikePrice     *float64          `json:"strikePrice,omitempty"`
	PutCall         string            `json:"putCall,omitempty"`
	Multiplier      *float64          `json:"multiplier,omitempty"`
	OrderID         string            `json:"orderID,omitempty"`
	ExecutionID     string            `json:"executionID,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	ValidationFlags []string          `json:"validationFlags,omitempty"`
	Raw             map[string]string `json:"raw,omitempty"`
}

// IsOption reports whether the trade is on an option contract.
func (t Trade) IsOption() bool {
	return t.AssetCategory == AssetOption
}

// TradeFilter narrows trade listings. Zero values mean "no constraint".
type TradeFilter struct {
	Symbol    string
	Broker    Broker
	AccountID string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// InsertResult reports the outcome of one batch insert.
// Duplicates are rows whose id already existed (or appeared earlier in the same batch).
type InsertResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Anomalies  int `json:"anomalies"`
}

// SuccessCount is the number of rows the batch actually wrote.
func (r InsertResult) SuccessCount() int {
	return r.Inserted
}

// Float returns a pointer to v, for populating optional numeric fields.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t, for populating optional date fields.
func Time(t time.Time) *time.Time {
	return &t
}
