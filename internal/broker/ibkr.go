package broker

import (
	"strings"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/occ"
)

// IBKR date/time layouts, as found in activity statements and Flex trade exports.
var ibkrDateLayouts = []string{
	"2006-01-02, 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02;15:04:05",
	"20060102;150405",
	"20060102",
	"2006-01-02",
}

// IBKRSchema describes the Interactive Brokers trade table, used both by flat trade
// exports and by the Trades section of activity statements.
func IBKRSchema() Schema {
	return Schema{
		Broker:   model.BrokerIBKR,
		Required: []string{"Symbol", "Date/Time", "Quantity", "T. Price", "Proceeds", "Comm/Fee"},
		Map:      mapIBKR,
	}
}

func mapIBKR(row map[string]string, _ MapOptions) (model.Trade, error) {
	symbol := first(row, "Symbol")
	qty, err := requireSymbolAndQuantity(symbol, row["Quantity"])
	if err != nil {
		return model.Trade{}, err
	}

	tradeDate, err := parseDateLayouts(row["Date/Time"], ibkrDateLayouts...)
	if err != nil {
		return model.Trade{}, unmappable("Date/Time", "%v", err)
	}

	price, err := ParseAmount(row["T. Price"])
	if err != nil {
		return model.Trade{}, unmappable("T. Price", "%v", err)
	}
	proceeds := optionalAmount(row["Proceeds"])
	commission := optionalAmount(row["Comm/Fee"])

	net := amountOrZero(row["Proceeds"]) + amountOrZero(row["Comm/Fee"])

	t := model.Trade{
		AccountID:     first(row, "Account", "ClientAccountID"),
		TradeDate:     tradeDate,
		Symbol:        symbol,
		Description:   first(row, "Description"),
		AssetCategory: ibkrAssetCategory(first(row, "Asset Category", "AssetClass")),
		Action:        actionForQuantity(qty),
		Quantity:      qty,
		TradePrice:    price,
		Currency:      strings.ToUpper(first(row, "Currency", "CurrencyPrimary")),
		Proceeds:      proceeds,
		Commission:    commission,
		Fees:          optionalAmount(first(row, "Fees", "Other Fees")),
		NetAmount:     net,
		OpenClose:     ibkrOpenClose(first(row, "Code", "Open/CloseIndicator")),
		CostBasis:     optionalAmount(first(row, "Basis", "CostBasis")),
		RealizedPL:    optionalAmount(first(row, "Realized P/L", "FifoPnlRealized")),
		OrderID:       first(row, "IBOrderID", "Order ID"),
		ExecutionID:   first(row, "IBExecID", "TradeID", "Trade ID"),
		Notes:         first(row, "Notes/Codes"),
	}
	if basis := optionalAmount(first(row, "Basis", "CostBasis")); basis != nil {
		t.Cost = model.Float(abs(*basis))
	}
	if settle, err := parseDateLayouts(first(row, "Settle Date", "SettleDateTarget"), ibkrDateLayouts...); err == nil {
		t.SettleDate = model.Time(settle)
	}
	if t.Currency == "" {
		t.Currency = "USD"
	}

	if t.AssetCategory == model.AssetOption || occ.LooksLikeOption(symbol) {
		c, err := occ.ParseOptionSymbol(symbol)
		if err != nil {
			return model.Trade{}, unmappable("Symbol", "%v", err)
		}
		applyContract(&t, c, amountOrZero(first(row, "Mult", "Multiplier")))
	}

	return t, nil
}

func ibkrAssetCategory(category string) model.AssetCategory {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "stocks", "stk", "stock", "etf":
		return model.AssetStock
	case "equity and index options", "options", "opt", "option", "fop":
		return model.AssetOption
	default:
		return model.AssetUnknown
	}
}

// ibkrOpenClose reads the statement Code column, a semicolon separated list such as "C;P".
func ibkrOpenClose(code string) model.OpenClose {
	for _, part := range strings.FieldsFunc(strings.ToUpper(code), func(r rune) bool { return r == ';' || r == ' ' }) {
		switch part {
		case "O":
			return model.Open
		case "C":
			return model.Close
		}
	}
	return model.OpenCloseUnknown
}
