package broker

import (
	"strings"
	"time"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/occ"
)

var tastytradeDateLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006-01-02",
}

// TastytradeSchema describes the tastytrade transaction history export.
func TastytradeSchema() Schema {
	return Schema{
		Broker: model.BrokerTastytrade,
		Required: []string{
			"Date", "Type", "Action", "Symbol", "Instrument Type",
			"Value", "Quantity", "Average Price", "Commissions", "Fees",
		},
		Map: mapTastytrade,
	}
}

func mapTastytrade(row map[string]string, _ MapOptions) (model.Trade, error) {
	action, openClose, ok := tastytradeAction(row["Action"])
	if !ok {
		return model.Trade{}, unmappable("Action", "not a trade: %q", row["Action"])
	}

	symbol := first(row, "Symbol")
	qty, err := requireSymbolAndQuantity(symbol, row["Quantity"])
	if err != nil {
		return model.Trade{}, err
	}
	qty = abs(qty)
	if action == model.ActionSell {
		qty = -qty
	}

	tradeDate, err := parseDateLayouts(row["Date"], tastytradeDateLayouts...)
	if err != nil {
		return model.Trade{}, unmappable("Date", "%v", err)
	}

	price, err := ParseAmount(row["Average Price"])
	if err != nil {
		return model.Trade{}, unmappable("Average Price", "%v", err)
	}

	value := amountOrZero(row["Value"])
	commissions := optionalAmount(row["Commissions"])
	fees := optionalAmount(row["Fees"])

	t := model.Trade{
		TradeDate:     tradeDate,
		Symbol:        symbol,
		Description:   first(row, "Description"),
		AssetCategory: tastytradeAssetCategory(row["Instrument Type"]),
		Action:        action,
		Quantity:      qty,
		TradePrice:    abs(price),
		Currency:      strings.ToUpper(first(row, "Currency")),
		Commission:    commissions,
		Fees:          fees,
		NetAmount:     value + amountOrZero(row["Commissions"]) + amountOrZero(row["Fees"]),
		OpenClose:     openClose,
		OrderID:       first(row, "Order #"),
	}
	if t.Currency == "" {
		t.Currency = "USD"
	}
	if value >= 0 {
		t.Proceeds = model.Float(value)
	} else {
		t.Cost = model.Float(-value)
	}

	if t.AssetCategory == model.AssetOption {
		c, err := occ.ParseOptionSymbol(symbol)
		if err != nil {
			return model.Trade{}, unmappable("Symbol", "%v", err)
		}
		applyContract(&t, c, amountOrZero(row["Multiplier"]))
	}

	return t, nil
}

// tastytradeAction maps values such as BUY_TO_OPEN or SELL onto side and open/close.
func tastytradeAction(action string) (side string, oc model.OpenClose, ok bool) {
	a := strings.ToUpper(strings.TrimSpace(action))
	switch {
	case strings.HasPrefix(a, "BUY"):
		side = model.ActionBuy
	case strings.HasPrefix(a, "SELL"):
		side = model.ActionSell
	default:
		return "", "", false
	}

	switch {
	case strings.HasSuffix(a, "_TO_OPEN"):
		oc = model.Open
	case strings.HasSuffix(a, "_TO_CLOSE"):
		oc = model.Close
	default:
		oc = model.OpenCloseUnknown
	}
	return side, oc, true
}

func tastytradeAssetCategory(instrument string) model.AssetCategory {
	switch strings.ToLower(strings.TrimSpace(instrument)) {
	case "equity":
		return model.AssetStock
	case "equity option", "future option", "index option":
		return model.AssetOption
	default:
		return model.AssetUnknown
	}
}
