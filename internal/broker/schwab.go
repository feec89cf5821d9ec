package broker

import (
	"strings"
	"time"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/occ"
)

// SchwabSchema describes the Charles Schwab transaction history export.
func SchwabSchema() Schema {
	return Schema{
		Broker:   model.BrokerSchwab,
		Required: []string{"Date", "Action", "Symbol", "Description", "Quantity", "Price", "Fees & Comm", "Amount"},
		Map:      mapSchwab,
	}
}

func mapSchwab(row map[string]string, _ MapOptions) (model.Trade, error) {
	action, openClose, ok := schwabAction(row["Action"])
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

	tradeDate, err := parseSchwabDate(row["Date"])
	if err != nil {
		return model.Trade{}, unmappable("Date", "%v", err)
	}

	price, err := ParseAmount(row["Price"])
	if err != nil {
		return model.Trade{}, unmappable("Price", "%v", err)
	}

	t := model.Trade{
		TradeDate:     tradeDate,
		Symbol:        symbol,
		Description:   first(row, "Description"),
		AssetCategory: model.AssetStock,
		Action:        action,
		Quantity:      qty,
		TradePrice:    price,
		Currency:      "USD",
		Commission:    optionalAmount(row["Fees & Comm"]),
		NetAmount:     amountOrZero(row["Amount"]),
		OpenClose:     openClose,
	}
	if amount := optionalAmount(row["Amount"]); amount != nil {
		if action == model.ActionSell {
			t.Proceeds = amount
		} else {
			t.Cost = model.Float(abs(*amount))
		}
	}

	if occ.LooksLikeOption(symbol) {
		c, err := occ.ParseOptionSymbol(symbol)
		if err != nil {
			return model.Trade{}, unmappable("Symbol", "%v", err)
		}
		applyContract(&t, c, 100)
	}

	return t, nil
}

// schwabAction maps the Action column onto a trade side and open/close indicator.
// Non-trade actions (dividends, journals, interest) report ok=false.
func schwabAction(action string) (side string, oc model.OpenClose, ok bool) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "buy", "reinvest shares":
		return model.ActionBuy, model.OpenCloseUnknown, true
	case "sell":
		return model.ActionSell, model.OpenCloseUnknown, true
	case "buy to open":
		return model.ActionBuy, model.Open, true
	case "buy to close":
		return model.ActionBuy, model.Close, true
	case "sell to open":
		return model.ActionSell, model.Open, true
	case "sell to close":
		return model.ActionSell, model.Close, true
	default:
		return "", "", false
	}
}

// parseSchwabDate handles "01/15/2025" and "01/15/2025 as of 01/14/2025"; the first date
// is the one the trade settled against in the account history.
func parseSchwabDate(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if i := strings.Index(strings.ToLower(v), " as of "); i >= 0 {
		v = v[:i]
	}
	return parseDateLayouts(v, "01/02/2006", "1/2/2006", "2006-01-02")
}
