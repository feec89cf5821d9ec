package broker

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/occ"
)

var errEmptyValue = errors.New("empty value")

// ParseAmount parses a broker-formatted number. It accepts currency symbols, thousands
// separators and accounting parentheses for negatives: "$1,234.50", "(12.00)", "-2,290".
// NaN and infinities are rejected.
func ParseAmount(s string) (float64, error) {
	v := strings.TrimSpace(s)
	if v == "" || v == "--" || v == "-" {
		return 0, errEmptyValue
	}

	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = v[1 : len(v)-1]
	}
	v = strings.NewReplacer("$", "", ",", "", " ", "").Replace(v)

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	if negative {
		f = -f
	}
	return f, nil
}

// optionalAmount returns nil for blank or unparseable cells.
func optionalAmount(s string) *float64 {
	f, err := ParseAmount(s)
	if err != nil {
		return nil
	}
	return &f
}

// amountOrZero returns 0 for blank or unparseable cells.
func amountOrZero(s string) float64 {
	f, _ := ParseAmount(s)
	return f
}

// first returns the first non-blank value among the given columns.
func first(row map[string]string, columns ...string) string {
	for _, c := range columns {
		if v := strings.TrimSpace(row[c]); v != "" {
			return v
		}
	}
	return ""
}

// parseDateLayouts tries layouts in order and returns the first successful parse in UTC.
func parseDateLayouts(s string, layouts ...string) (time.Time, error) {
	v := strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// unmappable wraps ErrUnmappableRow with a field-specific reason.
func unmappable(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", apperrors.ErrUnmappableRow, field, fmt.Sprintf(format, args...))
}

// requireSymbolAndQuantity enforces the two fields without which no row can be mapped.
func requireSymbolAndQuantity(symbol, quantity string) (float64, error) {
	if strings.TrimSpace(symbol) == "" {
		return 0, unmappable("symbol", "missing")
	}
	qty, err := ParseAmount(quantity)
	if err != nil {
		return 0, unmappable("quantity", "%v", err)
	}
	return qty, nil
}

// applyContract fills the option fields of t from a decoded contract.
func applyContract(t *model.Trade, c occ.Contract, multiplier float64) {
	t.AssetCategory = model.AssetOption
	t.Symbol = c.Root
	t.OptionSymbol = occ.Encode(c)
	t.ExpiryDate = model.Time(c.Expiry)
	t.StrikePrice = model.Float(c.Strike)
	t.PutCall = c.PutCall
	if multiplier <= 0 {
		multiplier = 100
	}
	t.Multiplier = model.Float(multiplier)
}

// actionForQuantity derives BUY/SELL from a signed quantity.
func actionForQuantity(qty float64) string {
	if qty < 0 {
		return model.ActionSell
	}
	return model.ActionBuy
}

func abs(v float64) float64 {
	return math.Abs(v)
}
