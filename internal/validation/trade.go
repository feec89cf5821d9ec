package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

// Issue codes reported by ValidateTrade.
const (
	CodeMissingField     = "missing_field"
	CodeNonFinite        = "non_finite"
	CodeOptionIncomplete = "option_incomplete"
	CodeLargeQuantity    = "large_quantity"
	CodeZeroPrice        = "zero_price"
	CodeZeroNetAmount    = "zero_net_amount"
	CodeUnmappable       = "unmappable"
)

// DefaultLargeQuantity is the absolute quantity above which a trade is flagged.
const DefaultLargeQuantity = 10000

// Rules holds the tunable thresholds of the row validator.
type Rules struct {
	LargeQuantity float64 `yaml:"large_quantity"`
}

// DefaultRules returns the validator defaults.
func DefaultRules() Rules {
	return Rules{LargeQuantity: DefaultLargeQuantity}
}

// ValidateTrade checks a canonical trade. Issues with SeverityError mean the trade must not
// be stored; warnings leave it storable and are recorded as validation flags.
func ValidateTrade(t model.Trade, rules Rules) []model.ValidationIssue {
	if rules.LargeQuantity <= 0 {
		rules.LargeQuantity = DefaultLargeQuantity
	}

	var issues []model.ValidationIssue
	fail := func(field, code, msg string) {
		issues = append(issues, model.ValidationIssue{Field: field, Code: code, Severity: model.SeverityError, Message: msg})
	}
	warn := func(field, code, msg string) {
		issues = append(issues, model.ValidationIssue{Field: field, Code: code, Severity: model.SeverityWarning, Message: msg})
	}

	if strings.TrimSpace(t.ID) == "" {
		fail("id", CodeMissingField, "id is required")
	}
	if strings.TrimSpace(t.Symbol) == "" {
		fail("symbol", CodeMissingField, "symbol is required")
	}
	if strings.TrimSpace(t.Currency) == "" {
		fail("currency", CodeMissingField, "currency is required")
	}
	if t.TradeDate.IsZero() {
		fail("tradeDate", CodeMissingField, "trade date is required")
	}
	if t.AssetCategory == "" {
		fail("assetCategory", CodeMissingField, "asset category is required")
	}

	numbers := []struct {
		field string
		value float64
	}{
		{"quantity", t.Quantity},
		{"tradePrice", t.TradePrice},
		{"netAmount", t.NetAmount},
	}
	finite := true
	for _, n := range numbers {
		if math.IsNaN(n.value) || math.IsInf(n.value, 0) {
			fail(n.field, CodeNonFinite, fmt.Sprintf("%s must be a finite number", n.field))
			finite = false
		}
	}

	if t.IsOption() {
		var missing []string
		if t.OptionSymbol == "" {
			missing = append(missing, "optionSymbol")
		}
		if t.StrikePrice == nil {
			missing = append(missing, "strikePrice")
		}
		if t.ExpiryDate == nil {
			missing = append(missing, "expiryDate")
		}
		if t.PutCall == "" {
			missing = append(missing, "putCall")
		}
		if len(missing) > 0 {
			warn(strings.Join(missing, ","), CodeOptionIncomplete, "option trade is missing "+strings.Join(missing, ", "))
		}
	}

	if !finite {
		return issues
	}

	issues = append(issues, DetectAnomalies(t, rules)...)
	return issues
}

// DetectAnomalies reports the statistically unusual values of an otherwise valid trade.
// The persistence layer runs the same checks at insert time to fill the audit log.
func DetectAnomalies(t model.Trade, rules Rules) []model.ValidationIssue {
	if rules.LargeQuantity <= 0 {
		rules.LargeQuantity = DefaultLargeQuantity
	}

	var issues []model.ValidationIssue
	if math.Abs(t.Quantity) > rules.LargeQuantity {
		issues = append(issues, model.ValidationIssue{
			Field: "quantity", Code: CodeLargeQuantity, Severity: model.SeverityWarning,
			Message: fmt.Sprintf("quantity %g exceeds %g", t.Quantity, rules.LargeQuantity),
		})
	}
	if t.TradePrice == 0 {
		issues = append(issues, model.ValidationIssue{
			Field: "tradePrice", Code: CodeZeroPrice, Severity: model.SeverityWarning,
			Message: "trade price is zero",
		})
	}
	if t.NetAmount == 0 {
		issues = append(issues, model.ValidationIssue{
			Field: "netAmount", Code: CodeZeroNetAmount, Severity: model.SeverityWarning,
			Message: "net amount is zero",
		})
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []model.ValidationIssue) bool {
	for _, i := range issues {
		if i.Severity == model.SeverityError {
			return true
		}
	}
	return false
}

// Split separates issues into errors and warnings.
func Split(issues []model.ValidationIssue) (errs, warnings []model.ValidationIssue) {
	for _, i := range issues {
		if i.Severity == model.SeverityError {
			errs = append(errs, i)
		} else {
			warnings = append(warnings, i)
		}
	}
	return errs, warnings
}

// Flags returns the codes of the warnings, stored alongside a trade.
func Flags(issues []model.ValidationIssue) []string {
	var flags []string
	for _, i := range issues {
		if i.Severity == model.SeverityWarning {
			flags = append(flags, i.Code)
		}
	}
	return flags
}
