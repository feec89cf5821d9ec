package statement

import (
	"math"
	"strings"
)

// UnitCorrections lists underlyings whose option positions are exported as share counts
// instead of contracts, keyed by underlying symbol with the divisor that restores contracts.
// This is a named exception table for a known export quirk, not an option rule: symbols
// absent from the table are never rescaled.
type UnitCorrections map[string]float64

// DefaultUnitCorrections is the built-in exception table.
func DefaultUnitCorrections() UnitCorrections {
	return UnitCorrections{"SPY": 100}
}

// Merge returns a copy of u extended (or overridden) by extra.
func (u UnitCorrections) Merge(extra map[string]float64) UnitCorrections {
	out := make(UnitCorrections, len(u)+len(extra))
	for k, v := range u {
		out[k] = v
	}
	for k, v := range extra {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}

// Apply rescales quantity and recomputes the per-share premium for underlying when the
// quantity looks like a share count. It reports whether a correction was applied.
func (u UnitCorrections) Apply(underlying string, quantity, costBasis, multiplier float64) (qty, price float64, ok bool) {
	divisor, found := u[strings.ToUpper(underlying)]
	if !found || divisor <= 0 || math.Abs(quantity) < 100 {
		return quantity, 0, false
	}
	if multiplier <= 0 {
		multiplier = 100
	}

	qty = quantity / divisor
	price = math.Abs(costBasis) / (math.Abs(qty) * multiplier)
	return qty, price, true
}
