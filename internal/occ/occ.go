// Package occ decodes and encodes option contract symbols.
//
// The canonical form is the OCC symbology: ROOT YYMMDD[C|P]STRIKE*1000, where the root is
// space padded to six characters and the strike is eight digits with three implied decimals,
// for example "SPY   250117C00570000". Broker exports also carry a few display forms that
// ParseOptionSymbol understands.
package occ

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

// Contract is a decoded option contract.
type Contract struct {
	Root    string
	Expiry  time.Time
	PutCall string
	Strike  float64
}

var (
	occPattern = regexp.MustCompile(`^([A-Z0-9.]{1,6})\s*(\d{2})(\d{2})(\d{2})([CP])(\d{1,8})$`)

	// SPY 17JAN25 570 C
	ibkrPattern = regexp.MustCompile(`^([A-Z0-9.]+)\s+(\d{2}[A-Z]{3}\d{2})\s+(\d+(?:\.\d+)?)\s+([CP])$`)

	// SPY 01/17/2025 570.00 C
	schwabPattern = regexp.MustCompile(`^([A-Z0-9.]+)\s+(\d{2}/\d{2}/\d{4})\s+(\d+(?:\.\d+)?)\s+([CP])$`)
)

// Decode parses an OCC symbol. Padding between root and date is optional.
func Decode(symbol string) (Contract, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	m := occPattern.FindStringSubmatch(s)
	if m == nil {
		return Contract{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidOptionSymbol, symbol)
	}

	yy, _ := strconv.Atoi(m[2])
	mm, _ := strconv.Atoi(m[3])
	dd, _ := strconv.Atoi(m[4])
	expiry := time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	if expiry.Month() != time.Month(mm) || expiry.Day() != dd {
		return Contract{}, fmt.Errorf("%w: invalid expiry in %q", apperrors.ErrInvalidOptionSymbol, symbol)
	}

	digits, err := strconv.ParseInt(m[6], 10, 64)
	if err != nil {
		return Contract{}, fmt.Errorf("%w: invalid strike in %q", apperrors.ErrInvalidOptionSymbol, symbol)
	}

	return Contract{
		Root:    m[1],
		Expiry:  expiry,
		PutCall: putCall(m[5]),
		Strike:  float64(digits) / 1000,
	}, nil
}

// Encode renders c in padded OCC form. Decode(Encode(c)) returns c for any contract whose
// strike has at most three decimals.
func Encode(c Contract) string {
	right := "C"
	if c.PutCall == model.PutCallPut {
		right = "P"
	}
	strike := int64(math.Round(c.Strike * 1000))
	return fmt.Sprintf("%-6s%s%s%08d", c.Root, c.Expiry.UTC().Format("060102"), right, strike)
}

// ParseOptionSymbol accepts the OCC form and the IBKR and Schwab display forms.
func ParseOptionSymbol(symbol string) (Contract, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(symbol), " "))

	if c, err := Decode(s); err == nil {
		return c, nil
	}

	if m := ibkrPattern.FindStringSubmatch(s); m != nil {
		expiry, err := time.Parse("02Jan06", titleMonth(m[2]))
		if err != nil {
			return Contract{}, fmt.Errorf("%w: invalid expiry in %q", apperrors.ErrInvalidOptionSymbol, symbol)
		}
		strike, _ := strconv.ParseFloat(m[3], 64)
		return Contract{Root: m[1], Expiry: expiry, PutCall: putCall(m[4]), Strike: strike}, nil
	}

	if m := schwabPattern.FindStringSubmatch(s); m != nil {
		expiry, err := time.Parse("01/02/2006", m[2])
		if err != nil {
			return Contract{}, fmt.Errorf("%w: invalid expiry in %q", apperrors.ErrInvalidOptionSymbol, symbol)
		}
		strike, _ := strconv.ParseFloat(m[3], 64)
		return Contract{Root: m[1], Expiry: expiry, PutCall: putCall(m[4]), Strike: strike}, nil
	}

	return Contract{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidOptionSymbol, symbol)
}

// LooksLikeOption reports whether symbol parses in any supported option form.
func LooksLikeOption(symbol string) bool {
	_, err := ParseOptionSymbol(symbol)
	return err == nil
}

func putCall(right string) string {
	if right == "P" {
		return model.PutCallPut
	}
	return model.PutCallCall
}

// titleMonth turns "17JAN25" into "17Jan25" for time.Parse.
func titleMonth(s string) string {
	return s[:3] + strings.ToLower(s[3:5]) + s[5:]
}
