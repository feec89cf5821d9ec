// Package request parses and validates query parameters of the ledger API.
package request

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/validation"
)

// Paging limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var knownBrokers = map[model.Broker]bool{
	model.BrokerIBKR:       true,
	model.BrokerSchwab:     true,
	model.BrokerTastytrade: true,
}

var knownErrorKinds = map[string]bool{
	model.ErrorKindAnomaly:    true,
	model.ErrorKindMapping:    true,
	model.ErrorKindValidation: true,
}

// ParseTradeFilter reads symbol, broker, account, start_date, end_date, limit and offset.
// All parameters are optional. Failures are returned together as a *validation.Error.
func ParseTradeFilter(q url.Values) (model.TradeFilter, error) {
	verr := &validation.Error{}
	filter := model.TradeFilter{
		Symbol:    strings.TrimSpace(q.Get("symbol")),
		AccountID: strings.TrimSpace(q.Get("account")),
	}

	if b := strings.ToLower(strings.TrimSpace(q.Get("broker"))); b != "" {
		if !knownBrokers[model.Broker(b)] {
			verr.Add("broker", fmt.Sprintf("unknown broker %q", b))
		}
		filter.Broker = model.Broker(b)
	}

	filter.StartDate, filter.EndDate = parseRange(q, verr)
	filter.Limit = parseInt(q, "limit", DefaultLimit, 1, MaxLimit, verr)
	filter.Offset = parseInt(q, "offset", 0, 0, -1, verr)

	return filter, verr.OrNil()
}

// ParseDateRange reads start_date and end_date. Each is optional; when both are given
// start_date must not be after end_date.
func ParseDateRange(q url.Values) (start, end *time.Time, err error) {
	verr := &validation.Error{}
	start, end = parseRange(q, verr)
	return start, end, verr.OrNil()
}

// ParseImportErrorFilter reads import_id, kind and limit.
func ParseImportErrorFilter(q url.Values) (model.ImportErrorFilter, error) {
	verr := &validation.Error{}
	filter := model.ImportErrorFilter{ImportID: strings.TrimSpace(q.Get("import_id"))}

	if k := strings.ToLower(strings.TrimSpace(q.Get("kind"))); k != "" {
		if !knownErrorKinds[k] {
			verr.Add("kind", fmt.Sprintf("unknown kind %q", k))
		}
		filter.Kind = k
	}
	if filter.ImportID != "" {
		if err := validation.ValidateUUID(filter.ImportID); err != nil {
			verr.Add("import_id", err.Error())
		}
	}
	filter.Limit = parseInt(q, "limit", 500, 1, MaxLimit, verr)

	return filter, verr.OrNil()
}

// ParseLimit reads limit with the given default.
func ParseLimit(q url.Values, def int) (int, error) {
	verr := &validation.Error{}
	limit := parseInt(q, "limit", def, 1, MaxLimit, verr)
	return limit, verr.OrNil()
}

func parseRange(q url.Values, verr *validation.Error) (start, end *time.Time) {
	if s := q.Get("start_date"); s != "" {
		t, err := parseFilterTime(s)
		if err != nil {
			verr.Add("start_date", err.Error())
		} else {
			start = &t
		}
	}
	if s := q.Get("end_date"); s != "" {
		t, err := parseFilterTime(s)
		if err != nil {
			verr.Add("end_date", err.Error())
		} else {
			end = &t
		}
	}
	if start != nil && end != nil && start.After(*end) {
		verr.Add("end_date", "must not be before start_date")
	}
	return start, end
}

// parseInt reads an integer bounded by [lo, hi]; hi < 0 means unbounded.
func parseInt(q url.Values, key string, def, lo, hi int, verr *validation.Error) int {
	s := q.Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		verr.Add(key, "must be a number")
		return def
	}
	if n < lo || (hi >= 0 && n > hi) {
		if hi >= 0 {
			verr.Add(key, fmt.Sprintf("must be between %d and %d", lo, hi))
		} else {
			verr.Add(key, fmt.Sprintf("must be at least %d", lo))
		}
		return def
	}
	return n
}

// parseFilterTime parses date strings for filter parameters.
// Accepts YYYY-MM-DD, RFC3339, and RFC3339 with milliseconds formats.
func parseFilterTime(str string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05.000Z07:00"} {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date or datetime", str)
}
