// Package broker recognises flat broker trade exports and maps their rows onto the
// canonical trade record.
//
// Every supported export is one Schema: the header columns that identify it and a pure
// mapping function. The registry resolves the schema once per file through Detect.
package broker

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

// MapOptions carries per-import context into a mapping function.
type MapOptions struct {
	// AccountID is used when the row itself carries no account column.
	AccountID       string
	ImportTimestamp time.Time
	// Occurrences counts content-derived ids within one file. Repeated identical rows
	// without an execution id get distinct ids in file order; nil disables counting.
	Occurrences Occurrences
}

// Occurrences counts how often each content-derived id has been issued in one file.
type Occurrences map[string]int

// next returns how many times id was issued before and records one more.
func (o Occurrences) next(id string) int {
	if o == nil {
		return 0
	}
	n := o[id]
	o[id] = n + 1
	return n
}

// MapFunc converts one row, keyed by header name, into a canonical trade.
// It returns an error wrapping apperrors.ErrUnmappableRow when the row cannot be converted.
type MapFunc func(row map[string]string, opts MapOptions) (model.Trade, error)

// Schema describes one broker export format.
type Schema struct {
	Broker   model.Broker
	Required []string
	Map      MapFunc
}

// Registry holds the known schemas.
type Registry struct {
	schemas []Schema
}

// NewRegistry creates a registry holding schemas.
func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{}
	for _, s := range schemas {
		r.Register(s)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in broker.
func DefaultRegistry() *Registry {
	return NewRegistry(IBKRSchema(), SchwabSchema(), TastytradeSchema())
}

// Register adds s, replacing any schema already registered for the same broker.
func (r *Registry) Register(s Schema) {
	for i := range r.schemas {
		if r.schemas[i].Broker == s.Broker {
			r.schemas[i] = s
			return
		}
	}
	r.schemas = append(r.schemas, s)
	sort.Slice(r.schemas, func(i, j int) bool {
		return r.schemas[i].Broker < r.schemas[j].Broker
	})
}

// Schema returns the registered schema for b.
func (r *Registry) Schema(b model.Broker) (Schema, bool) {
	for _, s := range r.schemas {
		if s.Broker == b {
			return s, true
		}
	}
	return Schema{}, false
}

// Brokers lists the registered brokers in name order.
func (r *Registry) Brokers() []model.Broker {
	out := make([]model.Broker, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s.Broker)
	}
	return out
}

// MapRow maps row with the schema registered for b. Only columns named in headers are
// kept in the trade's raw record. Option rows whose quantity is a share count are
// converted to contracts, and rows without an id get one derived from their content.
func (r *Registry) MapRow(b model.Broker, row map[string]string, headers []string, opts MapOptions) (model.Trade, error) {
	schema, ok := r.Schema(b)
	if !ok {
		return model.Trade{}, fmt.Errorf("%w: no schema registered for broker %q", apperrors.ErrUnmappableRow, b)
	}

	raw := make(map[string]string, len(headers))
	for _, h := range headers {
		raw[h] = row[h]
	}

	trade, err := schema.Map(raw, opts)
	if err != nil {
		return model.Trade{}, err
	}

	trade.Broker = b
	trade.Raw = raw
	if trade.ImportTimestamp.IsZero() {
		trade.ImportTimestamp = opts.ImportTimestamp
	}
	if trade.AccountID == "" {
		trade.AccountID = opts.AccountID
	}
	if trade.IsOption() {
		normalizeContracts(&trade)
	}
	if trade.ID == "" {
		trade.ID = rowID(b, trade, raw, headers, opts.Occurrences)
	}
	return trade, nil
}

// normalizeContracts converts a share-denominated option quantity into contracts.
func normalizeContracts(t *model.Trade) {
	if abs(t.Quantity) < 100 {
		return
	}
	t.Quantity /= 100
}

// rowID prefers the broker's execution id and falls back to the row content. The n-th
// repeat of identical content in one file hashes n as well, so the first occurrence keeps
// the plain content id and a re-import of the same file yields the same ids.
func rowID(b model.Broker, t model.Trade, raw map[string]string, headers []string, seen Occurrences) string {
	if t.ExecutionID != "" {
		return model.NewRecordID(string(b), t.AccountID, "exec", t.ExecutionID)
	}
	parts := make([]string, 0, len(headers)+3)
	parts = append(parts, string(b), t.AccountID, "row")
	for _, h := range headers {
		parts = append(parts, raw[h])
	}
	id := model.NewRecordID(parts...)
	if n := seen.next(id); n > 0 {
		return model.NewRecordID(id, "occurrence", strconv.Itoa(n))
	}
	return id
}
