package model

import "time"

// Row kinds found in the second column of a multi-section statement.
const (
	RowKindHeader   = "Header"
	RowKindData     = "Data"
	RowKindSubTotal = "SubTotal"
	RowKindTotal    = "Total"
)

// RawRow is one data line of a statement section, with the section name and the row kind stripped.
type RawRow struct {
	Kind  string   `json:"kind"`
	Cells []string `json:"cells"`
}

// RawSection is one named table recovered from a multi-section statement.
type RawSection struct {
	Name   string   `json:"name"`
	Header []string `json:"header"`
	Rows   []RawRow `json:"rows"`
}

// Column returns the index of a header column, or -1.
func (s *RawSection) Column(name string) int {
	for i, h := range s.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Value returns the cell of row under the named column. Rows shorter than the header
// read as empty for their missing trailing cells.
func (s *RawSection) Value(row RawRow, name string) string {
	idx := s.Column(name)
	if idx < 0 || idx >= len(row.Cells) {
		return ""
	}
	return row.Cells[idx]
}

// Record returns row as a header name to cell mapping.
func (s *RawSection) Record(row RawRow) map[string]string {
	record := make(map[string]string, len(s.Header))
	for i, h := range s.Header {
		if i < len(row.Cells) {
			record[h] = row.Cells[i]
		} else {
			record[h] = ""
		}
	}
	return record
}

// Account is the account a statement belongs to.
type Account struct {
	AccountID    string    `json:"accountId"`
	AccountName  string    `json:"accountName"`
	AccountType  string    `json:"accountType"`
	BaseCurrency string    `json:"baseCurrency"`
	Balance      *float64  `json:"balance,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// Position is an open holding reported by a statement.
type Position struct {
	ID            string        `json:"id"`
	AccountID     string        `json:"accountId"`
	Symbol        string        `json:"symbol"`
	Description   string        `json:"description,omitempty"`
	AssetCategory AssetCategory `json:"assetCategory"`
	Currency      string        `json:"currency"`
	Quantity      float64       `json:"quantity"`
	Multiplier    float64       `json:"multiplier"`
	CostPrice     float64       `json:"costPrice"`
	CostBasis     float64       `json:"costBasis"`
	MarketPrice   float64       `json:"marketPrice"`
	MarketValue   float64       `json:"marketValue"`
	UnrealizedPL  float64       `json:"unrealizedPL"`
	RealizedPL    float64       `json:"realizedPL"`
	PutCall       string        `json:"putCall,omitempty"`
	Strike        *float64      `json:"strike,omitempty"`
	Expiry        *time.Time    `json:"expiry,omitempty"`
	StatementDate time.Time     `json:"statementDate"`
}

// RawTradeRow is a Trades section row before canonical mapping. Fields keeps the complete
// header to cell record so the row can be handed to the field mapper unchanged.
type RawTradeRow struct {
	AssetCategory string            `json:"assetCategory"`
	Currency      string            `json:"currency"`
	Symbol        string            `json:"symbol"`
	DateTime      string            `json:"dateTime"`
	Quantity      string            `json:"quantity"`
	Price         string            `json:"price"`
	Proceeds      string            `json:"proceeds"`
	Commission    string            `json:"commission"`
	RealizedPL    string            `json:"realizedPL"`
	Code          string            `json:"code"`
	Fields        map[string]string `json:"fields"`
}

// ImportResult is what the section-based path returns to its caller.
type ImportResult struct {
	Account       *Account          `json:"account,omitempty"`
	StatementDate time.Time         `json:"statementDate"`
	Positions     []Position        `json:"positions"`
	Trades        []RawTradeRow     `json:"trades"`
	OptionTrades  []Trade           `json:"optionTrades"`
	Errors        []ValidationIssue `json:"errors"`
	Warnings      []ValidationIssue `json:"warnings"`
}
