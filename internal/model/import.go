package model

import "time"

// Severity separates rows that are dropped from rows that are kept but flagged.
type Severity string

// Severities. SeverityError covers mapping failures and structural validation failures;
// the row never reaches storage. SeverityWarning rows are stored with a flag.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is one problem found while mapping or validating a row.
// Row is the 1-based data row number within the file, 0 when not row-bound.
type ValidationIssue struct {
	Row      int      `json:"row"`
	Field    string   `json:"field,omitempty"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Progress is the snapshot emitted after every processed chunk.
type Progress struct {
	RowsProcessed  int     `json:"rowsProcessed"`
	SuccessfulRows int     `json:"successfulRows"`
	ErrorCount     int     `json:"errorCount"`
	WarningCount   int     `json:"warningCount"`
	BytesRead      int64   `json:"bytesRead"`
	TotalBytes     int64   `json:"totalBytes"`
	Percent        float64 `json:"percent"`
}

// ChunkResult carries the outcome of one chunk.
type ChunkResult struct {
	Index    int               `json:"index"`
	Trades   []Trade           `json:"trades"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// CompletionStats is emitted once when a stream reaches the end of its input.
type CompletionStats struct {
	Broker         Broker        `json:"broker"`
	TotalRows      int           `json:"totalRows"`
	SuccessfulRows int           `json:"successfulRows"`
	ErrorCount     int           `json:"errorCount"`
	WarningCount   int           `json:"warningCount"`
	Chunks         int           `json:"chunks"`
	Duration       time.Duration `json:"duration"`
}

// Import formats.
const (
	FormatStatement = "statement"
	FormatCSV       = "csv"
)

// Import run statuses.
const (
	ImportStatusRunning   = "running"
	ImportStatusCompleted = "completed"
	ImportStatusFailed    = "failed"
)

// ImportSummary describes one import run end to end.
type ImportSummary struct {
	ID            string            `json:"id"`
	FileName      string            `json:"fileName"`
	Format        string            `json:"format"`
	Broker        Broker            `json:"broker"`
	Status        string            `json:"status"`
	RowsProcessed int               `json:"rowsProcessed"`
	Inserted      int               `json:"inserted"`
	Duplicates    int               `json:"duplicates"`
	Anomalies     int               `json:"anomalies"`
	Positions     int               `json:"positions"`
	Account       *Account          `json:"account,omitempty"`
	Errors        []ValidationIssue `json:"errors"`
	Warnings      []ValidationIssue `json:"warnings"`
	Message       string            `json:"message,omitempty"`
	StartedAt     time.Time         `json:"startedAt"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
}

// Import error log kinds.
const (
	ErrorKindAnomaly    = "anomaly"
	ErrorKindMapping    = "mapping"
	ErrorKindValidation = "validation"
)

// ImportErrorLog is one row of the error/audit side table.
type ImportErrorLog struct {
	ID        int64     `json:"id"`
	ImportID  string    `json:"importId,omitempty"`
	TradeID   string    `json:"tradeId,omitempty"`
	Kind      string    `json:"kind"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ImportErrorFilter narrows error log listings.
type ImportErrorFilter struct {
	ImportID string
	Kind     string
	Limit    int
}

// DailyPnL is one day of aggregated trading results for an account.
type DailyPnL struct {
	Date        time.Time `json:"date"`
	AccountID   string    `json:"accountId"`
	TradeCount  int       `json:"tradeCount"`
	RealizedPL  float64   `json:"realizedPL"`
	NetAmount   float64   `json:"netAmount"`
	Commissions float64   `json:"commissions"`
}
