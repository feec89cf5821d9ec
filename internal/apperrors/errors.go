package apperrors

import "errors"

// Ingestion errors are reported while reading and recognising an input file.
// An ingestion error aborts the current import without touching storage.
var (
	// ErrEmptyInput indicates that the input contained no bytes or no non-blank lines.
	ErrEmptyInput = errors.New("empty input")

	// ErrNoHeader indicates that no header row was found before the first data row.
	ErrNoHeader = errors.New("no header row found")

	// ErrBrokerUndetected indicates that the header matched no registered broker schema.
	ErrBrokerUndetected = errors.New("broker could not be detected from header")

	// ErrUnmappableRow indicates that a row could not be converted into a canonical trade.
	// Row-level mapping errors are collected, never returned from an import.
	ErrUnmappableRow = errors.New("row could not be mapped")

	// ErrInvalidOptionSymbol indicates that an option contract symbol could not be decoded.
	ErrInvalidOptionSymbol = errors.New("invalid option symbol")

	// ErrImportAborted indicates that a streaming import was cancelled or a chunk consumer failed.
	ErrImportAborted = errors.New("import aborted")

	// ErrImportInProgress indicates that another import currently holds the ingestion lock.
	ErrImportInProgress = errors.New("an import is already in progress")

	// ErrUnsupportedFormat indicates that a file is neither a multi-section statement nor a flat broker export.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Storage errors represent failures of the persistence layer.
var (
	// ErrBatchRolledBack indicates that a batch insert failed and nothing from it was persisted.
	ErrBatchRolledBack = errors.New("batch rolled back")

	// ErrMigrationFailed indicates that a schema migration failed and the schema version was left unchanged.
	ErrMigrationFailed = errors.New("schema migration failed")

	// ErrSchemaTooNew indicates that the store was written by a newer release than this one.
	ErrSchemaTooNew = errors.New("schema version is newer than supported")

	// ErrResetDisabled indicates that a destructive reset was requested but is not enabled.
	ErrResetDisabled = errors.New("database reset is disabled")
)

// Lookup errors indicate that a requested resource does not exist.
var (
	// ErrTradeNotFound indicates that a trade with the given ID does not exist.
	ErrTradeNotFound = errors.New("trade not found")

	// ErrAccountNotFound indicates that an account with the given ID does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrImportRunNotFound indicates that an import run with the given ID does not exist.
	ErrImportRunNotFound = errors.New("import run not found")
)

// Request errors represent invalid input to the query surface.
var (
	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., start date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidUUID indicates that a provided ID is not a valid UUID format.
	ErrInvalidUUID = errors.New("invalid UUID format")

	ErrMissingFile = errors.New("file is required")
)

// Operation failure errors are what handlers surface when a lower layer fails.
var (
	ErrFailedToRetrieveTrades    = errors.New("failed to retrieve trades")
	ErrFailedToRetrieveTrade     = errors.New("failed to retrieve trade")
	ErrFailedToRetrievePnL       = errors.New("failed to retrieve daily P&L")
	ErrFailedToRetrievePositions = errors.New("failed to retrieve positions")
	ErrFailedToRetrieveAccounts  = errors.New("failed to retrieve accounts")
	ErrFailedToRetrieveImports   = errors.New("failed to retrieve import runs")
	ErrFailedToRetrieveErrors    = errors.New("failed to retrieve import errors")
	ErrFailedToImport            = errors.New("failed to import file")
	ErrFailedToGetVersionInfo    = errors.New("failed to get version information")
	ErrFailedToReset             = errors.New("failed to reset database")

	// ErrFailedToGetFlexReport indicates that the broker's Flex web service did not return a statement.
	ErrFailedToGetFlexReport = errors.New("failed to get flex report")
)
