// Package normalize streams flat broker trade exports into canonical trades.
//
// A file is read chunk by chunk. Each chunk is mapped and validated completely, and its
// callbacks return, before the next chunk is read. Nothing runs concurrently.
package normalize

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/broker"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/statement"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/validation"
)

// DefaultChunkSize is the number of data rows per chunk.
const DefaultChunkSize = 500

// Callbacks receive the output of a stream. Any of them may be nil.
type Callbacks struct {
	// OnProgress is called after every chunk.
	OnProgress func(model.Progress)
	// OnChunk is called with each chunk's result. Returning an error aborts the stream.
	OnChunk func(model.ChunkResult) error
	// OnComplete is called once at the end of input with every valid trade.
	OnComplete func(model.CompletionStats, []model.Trade)
	// OnError is called once when the stream aborts.
	OnError func(error)
}

// Normalizer converts flat trade exports into canonical trades.
type Normalizer struct {
	Registry  *broker.Registry
	Rules     validation.Rules
	ChunkSize int
	// AccountID is assigned to trades whose rows carry no account column.
	AccountID string
	Logger    zerolog.Logger

	now func() time.Time
}

// New creates a Normalizer over registry.
func New(registry *broker.Registry, rules validation.Rules, chunkSize int, log zerolog.Logger) *Normalizer {
	return &Normalizer{
		Registry:  registry,
		Rules:     rules,
		ChunkSize: chunkSize,
		Logger:    log.With().Str("component", "normalizer").Logger(),
	}
}

type phase int

const (
	phaseAwaitingHeader phase = iota
	phaseStreaming
	phaseComplete
	phaseAborted
)

// streamState is the cross-chunk state of one stream. Exactly one step function owns it
// at a time.
type streamState struct {
	phase      phase
	broker     model.Broker
	headers    []string
	rowNumber  int
	successful int
	errorCount int
	warnings   int
	chunkIndex int
	bytesRead  int64
	totalBytes int64
	trades     []model.Trade
	seen       broker.Occurrences
	started    time.Time
	importedAt time.Time
	err        error
}

// Run streams r to the end, or until ctx is cancelled or a callback fails. totalBytes is the
// size of the input, used for the progress percentage; pass 0 when unknown.
// The returned error is the one reported through OnError, nil on completion.
func (n *Normalizer) Run(ctx context.Context, r io.Reader, totalBytes int64, cb Callbacks) error {
	now := n.now
	if now == nil {
		now = time.Now
	}
	chunkSize := n.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	br := bufio.NewReaderSize(r, 64*1024)
	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(br)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	st := &streamState{
		phase:      phaseAwaitingHeader,
		totalBytes: totalBytes,
		seen:       broker.Occurrences{},
		started:    now(),
		importedAt: now().UTC(),
	}

	st = n.readHeader(ctx, cr, st)
	for st.phase == phaseStreaming {
		st = n.processChunk(ctx, cr, st, chunkSize, cb)
	}

	if st.phase == phaseAborted {
		n.Logger.Warn().Err(st.err).Int("rows", st.rowNumber).Msg("import stream aborted")
		if cb.OnError != nil {
			cb.OnError(st.err)
		}
		return st.err
	}

	stats := model.CompletionStats{
		Broker:         st.broker,
		TotalRows:      st.rowNumber,
		SuccessfulRows: st.successful,
		ErrorCount:     st.errorCount,
		WarningCount:   st.warnings,
		Chunks:         st.chunkIndex,
		Duration:       now().Sub(st.started),
	}
	n.Logger.Info().
		Str("broker", string(st.broker)).
		Int("rows", stats.TotalRows).
		Int("successful", stats.SuccessfulRows).
		Int("errors", stats.ErrorCount).
		Int("warnings", stats.WarningCount).
		Msg("import stream complete")

	if cb.OnComplete != nil {
		cb.OnComplete(stats, st.trades)
	}
	return nil
}

// readHeader takes the first record as the header and resolves the broker schema.
func (n *Normalizer) readHeader(ctx context.Context, cr *csv.Reader, st *streamState) *streamState {
	if err := ctx.Err(); err != nil {
		return abort(st, fmt.Errorf("%w: %w", apperrors.ErrImportAborted, err))
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return abort(st, apperrors.ErrEmptyInput)
		}
		if err != nil && !isParseError(err) {
			return abort(st, fmt.Errorf("reading header: %w", err))
		}
		if isBlank(record) {
			continue
		}

		headers := make([]string, len(record))
		for i, h := range record {
			headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		}

		b := n.Registry.Detect(headers)
		if b == model.BrokerUnknown {
			return abort(st, fmt.Errorf("%w: header %q", apperrors.ErrBrokerUndetected, strings.Join(headers, ",")))
		}

		st.headers = headers
		st.broker = b
		st.phase = phaseStreaming
		n.Logger.Debug().Str("broker", string(b)).Strs("headers", headers).Msg("broker detected")
		return st
	}
}

// processChunk reads up to size rows, maps and validates them, and emits the chunk.
// A cancelled context discards the chunk being built.
func (n *Normalizer) processChunk(ctx context.Context, cr *csv.Reader, st *streamState, size int, cb Callbacks) *streamState {
	chunk := model.ChunkResult{Index: st.chunkIndex}
	rows := 0
	eof := false

	for rows < size {
		if err := ctx.Err(); err != nil {
			return abort(st, fmt.Errorf("%w: %w", apperrors.ErrImportAborted, err))
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			eof = true
			break
		}
		if isBlank(record) && err == nil {
			continue
		}

		rows++
		rowNumber := st.rowNumber + rows

		if err != nil {
			if !isParseError(err) {
				return abort(st, fmt.Errorf("reading row %d: %w", rowNumber, err))
			}
			chunk.Errors = append(chunk.Errors, model.ValidationIssue{
				Row: rowNumber, Code: validation.CodeUnmappable, Severity: model.SeverityError,
				Message: err.Error(),
			})
			continue
		}

		trade, err := n.Registry.MapRow(st.broker, toRecord(st.headers, record), st.headers, broker.MapOptions{
			AccountID:       n.AccountID,
			ImportTimestamp: st.importedAt,
			Occurrences:     st.seen,
		})
		if err != nil {
			chunk.Errors = append(chunk.Errors, model.ValidationIssue{
				Row: rowNumber, Code: validation.CodeUnmappable, Severity: model.SeverityError,
				Message: err.Error(),
			})
			continue
		}

		issues := validation.ValidateTrade(trade, n.Rules)
		for i := range issues {
			issues[i].Row = rowNumber
		}
		errs, warnings := validation.Split(issues)
		if len(errs) > 0 {
			chunk.Errors = append(chunk.Errors, errs...)
			continue
		}
		trade.ValidationFlags = validation.Flags(warnings)
		chunk.Warnings = append(chunk.Warnings, warnings...)
		chunk.Trades = append(chunk.Trades, trade)
	}

	if rows > 0 {
		st.rowNumber += rows
		st.successful += len(chunk.Trades)
		st.errorCount += countRows(chunk.Errors)
		st.warnings += len(chunk.Warnings)
		st.bytesRead = cr.InputOffset()
		st.trades = append(st.trades, chunk.Trades...)
		st.chunkIndex++

		if cb.OnChunk != nil {
			if err := cb.OnChunk(chunk); err != nil {
				return abort(st, fmt.Errorf("%w: chunk %d: %w", apperrors.ErrImportAborted, chunk.Index, err))
			}
		}
		if cb.OnProgress != nil {
			cb.OnProgress(st.progress(eof))
		}
	}

	if eof {
		st.phase = phaseComplete
	}
	return st
}

func (st *streamState) progress(done bool) model.Progress {
	p := model.Progress{
		RowsProcessed:  st.rowNumber,
		SuccessfulRows: st.successful,
		ErrorCount:     st.errorCount,
		WarningCount:   st.warnings,
		BytesRead:      st.bytesRead,
		TotalBytes:     st.totalBytes,
	}
	switch {
	case done:
		p.Percent = 100
	case st.totalBytes > 0:
		p.Percent = float64(st.bytesRead) / float64(st.totalBytes) * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p
}

func abort(st *streamState, err error) *streamState {
	st.phase = phaseAborted
	st.err = err
	return st
}

// detectDelimiter peeks at the first line without consuming it.
func detectDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return statement.DetectDelimiter(line)
}

func toRecord(headers, cells []string) map[string]string {
	row := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(cells) {
			row[h] = strings.TrimSpace(cells[i])
		} else {
			row[h] = ""
		}
	}
	return row
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isParseError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}

// countRows counts distinct rows among issues; a row can fail several checks.
func countRows(issues []model.ValidationIssue) int {
	seen := make(map[int]struct{}, len(issues))
	for _, i := range issues {
		seen[i.Row] = struct{}{}
	}
	return len(seen)
}
