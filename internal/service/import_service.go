package service

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/broker"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/normalize"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/progress"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/repository"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/secret"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/statement"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/trace"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/validation"
)

// DetectFormat tells a multi-section statement from a flat trade export by its first line.
func DetectFormat(firstLine string) string {
	if statement.LooksLikeStatement(firstLine) {
		return model.FormatStatement
	}
	return model.FormatCSV
}

// Invalidator is notified after every import that wrote data.
type Invalidator interface {
	Invalidate()
}

// ImportOptions configures an ImportService. Zero values select the defaults.
type ImportOptions struct {
	Registry       *broker.Registry
	Rules          validation.Rules
	Corrections    statement.UnitCorrections
	ChunkSize      int
	DefaultAccount string
	Sealer         *secret.Sealer
	Publisher      progress.Publisher
	Invalidator    Invalidator
}

// ImportService runs imports end to end: format detection, normalization, persistence,
// run tracking and progress events. Only one import runs at a time.
type ImportService struct {
	db        *sql.DB
	opts      ImportOptions
	tradeRepo *repository.TradeRepository
	runRepo   *repository.ImportRunRepository
	errorRepo *repository.ImportErrorRepository
	gate      *semaphore.Weighted
	log       zerolog.Logger
	now       func() time.Time
}

// NewImportService creates a new ImportService over db.
func NewImportService(db *sql.DB, opts ImportOptions, log zerolog.Logger) *ImportService {
	if opts.Registry == nil {
		opts.Registry = broker.DefaultRegistry()
	}
	if opts.Rules.LargeQuantity <= 0 {
		opts.Rules = validation.DefaultRules()
	}
	if opts.Corrections == nil {
		opts.Corrections = statement.DefaultUnitCorrections()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = normalize.DefaultChunkSize
	}
	if opts.Publisher == nil {
		opts.Publisher = progress.Discard
	}

	return &ImportService{
		db:        db,
		opts:      opts,
		tradeRepo: repository.NewTradeRepository(db, log).WithRules(opts.Rules).WithSealer(opts.Sealer),
		runRepo:   repository.NewImportRunRepository(db),
		errorRepo: repository.NewImportErrorRepository(db),
		gate:      semaphore.NewWeighted(1),
		log:       log.With().Str("component", "import_service").Logger(),
		now:       time.Now,
	}
}

// Exclusive runs fn while holding the import lock. It fails with ErrImportInProgress
// instead of waiting.
func (s *ImportService) Exclusive(fn func() error) error {
	if !s.gate.TryAcquire(1) {
		return apperrors.ErrImportInProgress
	}
	defer s.gate.Release(1)
	return fn()
}

// ImportFile imports the file at path.
func (s *ImportService) ImportFile(ctx context.Context, path string) (model.ImportSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.ImportSummary{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return s.ImportReader(ctx, filepath.Base(path), f, size)
}

// ImportReader imports one file read from r. size is used for progress and may be 0.
// The returned summary is also recorded as an import run, failed or not. Row-level
// problems are reported in the summary; the error is only set when the whole import failed.
func (s *ImportService) ImportReader(ctx context.Context, name string, r io.Reader, size int64) (model.ImportSummary, error) {
	var summary model.ImportSummary
	err := s.Exclusive(func() error {
		var err error
		summary, err = s.run(ctx, name, r, size)
		return err
	})
	return summary, err
}

func (s *ImportService) run(ctx context.Context, name string, r io.Reader, size int64) (model.ImportSummary, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	format := DetectFormat(peekLine(br))

	summary := model.ImportSummary{
		ID:        uuid.NewString(),
		FileName:  name,
		Format:    format,
		Broker:    model.BrokerUnknown,
		Status:    model.ImportStatusRunning,
		Errors:    []model.ValidationIssue{},
		Warnings:  []model.ValidationIssue{},
		StartedAt: s.now().UTC(),
	}

	ctx, span := trace.StartSpan(ctx, "import",
		attribute.String("import.id", summary.ID),
		attribute.String("import.file", name),
		attribute.String("import.format", format),
	)
	defer span.End()

	log := s.log.With().Str("import_id", summary.ID).Str("file", name).Str("format", format).Logger()

	// The run record and the error log must land even when the request was cancelled.
	bg := context.WithoutCancel(ctx)
	if err := s.runRepo.CreateRun(bg, summary); err != nil {
		return summary, fmt.Errorf("failed to record import run: %w", err)
	}
	s.opts.Publisher.Publish(progress.Event{Type: progress.EventStarted, ImportID: summary.ID, FileName: name})

	var err error
	if format == model.FormatStatement {
		err = s.importStatement(ctx, br, &summary)
	} else {
		err = s.importCSV(ctx, br, size, &summary)
	}

	completed := s.now().UTC()
	summary.CompletedAt = &completed
	if err != nil {
		summary.Status = model.ImportStatusFailed
		summary.Message = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Msg("import failed")
	} else {
		summary.Status = model.ImportStatusCompleted
		log.Info().
			Str("broker", string(summary.Broker)).
			Int("rows", summary.RowsProcessed).
			Int("inserted", summary.Inserted).
			Int("duplicates", summary.Duplicates).
			Int("errors", len(summary.Errors)).
			Msg("import completed")
	}
	span.SetAttributes(
		attribute.String("import.broker", string(summary.Broker)),
		attribute.Int("import.inserted", summary.Inserted),
		attribute.Int("import.duplicates", summary.Duplicates),
	)

	if cerr := s.runRepo.CompleteRun(bg, summary); cerr != nil {
		log.Warn().Err(cerr).Msg("failed to complete import run")
	}
	s.logIssues(bg, log, summary)

	if err != nil {
		s.opts.Publisher.Publish(progress.Event{Type: progress.EventFailed, ImportID: summary.ID, FileName: name, Summary: &summary, Error: err.Error()})
		return summary, err
	}
	if summary.Inserted > 0 || summary.Positions > 0 || summary.Account != nil {
		if s.opts.Invalidator != nil {
			s.opts.Invalidator.Invalidate()
		}
	}
	s.opts.Publisher.Publish(progress.Event{Type: progress.EventComplete, ImportID: summary.ID, FileName: name, Summary: &summary})
	return summary, nil
}

// importCSV streams a flat export and stores every valid trade in one batch.
func (s *ImportService) importCSV(ctx context.Context, r io.Reader, size int64, summary *model.ImportSummary) error {
	n := normalize.New(s.opts.Registry, s.opts.Rules, s.opts.ChunkSize, s.log)
	n.AccountID = s.opts.DefaultAccount

	var trades []model.Trade
	err := n.Run(ctx, r, size, normalize.Callbacks{
		OnProgress: func(p model.Progress) {
			s.opts.Publisher.Publish(progress.Event{Type: progress.EventProgress, ImportID: summary.ID, FileName: summary.FileName, Progress: &p})
		},
		OnChunk: func(c model.ChunkResult) error {
			summary.Errors = append(summary.Errors, c.Errors...)
			summary.Warnings = append(summary.Warnings, c.Warnings...)
			return nil
		},
		OnComplete: func(stats model.CompletionStats, all []model.Trade) {
			summary.Broker = stats.Broker
			summary.RowsProcessed = stats.TotalRows
			trades = all
		},
	})
	if err != nil {
		return err
	}

	_, span := trace.StartSpan(ctx, "import.persist", attribute.Int("trades", len(trades)))
	defer span.End()

	result, err := s.tradeRepo.InsertImportBatch(ctx, summary.ID, trades)
	if err != nil {
		return err
	}
	summary.Inserted = result.Inserted
	summary.Duplicates = result.Duplicates
	summary.Anomalies = result.Anomalies
	return nil
}

// importStatement parses a multi-section statement and writes its trades, positions and
// account in one transaction.
func (s *ImportService) importStatement(ctx context.Context, r io.Reader, summary *model.ImportSummary) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read statement: %w", err)
	}
	if len(bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\ufeff")))) == 0 {
		return apperrors.ErrEmptyInput
	}

	sections := statement.Parse(data)
	result := statement.Assemble(sections, statement.Options{
		AccountID:     s.opts.DefaultAccount,
		StatementDate: s.now().UTC(),
		Corrections:   s.opts.Corrections,
	})
	summary.Broker = model.BrokerIBKR
	summary.Account = result.Account
	summary.Errors = append(summary.Errors, result.Errors...)
	summary.Warnings = append(summary.Warnings, result.Warnings...)

	accountID := s.opts.DefaultAccount
	if result.Account != nil && result.Account.AccountID != "" {
		accountID = result.Account.AccountID
	}

	var headers []string
	if sec := sections[statement.SectionTrades]; sec != nil {
		headers = sec.Header
	}

	importedAt := s.now().UTC()
	trades := make([]model.Trade, 0, len(result.Trades)+len(result.OptionTrades))
	seen := broker.Occurrences{}
	for i, row := range result.Trades {
		rowNumber := i + 1
		trade, err := s.opts.Registry.MapRow(model.BrokerIBKR, row.Fields, headers, broker.MapOptions{
			AccountID:       accountID,
			ImportTimestamp: importedAt,
			Occurrences:     seen,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, model.ValidationIssue{
				Row: rowNumber, Code: validation.CodeUnmappable, Severity: model.SeverityError, Message: err.Error(),
			})
			continue
		}
		if trade, ok := s.validate(trade, rowNumber, summary); ok {
			trades = append(trades, trade)
		}
	}
	for _, trade := range result.OptionTrades {
		trade.ImportTimestamp = importedAt
		if trade, ok := s.validate(trade, 0, summary); ok {
			trades = append(trades, trade)
		}
	}
	summary.RowsProcessed = len(result.Trades) + len(result.OptionTrades)

	_, span := trace.StartSpan(ctx, "import.persist",
		attribute.Int("trades", len(trades)),
		attribute.Int("positions", len(result.Positions)),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrBatchRolledBack, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	inserted, err := s.tradeRepo.WithTx(tx).InsertImportBatch(ctx, summary.ID, trades)
	if err != nil {
		return err
	}
	positions, err := repository.NewPositionRepository(s.db, s.log).WithTx(tx).InsertPositions(ctx, result.Positions)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrBatchRolledBack, err)
	}
	if result.Account != nil && result.Account.AccountID != "" {
		if err := repository.NewAccountRepository(s.db).WithTx(tx).UpsertAccount(ctx, *result.Account); err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrBatchRolledBack, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrBatchRolledBack, err)
	}

	summary.Inserted = inserted.Inserted
	summary.Duplicates = inserted.Duplicates
	summary.Anomalies = inserted.Anomalies
	summary.Positions = positions
	return nil
}

// validate applies the row validator and records its issues on summary.
func (s *ImportService) validate(trade model.Trade, row int, summary *model.ImportSummary) (model.Trade, bool) {
	issues := validation.ValidateTrade(trade, s.opts.Rules)
	for i := range issues {
		issues[i].Row = row
	}
	errs, warnings := validation.Split(issues)
	summary.Errors = append(summary.Errors, errs...)
	summary.Warnings = append(summary.Warnings, warnings...)
	if len(errs) > 0 {
		return trade, false
	}
	trade.ValidationFlags = validation.Flags(warnings)
	return trade, true
}

// logIssues copies the row issues of an import into the error log. Failures are logged only.
func (s *ImportService) logIssues(ctx context.Context, log zerolog.Logger, summary model.ImportSummary) {
	entries := make([]model.ImportErrorLog, 0, len(summary.Errors)+len(summary.Warnings))
	for _, issue := range append(append([]model.ValidationIssue{}, summary.Errors...), summary.Warnings...) {
		kind := model.ErrorKindValidation
		if issue.Code == validation.CodeUnmappable {
			kind = model.ErrorKindMapping
		}
		entries = append(entries, model.ImportErrorLog{
			ImportID: summary.ID,
			Kind:     kind,
			Code:     issue.Code,
			Message:  issue.Message,
			Context:  issueContext(summary.FileName, issue),
		})
	}
	if len(entries) == 0 {
		return
	}
	if _, err := s.errorRepo.LogErrors(ctx, entries); err != nil {
		log.Warn().Err(err).Int("entries", len(entries)).Msg("failed to write import error log")
	}
}

func issueContext(file string, issue model.ValidationIssue) string {
	parts := []string{file}
	if issue.Row > 0 {
		parts = append(parts, fmt.Sprintf("row=%d", issue.Row))
	}
	if issue.Field != "" {
		parts = append(parts, "field="+issue.Field)
	}
	parts = append(parts, "severity="+string(issue.Severity))
	return strings.Join(parts, " ")
}

// peekLine returns the first line of br without consuming it.
func peekLine(br *bufio.Reader) string {
	peek, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return ""
	}
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimRight(line, "\r")
}
