package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/ibkr"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

// Inbox subdirectories imported files are moved to.
const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Scheduler periodically imports files dropped in an inbox directory and, when a Flex
// client is configured, downloads and imports the latest Flex statement.
type Scheduler struct {
	imports *ImportService
	inbox   string
	flex    ibkr.Client
	cron    *cron.Cron
	log     zerolog.Logger
}

// NewScheduler creates a Scheduler. inbox may be empty and flex may be nil to disable either job.
func NewScheduler(imports *ImportService, inbox string, flex ibkr.Client, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	return &Scheduler{
		imports: imports,
		inbox:   inbox,
		flex:    flex,
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:     log,
	}
}

// Start schedules RunOnce on the cron schedule and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	if s.inbox == "" && s.flex == nil {
		s.log.Info().Msg("no inbox or flex query configured, scheduler idle")
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid import schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", schedule).Str("inbox", s.inbox).Bool("flex", s.flex != nil).Msg("scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce runs every configured job once.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.inbox != "" {
		if _, err := s.ScanInbox(ctx); err != nil {
			s.log.Error().Err(err).Msg("inbox scan failed")
		}
	}
	if s.flex != nil {
		if _, err := s.FetchFlex(ctx); err != nil {
			s.log.Error().Err(err).Msg("flex import failed")
		}
	}
}

// ScanInbox imports every *.csv file of the inbox in name order and returns the number
// imported. Imported files move to processed/, files that failed to import to failed/.
// When another import holds the lock, or the scan is cancelled, it stops and leaves the
// current and remaining files in the inbox.
func (s *Scheduler) ScanInbox(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.inbox)
	if err != nil {
		return 0, fmt.Errorf("failed to read inbox: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	imported := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return imported, err
		}

		path := filepath.Join(s.inbox, name)
		summary, err := s.imports.ImportFile(ctx, path)
		if errors.Is(err, apperrors.ErrImportInProgress) {
			s.log.Info().Str("file", name).Msg("import in progress, inbox scan deferred")
			return imported, nil
		}
		if errors.Is(err, apperrors.ErrImportAborted) || ctx.Err() != nil {
			s.log.Info().Str("file", name).Msg("inbox scan interrupted, file left for the next run")
			if cerr := ctx.Err(); cerr != nil {
				return imported, cerr
			}
			return imported, err
		}

		target := processedDir
		if err != nil {
			target = failedDir
			s.log.Warn().Err(err).Str("file", name).Msg("inbox file failed to import")
		} else {
			imported++
			s.log.Info().Str("file", name).Int("inserted", summary.Inserted).Int("duplicates", summary.Duplicates).Msg("inbox file imported")
		}
		if err := moveFile(path, filepath.Join(s.inbox, target)); err != nil {
			return imported, err
		}
	}
	return imported, nil
}

// FetchFlex downloads the configured Flex statement and imports it.
func (s *Scheduler) FetchFlex(ctx context.Context) (model.ImportSummary, error) {
	if s.flex == nil {
		return model.ImportSummary{}, fmt.Errorf("%w: flex download is not configured", apperrors.ErrFailedToGetFlexReport)
	}
	report, err := s.flex.FetchStatement(ctx)
	if err != nil {
		return model.ImportSummary{}, err
	}
	return s.imports.ImportReader(ctx, report.FileName, bytes.NewReader(report.Data), int64(len(report.Data)))
}

func moveFile(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
		return fmt.Errorf("failed to move %s: %w", path, err)
	}
	return nil
}

// cronLogger routes cron's logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
