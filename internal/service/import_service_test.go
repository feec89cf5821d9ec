package service_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/progress"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/repository"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/service"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/testutil"
)

// eventRecorder is a progress.Publisher that keeps every event.
type eventRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *eventRecorder) Publish(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []progress.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"Statement,Header,Field Name,Field Value", model.FormatStatement},
		{"\ufeffStatement,Header,Field Name,Field Value", model.FormatStatement},
		{"Trades\tHeader\tDataDiscriminator", model.FormatStatement},
		{"DataDiscriminator,Asset Category,Currency,Symbol", model.FormatCSV},
		{"Date,Action,Symbol", model.FormatCSV},
		{"", model.FormatCSV},
	}
	for _, tt := range tests {
		if got := service.DetectFormat(tt.line); got != tt.want {
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.line, got, tt.want)
		}
	}
}

// TestImportService_ImportReader_CSV verifies a flat export import end to end.
//
// WHY: The streaming path must keep unmappable rows out of storage, store flagged rows,
// record the run and its issues, and deduplicate a re-import of the same file.
func TestImportService_ImportReader_CSV(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	events := &eventRecorder{}
	svc := service.NewImportService(db, service.ImportOptions{ChunkSize: 2, Publisher: events}, zerolog.Nop())

	summary, err := svc.ImportReader(ctx, "trades.csv", strings.NewReader(testutil.IBKRTradesCSV), int64(len(testutil.IBKRTradesCSV)))
	if err != nil {
		t.Fatalf("ImportReader failed: %v", err)
	}

	if summary.Format != model.FormatCSV || summary.Broker != model.BrokerIBKR || summary.Status != model.ImportStatusCompleted {
		t.Errorf("Unexpected summary header %+v", summary)
	}
	if summary.RowsProcessed != 4 || summary.Inserted != 3 || summary.Duplicates != 0 {
		t.Errorf("Expected 4 rows and 3 inserted, got %d rows, %d inserted, %d duplicates",
			summary.RowsProcessed, summary.Inserted, summary.Duplicates)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].Row != 3 {
		t.Errorf("Expected one error on row 3, got %+v", summary.Errors)
	}
	if summary.Anomalies != 1 {
		t.Errorf("Expected 1 anomaly, got %d", summary.Anomalies)
	}
	testutil.AssertRowCount(t, db, "trades", 3)
	testutil.AssertRowCount(t, db, "import_run", 1)

	// mapping error + large quantity warning + large quantity anomaly
	testutil.AssertRowCount(t, db, "import_error_log", 3)

	types := events.types()
	if len(types) < 3 || types[0] != progress.EventStarted || types[len(types)-1] != progress.EventComplete {
		t.Errorf("Unexpected event sequence %v", types)
	}

	t.Run("re-import deduplicates", func(t *testing.T) {
		again, err := svc.ImportReader(ctx, "trades.csv", strings.NewReader(testutil.IBKRTradesCSV), 0)
		if err != nil {
			t.Fatalf("Re-import failed: %v", err)
		}
		if again.Inserted != 0 || again.Duplicates != 3 {
			t.Errorf("Expected 0 inserted and 3 duplicates, got %d and %d", again.Inserted, again.Duplicates)
		}
		testutil.AssertRowCount(t, db, "trades", 3)
		testutil.AssertRowCount(t, db, "import_run", 2)
	})
}

func TestImportService_ImportReader_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown header", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		events := &eventRecorder{}
		svc := service.NewImportService(db, service.ImportOptions{Publisher: events}, zerolog.Nop())

		summary, err := svc.ImportReader(ctx, "unknown.csv", strings.NewReader(testutil.UnknownHeaderCSV), 0)
		if !errors.Is(err, apperrors.ErrBrokerUndetected) {
			t.Fatalf("Expected ErrBrokerUndetected, got %v", err)
		}
		if summary.Status != model.ImportStatusFailed || summary.Inserted != 0 {
			t.Errorf("Expected failed run with nothing inserted, got %+v", summary)
		}
		testutil.AssertRowCount(t, db, "trades", 0)

		run, err := repository.NewImportRunRepository(db).GetRun(ctx, summary.ID)
		if err != nil || run.Status != model.ImportStatusFailed || run.Message == "" {
			t.Errorf("Expected failed run recorded with message, got %+v (%v)", run, err)
		}
		types := events.types()
		if types[len(types)-1] != progress.EventFailed {
			t.Errorf("Expected final failed event, got %v", types)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestImportService(t, db, nil)

		if _, err := svc.ImportReader(ctx, "empty.csv", strings.NewReader(""), 0); !errors.Is(err, apperrors.ErrEmptyInput) {
			t.Errorf("Expected ErrEmptyInput, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestImportService(t, db, nil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.ImportReader(cctx, "trades.csv", strings.NewReader(testutil.IBKRTradesCSV), 0)
		if !errors.Is(err, apperrors.ErrImportAborted) {
			t.Errorf("Expected ErrImportAborted, got %v", err)
		}
		testutil.AssertRowCount(t, db, "trades", 0)
		testutil.AssertRowCount(t, db, "import_run", 1)
	})
}

// blockingReader blocks the first Read until release is closed.
type blockingReader struct {
	started chan struct{}
	release chan struct{}
	r       io.Reader
	once    sync.Once
}

func (b *blockingReader) Read(p []byte) (int, error) {
	b.once.Do(func() {
		close(b.started)
		<-b.release
	})
	return b.r.Read(p)
}

// TestImportService_Serialized verifies that a second import is refused while one runs.
//
// WHY: Imports share one write connection and one daily summary; overlapping runs are
// rejected rather than queued.
func TestImportService_Serialized(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestImportService(t, db, nil)

	slow := &blockingReader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		r:       strings.NewReader(testutil.IBKRTradesCSV),
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.ImportReader(ctx, "slow.csv", slow, 0)
		done <- err
	}()
	<-slow.started

	_, err := svc.ImportReader(ctx, "second.csv", strings.NewReader(testutil.IBKRTradesCSV), 0)
	if !errors.Is(err, apperrors.ErrImportInProgress) {
		t.Errorf("Expected ErrImportInProgress, got %v", err)
	}

	close(slow.release)
	if err := <-done; err != nil {
		t.Fatalf("First import failed: %v", err)
	}
	testutil.AssertRowCount(t, db, "import_run", 1)
}

// TestImportService_Statement verifies the multi-section path.
//
// WHY: Trades, positions and the account of a statement are written together; the open
// SPY call position yields a synthetic opening trade next to the reported trades.
func TestImportService_Statement(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	ledger := testutil.NewTestLedgerService(t, db)
	svc := testutil.NewTestImportService(t, db, ledger)

	summary, err := svc.ImportReader(ctx, "activity.csv", strings.NewReader(testutil.ActivityStatement), 0)
	if err != nil {
		t.Fatalf("ImportReader failed: %v", err)
	}
	if summary.Format != model.FormatStatement || summary.Broker != model.BrokerIBKR {
		t.Errorf("Expected IBKR statement, got %s %s", summary.Format, summary.Broker)
	}
	if summary.Inserted != 3 || summary.Positions != 2 {
		t.Errorf("Expected 3 trades and 2 positions, got %d and %d (errors %+v)", summary.Inserted, summary.Positions, summary.Errors)
	}
	if summary.Account == nil || summary.Account.AccountID != "U1234567" {
		t.Fatalf("Expected account U1234567, got %+v", summary.Account)
	}

	positions, err := ledger.GetPositions(ctx, "U1234567")
	if err != nil {
		t.Fatal(err)
	}
	var spy *model.Position
	for i := range positions {
		if strings.HasPrefix(positions[i].Symbol, "SPY") {
			spy = &positions[i]
		}
	}
	if spy == nil || spy.Quantity != 1 || spy.CostBasis != 83.15665 {
		t.Errorf("Expected SPY call with qty 1 and cost basis 83.15665, got %+v", spy)
	}

	accounts, err := ledger.GetAccounts(ctx)
	if err != nil || len(accounts) != 1 || accounts[0].AccountName != "Jane Doe" {
		t.Errorf("Expected Jane Doe's account, got %+v (%v)", accounts, err)
	}

	t.Run("re-import", func(t *testing.T) {
		again, err := svc.ImportReader(ctx, "activity.csv", strings.NewReader(testutil.ActivityStatement), 0)
		if err != nil {
			t.Fatal(err)
		}
		if again.Inserted != 0 || again.Duplicates != 3 {
			t.Errorf("Expected all duplicates, got %d inserted %d duplicates", again.Inserted, again.Duplicates)
		}
		testutil.AssertRowCount(t, db, "positions", 2)
		testutil.AssertRowCount(t, db, "accounts", 1)
	})
}

// TestImportService_RepeatedExecutions verifies separate fills with identical rows are all stored.
//
// WHY: Schwab exports only carry the trade date, so two equal fills on one day produce two
// identical lines. Both are real trades; dropping one as a duplicate would understate the
// position and P&L. Importing the same file again must still insert nothing.
func TestImportService_RepeatedExecutions(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestImportService(t, db, nil)

	summary, err := svc.ImportReader(ctx, "fills.csv", strings.NewReader(testutil.SchwabRepeatedFillsCSV), 0)
	if err != nil {
		t.Fatalf("ImportReader failed: %v", err)
	}
	if summary.RowsProcessed != 2 || summary.Inserted != 2 || summary.Duplicates != 0 {
		t.Errorf("Expected 2 rows inserted without duplicates, got %d rows, %d inserted, %d duplicates",
			summary.RowsProcessed, summary.Inserted, summary.Duplicates)
	}
	testutil.AssertRowCount(t, db, "trades", 2)

	t.Run("re-import", func(t *testing.T) {
		again, err := svc.ImportReader(ctx, "fills.csv", strings.NewReader(testutil.SchwabRepeatedFillsCSV), 0)
		if err != nil {
			t.Fatal(err)
		}
		if again.Inserted != 0 || again.Duplicates != 2 {
			t.Errorf("Expected 0 inserted and 2 duplicates, got %d and %d", again.Inserted, again.Duplicates)
		}
		testutil.AssertRowCount(t, db, "trades", 2)
	})
}

func TestImportService_ImportFile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestImportService(t, db, nil)

	path := filepath.Join(t.TempDir(), "schwab.csv")
	if err := os.WriteFile(path, []byte(testutil.SchwabTradesCSV), 0o600); err != nil {
		t.Fatal(err)
	}

	summary, err := svc.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if summary.FileName != "schwab.csv" || summary.Broker != model.BrokerSchwab || summary.Inserted != 2 {
		t.Errorf("Unexpected summary %+v", summary)
	}

	if _, err := svc.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("Expected error for a missing file")
	}
}
