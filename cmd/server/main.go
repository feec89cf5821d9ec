package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/api"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/config"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/database"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/ibkr"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/logging"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/progress"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/secret"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/service"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/statement"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/trace"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/version"
)

// Progress events are throttled per subscriber; start, failure and completion always go out.
const (
	progressInterval = 250 * time.Millisecond
	progressBurst    = 4
	shutdownTimeout  = 30 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	log.Logger = logger

	rules, err := config.LoadRules(cfg.Import.RulesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load import rules")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := trace.Setup(ctx, cfg.Tracing.Enabled, cfg.Tracing.ServiceName, version.Version, os.Stdout)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := database.Initialize(ctx, db, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize schema")
	}
	logger.Info().Str("path", cfg.Database.Path).Msg("connected to database")

	var sealer *secret.Sealer
	if cfg.Import.RawDataKey != "" {
		if sealer, err = secret.NewSealer(cfg.Import.RawDataKey); err != nil {
			logger.Fatal().Err(err).Msg("invalid RAW_DATA_KEY")
		}
	}

	hub := progress.NewHub(rate.Every(progressInterval), progressBurst, cfg.CORS.AllowedOrigins, logger)

	// Create services
	ledgerService := service.NewLedgerService(db, sealer, logger)
	importService := service.NewImportService(db, service.ImportOptions{
		Rules:          rules.Validation,
		Corrections:    statement.DefaultUnitCorrections().Merge(rules.UnitCorrections),
		ChunkSize:      cfg.Import.ChunkSize,
		DefaultAccount: cfg.Import.DefaultAccount,
		Sealer:         sealer,
		Publisher:      hub,
		Invalidator:    ledgerService,
	}, logger)
	systemService := service.NewSystemService(db, importService, ledgerService, cfg.Database.AllowReset, logger)

	var flex ibkr.Client
	if cfg.IBKR.Enabled() {
		flex = ibkr.NewFlexClient(cfg.IBKR.BaseURL, cfg.IBKR.FlexToken, cfg.IBKR.FlexQueryID, logger)
	}
	scheduler := service.NewScheduler(importService, cfg.Import.InboxDir, flex, logger)

	// Create router
	router := api.NewRouter(cfg, api.Services{
		System:   systemService,
		Import:   importService,
		Ledger:   ledgerService,
		Progress: hub,
	}, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     router,
		ReadTimeout: 5 * time.Minute,
		// Uploads and websocket streams outlive a short write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Server.Addr).Str("version", version.Version).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := scheduler.Start(gctx, cfg.Import.Schedule); err != nil {
			return err
		}
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return shutdownTracing(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server exited")
}
