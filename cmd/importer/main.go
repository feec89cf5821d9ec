// Command importer imports broker exports and statements from the command line and
// prints one JSON summary per file.
//
//	importer [-db path] [-rules file] [-account id] file...
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/config"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/database"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/logging"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/secret"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/service"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/statement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	rulesFile := flag.String("rules", cfg.Import.RulesFile, "YAML rules file")
	account := flag.String("account", cfg.Import.DefaultAccount, "account id for exports without an account column")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	rules, err := config.LoadRules(*rulesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load import rules")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := database.Initialize(ctx, db, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize schema")
	}

	var sealer *secret.Sealer
	if cfg.Import.RawDataKey != "" {
		if sealer, err = secret.NewSealer(cfg.Import.RawDataKey); err != nil {
			logger.Fatal().Err(err).Msg("invalid RAW_DATA_KEY")
		}
	}

	imports := service.NewImportService(db, service.ImportOptions{
		Rules:          rules.Validation,
		Corrections:    statement.DefaultUnitCorrections().Merge(rules.UnitCorrections),
		ChunkSize:      cfg.Import.ChunkSize,
		DefaultAccount: *account,
		Sealer:         sealer,
	}, logger)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	failed := 0
	for _, path := range flag.Args() {
		summary, err := imports.ImportFile(ctx, path)
		if err != nil {
			failed++
			logger.Error().Err(err).Str("file", path).Msg("import failed")
			if summary.ID == "" {
				continue
			}
		}
		if err := enc.Encode(summary); err != nil {
			logger.Error().Err(err).Msg("failed to write summary")
		}
		if ctx.Err() != nil {
			break
		}
	}

	if failed > 0 {
		stop()
		db.Close()
		os.Exit(1)
	}
}
