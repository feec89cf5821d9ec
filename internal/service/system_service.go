package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/database"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/version"
)

// SystemService handles system-related operations
type SystemService struct {
	db         *sql.DB
	imports    *ImportService
	ledger     *LedgerService
	allowReset bool
	log        zerolog.Logger
}

// NewSystemService creates a new SystemService. Reset is refused unless allowReset is set.
func NewSystemService(db *sql.DB, imports *ImportService, ledger *LedgerService, allowReset bool, log zerolog.Logger) *SystemService {
	return &SystemService{
		db:         db,
		imports:    imports,
		ledger:     ledger,
		allowReset: allowReset,
		log:        log.With().Str("component", "system_service").Logger(),
	}
}

// CheckHealth checks the health of the system
func (s *SystemService) CheckHealth(ctx context.Context) error {
	return database.HealthCheck(ctx, s.db)
}

// CheckVersion reports the application version and the schema version of the store.
func (s *SystemService) CheckVersion(ctx context.Context) (model.VersionInfo, error) {
	current, err := database.SchemaVersion(ctx, s.db)
	if err != nil {
		return model.VersionInfo{}, err
	}
	latest := database.LatestVersion()
	return model.VersionInfo{
		AppVersion:      version.Version,
		SchemaVersion:   current,
		LatestSchema:    latest,
		MigrationNeeded: current < latest,
	}, nil
}

// Reset drops all data and recreates the schema. It waits for no import: when one is
// running it fails with ErrImportInProgress.
func (s *SystemService) Reset(ctx context.Context) error {
	if !s.allowReset {
		return apperrors.ErrResetDisabled
	}

	reset := func() error {
		if err := database.Reset(ctx, s.db, s.log); err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrFailedToReset, err)
		}
		if s.ledger != nil {
			s.ledger.Invalidate()
		}
		s.log.Warn().Msg("database reset")
		return nil
	}
	if s.imports == nil {
		return reset()
	}
	return s.imports.Exclusive(reset)
}
