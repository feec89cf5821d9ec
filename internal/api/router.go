package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/api/handlers"
	custommiddleware "github.com/ndewijer/Statement-Ledger-Backend/internal/api/middleware"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/config"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/service"
)

// Services groups the services the router exposes.
type Services struct {
	System *service.SystemService
	Import *service.ImportService
	Ledger *service.LedgerService
	// Progress serves the import progress websocket; nil disables the endpoint.
	Progress http.Handler
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, svc Services, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(log))
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(svc.System)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
			r.Post("/reset", systemHandler.Reset)
		})

		r.Route("/import", func(r chi.Router) {
			importHandler := handlers.NewImportHandler(svc.Import, svc.Ledger, svc.Progress)
			r.Post("/", importHandler.Upload)
			r.Get("/runs", importHandler.Runs)
			r.With(custommiddleware.ValidateUUIDMiddleware).Get("/runs/{uuid}", importHandler.Run)
			r.Get("/errors", importHandler.Errors)
			r.Get("/progress", importHandler.Progress)
		})

		tradeHandler := handlers.NewTradeHandler(svc.Ledger)
		r.Route("/trade", func(r chi.Router) {
			r.Get("/", tradeHandler.Trades)
			r.Get("/closed", tradeHandler.ClosedTrades)
			r.With(custommiddleware.ValidateUUIDMiddleware).Get("/{uuid}", tradeHandler.Trade)
		})
		r.Get("/pnl/daily", tradeHandler.DailyPnL)
		r.Get("/position", tradeHandler.Positions)
		r.Get("/account", tradeHandler.Accounts)
	})

	return r
}
