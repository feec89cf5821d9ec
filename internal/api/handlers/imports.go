package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/api/request"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/api/response"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/service"
)

// MaxUploadBytes bounds the size of an uploaded statement.
const MaxUploadBytes = 64 << 20

// ImportHandler handles file uploads and import run queries.
type ImportHandler struct {
	importService *service.ImportService
	ledgerService *service.LedgerService
	progress      http.Handler
}

// NewImportHandler creates a new ImportHandler. progress serves the websocket feed and may be nil.
func NewImportHandler(importService *service.ImportService, ledgerService *service.LedgerService, progress http.Handler) *ImportHandler {
	return &ImportHandler{
		importService: importService,
		ledgerService: ledgerService,
		progress:      progress,
	}
}

// Upload imports the multipart field "file".
//
// Endpoint: POST /api/import
// Response: 201 Created with model.ImportSummary
// Error: 400 without a file, 409 while another import runs, 422 when the file is not a
// recognised export (the failed summary is returned in details)
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, apperrors.ErrMissingFile.Error(), err.Error())
		return
	}
	defer file.Close()

	summary, err := h.importService.ImportReader(r.Context(), header.Filename, file, header.Size)
	if err != nil {
		if errors.Is(err, apperrors.ErrImportInProgress) || summary.ID == "" {
			response.RespondServiceError(w, err, apperrors.ErrFailedToImport)
			return
		}
		status := http.StatusInternalServerError
		if errors.Is(err, apperrors.ErrEmptyInput) || errors.Is(err, apperrors.ErrNoHeader) ||
			errors.Is(err, apperrors.ErrBrokerUndetected) || errors.Is(err, apperrors.ErrUnsupportedFormat) {
			status = http.StatusUnprocessableEntity
		}
		response.RespondError(w, status, apperrors.ErrFailedToImport.Error(), summary)
		return
	}

	requestLog(r).Info().Str("import_id", summary.ID).Int("inserted", summary.Inserted).Msg("upload imported")
	response.RespondJSON(w, http.StatusCreated, summary)
}

// Runs lists recent import runs.
//
// Endpoint: GET /api/import/runs?limit=
func (h *ImportHandler) Runs(w http.ResponseWriter, r *http.Request) {
	limit, err := request.ParseLimit(r.URL.Query(), 50)
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveImports)
		return
	}
	runs, err := h.ledgerService.GetImportRuns(r.Context(), limit)
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveImports)
		return
	}
	respondList(w, runs, len(runs))
}

// Run returns one import run.
//
// Endpoint: GET /api/import/runs/{uuid}
func (h *ImportHandler) Run(w http.ResponseWriter, r *http.Request) {
	run, err := h.ledgerService.GetImportRun(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveImports)
		return
	}
	response.RespondJSON(w, http.StatusOK, run)
}

// Errors lists import error log entries.
//
// Endpoint: GET /api/import/errors?import_id=&kind=&limit=
func (h *ImportHandler) Errors(w http.ResponseWriter, r *http.Request) {
	filter, err := request.ParseImportErrorFilter(r.URL.Query())
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveErrors)
		return
	}
	entries, err := h.ledgerService.GetImportErrors(r.Context(), filter)
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveErrors)
		return
	}
	respondList(w, entries, len(entries))
}

// Progress upgrades to a websocket streaming import events.
//
// Endpoint: GET /api/import/progress
func (h *ImportHandler) Progress(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		response.RespondError(w, http.StatusNotFound, "progress feed is not enabled", "")
		return
	}
	h.progress.ServeHTTP(w, r)
}
