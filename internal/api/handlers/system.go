package handlers

import (
	"net/http"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/api/response"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/apperrors"
	"github.com/ndewijer/Statement-Ledger-Backend/internal/service"
)

// SystemHandler handles system-related HTTP requests
type SystemHandler struct {
	systemService *service.SystemService
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(systemService *service.SystemService) *SystemHandler {
	return &SystemHandler{
		systemService: systemService,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// Health checks the health of the system and database connectivity
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.systemService.CheckHealth(r.Context()); err != nil {
		response.RespondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "unhealthy",
			Database: "disconnected",
			Error:    err.Error(),
		})
		return
	}

	response.RespondJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Database: "connected",
	})
}

// Version handles GET requests to retrieve version information.
//
// Endpoint: GET /api/system/version
// Response: 200 OK with model.VersionInfo
// Error: 500 Internal Server Error if the schema version cannot be read
func (h *SystemHandler) Version(w http.ResponseWriter, r *http.Request) {
	version, err := h.systemService.CheckVersion(r.Context())
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToGetVersionInfo.Error(), err.Error())
		return
	}
	response.RespondJSON(w, http.StatusOK, version)
}

// Reset drops all ledger data and recreates the schema.
//
// Endpoint: POST /api/system/reset
// Response: 204 No Content
// Error: 403 when reset is disabled, 409 while an import runs
func (h *SystemHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.systemService.Reset(r.Context()); err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToReset)
		return
	}
	requestLog(r).Warn().Msg("ledger reset through the API")
	response.RespondJSON(w, http.StatusNoContent, nil)
}
