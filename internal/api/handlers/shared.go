package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/api/response"
)

// ListResponse wraps a page of items with the total number of matches.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// respondList sends items with the total also exposed in the X-Total-Count header.
func respondList[T any](w http.ResponseWriter, items []T, total int) {
	if items == nil {
		items = []T{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	response.RespondJSON(w, http.StatusOK, ListResponse[T]{Items: items, Total: total})
}

// requestLog returns the logger the Logger middleware stored in the request context.
func requestLog(r *http.Request) *zerolog.Logger {
	return zerolog.Ctx(r.Context())
}
