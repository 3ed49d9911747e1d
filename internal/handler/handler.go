// Package handler provides the HTTP API: event queries and analytics,
// alert rules and inbox, saved queries, job control, market data, and
// health endpoints.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jofongang/World-Monitor/internal/ingest"
	"github.com/jofongang/World-Monitor/internal/market"
	"github.com/jofongang/World-Monitor/internal/store"
)

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	store   *store.Store
	ingest  *ingest.Service
	markets *market.Service
	logger  *slog.Logger
}

// New creates the API handler.
func New(st *store.Store, ingestSvc *ingest.Service, marketSvc *market.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   st,
		ingest:  ingestSvc,
		markets: marketSvc,
		logger:  logger,
	}
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

// queryInt parses an integer query parameter, clamped to [min, max].
// Missing or malformed values return the default.
func queryInt(r *http.Request, name string, def, min, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func queryString(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

func queryBool(r *http.Request, name string) bool {
	switch strings.ToLower(queryString(r, name)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// decodeBody decodes a JSON request body into out, rejecting bodies
// over 1 MiB.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := decoder.Decode(out); err != nil {
		WriteBadRequest(w, "Invalid JSON body")
		return false
	}
	return true
}
