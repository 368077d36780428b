package report

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// APIResponse mirrors the auth package's response envelope
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError is the error detail in a response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	defaultEvolutionLimit = 100
	defaultTopLimit       = 10
	defaultRecentDays     = 30
	maxLimit              = 1000
)

// Handler handles HTTP requests for the reporting endpoints
type Handler struct {
	repo Repository
}

// NewHandler creates a new reporting handler
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// Stats returns per-disease summary statistics
// GET /api/v1/reports/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load statistics")
		return
	}

	h.writeSuccess(w, map[string]interface{}{"statistics": stats})
}

// Countries lists the countries with data for a disease
// GET /api/v1/reports/diseases/{disease}/countries
func (h *Handler) Countries(w http.ResponseWriter, r *http.Request) {
	disease := chi.URLParam(r, "disease")

	countries, err := h.repo.CountriesForDisease(r.Context(), disease)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load countries")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"disease":   disease,
		"countries": countries,
	})
}

// Evolution returns the time series for one disease and country
// GET /api/v1/reports/evolution/{disease}/{country}?limit=N
func (h *Handler) Evolution(w http.ResponseWriter, r *http.Request) {
	disease := chi.URLParam(r, "disease")
	country := chi.URLParam(r, "country")
	limit := queryInt(r, "limit", defaultEvolutionLimit)

	points, err := h.repo.Evolution(r.Context(), disease, country, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load evolution data")
		return
	}

	if len(points) == 0 {
		h.writeError(w, http.StatusNotFound, "NO_DATA", "No data for this disease and country")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"disease": disease,
		"country": country,
		"data":    points,
	})
}

// Top ranks the countries most affected by a disease
// GET /api/v1/reports/top/{disease}?limit=N
func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	disease := chi.URLParam(r, "disease")
	limit := queryInt(r, "limit", defaultTopLimit)

	top, err := h.repo.TopCountries(r.Context(), disease, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load ranking")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"disease":       disease,
		"top_countries": top,
	})
}

// Recent returns the last days of data across all countries
// GET /api/v1/reports/recent/{disease}?days=N
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	disease := chi.URLParam(r, "disease")
	days := queryInt(r, "days", defaultRecentDays)

	records, err := h.repo.Recent(r.Context(), disease, days)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load recent data")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"disease": disease,
		"days":    days,
		"data":    records,
	})
}

// queryInt parses a positive integer query parameter with a default
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	})
}
