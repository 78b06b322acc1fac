package handlers

import (
	"encoding/json"
	"net/http"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/middleware"
	"meetmap-backend/internal/services"
)

// SearchHandler handles the combined event and user search
type SearchHandler struct {
	searchService *services.SearchService
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searchService *services.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search handles GET /search?q=&type=&filters=
//
// filters is a JSON object: {"eventType": "...", "dateFrom": "...", "dateTo": "..."}.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := services.SearchQuery{
		Query: query.Get("q"),
		Type:  query.Get("type"),
	}
	if raw := query.Get("filters"); raw != "" {
		filters, err := parseFilters(raw)
		if err != nil {
			handleError(w, r, err)
			return
		}
		q.Filters = filters
	}

	results, err := h.searchService.Search(r.Context(), middleware.GetUserID(r.Context()), q)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// parseFilters accepts dates as RFC 3339 timestamps or plain YYYY-MM-DD.
func parseFilters(raw string) (services.SearchFilters, error) {
	var in struct {
		EventType string `json:"eventType"`
		DateFrom  string `json:"dateFrom"`
		DateTo    string `json:"dateTo"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return services.SearchFilters{}, apperr.Validation("invalid filters")
	}

	out := services.SearchFilters{EventType: in.EventType}
	var err error
	if out.DateFrom, err = parseDate(in.DateFrom); err != nil {
		return out, err
	}
	if out.DateTo, err = parseDate(in.DateTo); err != nil {
		return out, err
	}
	return out, nil
}
