package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse = apperr.Response

// conflictResponse is the body of a rejected event edit.
type conflictResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	*services.VersionConflict
}

// OKResponse is the body of operations with nothing else to return.
type OKResponse struct {
	OK bool `json:"ok"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// handleError maps a service error onto the HTTP response. Unclassified
// errors are logged and reported as a generic internal error.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		apperr.Write(w, apperr.Internal(err))
		return
	}

	if e.Kind == apperr.KindConflict && e.Current != nil && !e.Concealed {
		vc, _ := e.Current.(*services.VersionConflict)
		respondJSON(w, http.StatusConflict, conflictResponse{
			Error:           "version conflict",
			Message:         e.Message,
			VersionConflict: vc,
		})
		return
	}
	apperr.Write(w, e)
}

// decodeJSON reads the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validation("invalid request body")
}

// idParam returns a URL parameter as an id.
func idParam(r *http.Request, name string) models.ID {
	return models.ID(strings.TrimSpace(chi.URLParam(r, name)))
}
