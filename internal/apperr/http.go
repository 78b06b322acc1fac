package apperr

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Response is the JSON body of every error response.
type Response struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// Write renders e with the status of its kind. Concealed errors render as
// not found; rate-limited ones also set the Retry-After header.
func Write(w http.ResponseWriter, e *Error) {
	status := e.Kind.HTTPStatus()
	if e.Concealed {
		status = http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/json")
	if e.Kind == KindRateLimited && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Error: e.Message, RetryAfter: e.RetryAfter})
}
