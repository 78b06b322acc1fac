package handlers

import (
	"net/http"
	"time"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/middleware"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/services"
)

// EventHandler handles event, attendance and series requests
type EventHandler struct {
	eventService *services.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(eventService *services.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// CreatedEvent is the first stored occurrence plus, for recurrences, all
// of them.
type CreatedEvent struct {
	models.Event
	Occurrences []models.Event `json:"occurrences,omitempty"`
}

// ApproveRequest is the body of POST /events/{id}/approve
type ApproveRequest struct {
	UserID models.ID `json:"userId"`
}

// ApproveResponse is returned after an approval.
type ApproveResponse struct {
	Status string       `json:"status"`
	Event  models.Event `json:"event"`
}

// CheckInRequest is the body of POST /events/{id}/checkin
type CheckInRequest struct {
	PhotoURL string `json:"photoUrl"`
}

// SeriesUpdateResponse reports how many occurrences an edit touched.
type SeriesUpdateResponse struct {
	OK      bool `json:"ok"`
	Updated int  `json:"updated"`
}

// SeriesJoinResponse reports how many occurrences were joined.
type SeriesJoinResponse struct {
	OK     bool `json:"ok"`
	Joined int  `json:"joined"`
}

// List handles GET /events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.eventService.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// Get handles GET /events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.eventService.Get(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, event)
}

// Create handles POST /events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	created, err := h.eventService.Create(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	resp := CreatedEvent{Event: created[0]}
	if len(created) > 1 {
		resp.Occurrences = created
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Edit handles PUT /events/{id}
func (h *EventHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var patch services.EventPatch
	if err := decodeJSON(r, &patch); err != nil {
		handleError(w, r, err)
		return
	}

	event, err := h.eventService.Edit(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"), patch)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, event)
}

// Delete handles DELETE /events/{id}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.eventService.Delete(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Join handles POST /events/{id}/join
func (h *EventHandler) Join(w http.ResponseWriter, r *http.Request) {
	res, err := h.eventService.Join(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Approve handles POST /events/{id}/approve
func (h *EventHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	event, err := h.eventService.Approve(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"), req.UserID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	status := "attending"
	if !event.AttendeeIDs.Contains(req.UserID) {
		status = "not_requested"
	}
	respondJSON(w, http.StatusOK, ApproveResponse{Status: status, Event: *event})
}

// CheckIn handles POST /events/{id}/checkin
func (h *EventHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	res, err := h.eventService.CheckIn(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"), req.PhotoURL)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Participations handles GET /users/me/participations
func (h *EventHandler) Participations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.ParticipationFilter{
		Status:    q.Get("status"),
		EventType: q.Get("eventType"),
	}
	var err error
	if filter.DateFrom, err = parseDate(q.Get("dateFrom")); err != nil {
		handleError(w, r, err)
		return
	}
	if filter.DateTo, err = parseDate(q.Get("dateTo")); err != nil {
		handleError(w, r, err)
		return
	}

	res, err := h.eventService.Participations(r.Context(), middleware.GetUserID(r.Context()), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// EditSeries handles PUT /events/{id}/series
func (h *EventHandler) EditSeries(w http.ResponseWriter, r *http.Request) {
	var patch services.SeriesPatch
	if err := decodeJSON(r, &patch); err != nil {
		handleError(w, r, err)
		return
	}

	updated, err := h.eventService.EditSeries(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"), patch)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, SeriesUpdateResponse{OK: true, Updated: updated})
}

// ListSeries handles GET /events/{id}/series
func (h *EventHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	listing, err := h.eventService.ListSeries(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, listing)
}

// JoinSeries handles POST /events/{id}/series/join
func (h *EventHandler) JoinSeries(w http.ResponseWriter, r *http.Request) {
	joined, err := h.eventService.JoinSeries(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, SeriesJoinResponse{OK: true, Joined: joined})
}

// CancelOccurrence handles DELETE /events/{id}/occurrence
func (h *EventHandler) CancelOccurrence(w http.ResponseWriter, r *http.Request) {
	if err := h.eventService.CancelOccurrence(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("invalid date %q", value)
}
