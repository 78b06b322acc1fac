package handlers

import (
	"net/http"
	"time"

	"meetmap-backend/internal/middleware"
	"meetmap-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ChatHandler handles event chat and gallery requests
type ChatHandler struct {
	chatService *services.ChatService
	tickets     *services.TicketIssuer
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *services.ChatService, tickets *services.TicketIssuer) *ChatHandler {
	return &ChatHandler{chatService: chatService, tickets: tickets}
}

// TicketResponse carries a short-lived ticket for the chat stream.
type TicketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Messages handles GET /events/{id}/chat
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatService.Messages(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

// Post handles POST /events/{id}/chat
func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req services.PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	res, err := h.chatService.Post(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Media handles GET /events/{id}/media
func (h *ChatHandler) Media(w http.ResponseWriter, r *http.Request) {
	media, err := h.chatService.Media(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, media)
}

// Ticket handles POST /events/{id}/chat/ticket. Browsers cannot set headers
// on websocket upgrades, so the stream authenticates with this ticket.
func (h *ChatHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	eventID := idParam(r, "id")

	if err := h.chatService.CanSubscribe(r.Context(), userID, eventID); err != nil {
		handleError(w, r, err)
		return
	}
	ticket, exp, err := h.tickets.Issue(userID, eventID, services.SessionDigest(middleware.BearerToken(r)))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to issue chat ticket")
		respondError(w, "failed to issue ticket", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, TicketResponse{Ticket: ticket, ExpiresAt: exp})
}
