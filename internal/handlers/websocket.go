package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/config"
	"meetmap-backend/internal/middleware"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/ratelimit"
	"meetmap-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // tickets authenticate the stream, not the origin
	},
}

// WebSocketHandler streams an event's chat to subscribers
type WebSocketHandler struct {
	hub         *services.ChatHub
	chatService *services.ChatService
	tickets     *services.TicketIssuer
	sessions    *services.SessionManager
	limiter     *ratelimit.Limiter
	limits      config.RateLimitConfig
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.ChatHub,
	chatService *services.ChatService,
	tickets *services.TicketIssuer,
	sessions *services.SessionManager,
	limiter *ratelimit.Limiter,
	limits config.RateLimitConfig,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		chatService: chatService,
		tickets:     tickets,
		sessions:    sessions,
		limiter:     limiter,
		limits:      limits,
	}
}

// subscriber is one open chat stream.
type subscriber struct {
	eventID models.ID
	userID  models.ID
	session string
	ip      string
}

// HandleWebSocket handles GET /events/{id}/chat/ws?ticket=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	eventID := idParam(r, "id")
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		respondError(w, "ticket required", http.StatusUnauthorized)
		return
	}

	claims, err := h.tickets.Validate(ticket, eventID)
	if err != nil {
		log.Warn().Err(err).Str("event_id", eventID.String()).Msg("Rejected chat ticket")
		respondError(w, "invalid ticket", http.StatusUnauthorized)
		return
	}
	userID := claims.UserID
	live, err := h.sessionLive(r.Context(), claims.Session, userID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !live {
		respondError(w, "invalid ticket", http.StatusUnauthorized)
		return
	}
	if err := h.chatService.CanSubscribe(r.Context(), userID, eventID); err != nil {
		handleError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(eventID, userID, conn)
	defer h.hub.Unregister(eventID, userID, conn)

	if err := h.hub.SendToUser(eventID, userID, services.WSMessage{Type: "subscribed", EventID: eventID}); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to send subscribed message")
		return
	}

	log.Info().Str("user_id", userID.String()).Str("event_id", eventID.String()).Msg("WebSocket connection established")

	// the request context ends with the handler, so messages posted from
	// the socket use their own
	ctx := context.Background()
	sub := subscriber{eventID: eventID, userID: userID, session: claims.Session, ip: middleware.ClientIP(r)}
	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID.String()).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			h.sendError(eventID, userID, "invalid message format")
			continue
		}
		if !h.handleMessage(ctx, sub, msg) {
			break
		}
	}
}

// sessionLive reports whether the session a ticket was issued under still
// belongs to userID.
func (h *WebSocketHandler) sessionLive(ctx context.Context, session string, userID models.ID) (bool, error) {
	owner, ok, err := h.sessions.PeekDigest(ctx, session)
	if err != nil {
		return false, err
	}
	return ok && owner == userID, nil
}

// handleMessage processes incoming WebSocket messages. It returns false
// once the stream must close.
func (h *WebSocketHandler) handleMessage(ctx context.Context, sub subscriber, msg services.WSMessage) bool {
	eventID, userID := sub.eventID, sub.userID
	switch msg.Type {
	case "ping":
		h.hub.SendToUser(eventID, userID, services.WSMessage{Type: "pong", EventID: eventID})
	case "chat_message":
		live, err := h.sessionLive(ctx, sub.session, userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to check chat session")
			h.sendError(eventID, userID, "failed to post message")
			return true
		}
		if !live {
			h.sendError(eventID, userID, "session expired")
			return false
		}

		d := h.limiter.Allow(middleware.WriteChecks(h.limits, sub.ip, userID)...)
		if !d.Allowed {
			log.Warn().
				Str("ip", sub.ip).
				Str("user_id", userID.String()).
				Strs("tiers", d.Tiers).
				Int("retry_after", d.RetryAfter).
				Msg("Rate limit exceeded")
			err := h.hub.SendToUser(eventID, userID, services.WSMessage{
				Type:       "error",
				EventID:    eventID,
				Message:    middleware.TooManyRequests,
				RetryAfter: d.RetryAfter,
			})
			if err != nil {
				log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to send error message")
			}
			return true
		}

		// the service broadcasts the stored message to every subscriber
		_, err = h.chatService.Post(ctx, userID, eventID, services.PostMessageRequest{Text: msg.Message})
		if err != nil {
			message := "failed to post message"
			if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
				message = e.Message
			} else {
				log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to post chat message")
			}
			h.sendError(eventID, userID, message)
		}
	default:
		h.sendError(eventID, userID, "unknown message type")
	}
	return true
}

// sendError sends an error message to a subscriber
func (h *WebSocketHandler) sendError(eventID, userID models.ID, message string) {
	err := h.hub.SendToUser(eventID, userID, services.WSMessage{Type: "error", EventID: eventID, Message: message})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to send error message")
	}
}
