package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"meetmap-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string              `json:"type"`
	EventID models.ID           `json:"event_id,omitempty"`
	Message string              `json:"message,omitempty"`
	Chat    *models.ChatMessage `json:"chat,omitempty"`
	Event   *models.Event       `json:"event,omitempty"`
	// RetryAfter is set on errors for throttled writes, in seconds.
	RetryAfter int `json:"retryAfter,omitempty"`
}

// subscriber serializes writes to one connection; gorilla connections
// support a single concurrent writer.
type subscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// ChatHub tracks live chat subscribers per event. A user holds at most one
// connection per event; a new one replaces the old.
type ChatHub struct {
	mu          sync.RWMutex
	connections map[models.ID]map[models.ID]*subscriber
}

// NewChatHub creates an empty hub.
func NewChatHub() *ChatHub {
	return &ChatHub{connections: make(map[models.ID]map[models.ID]*subscriber)}
}

// Register subscribes conn to the chat of eventID.
func (h *ChatHub) Register(eventID, userID models.ID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.connections[eventID]
	if !ok {
		subs = make(map[models.ID]*subscriber)
		h.connections[eventID] = subs
	}
	if existing, ok := subs[userID]; ok && existing.conn != conn {
		existing.conn.Close()
	}
	subs[userID] = &subscriber{conn: conn}

	log.Info().Str("event_id", eventID.String()).Str("user_id", userID.String()).Msg("Chat subscriber registered")
}

// Unregister drops the subscription if conn is still the registered one.
func (h *ChatHub) Unregister(eventID, userID models.ID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.connections[eventID]
	if current, ok := subs[userID]; ok && current.conn == conn {
		current.conn.Close()
		delete(subs, userID)
		if len(subs) == 0 {
			delete(h.connections, eventID)
		}
		log.Info().Str("event_id", eventID.String()).Str("user_id", userID.String()).Msg("Chat subscriber unregistered")
	}
}

// Subscribers returns how many connections listen on eventID.
func (h *ChatHub) Subscribers(eventID models.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[eventID])
}

// Broadcast sends message to every subscriber of eventID. Connections that
// fail to receive it are dropped.
func (h *ChatHub) Broadcast(eventID models.ID, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal chat broadcast")
		return
	}

	h.mu.RLock()
	targets := make(map[models.ID]*subscriber, len(h.connections[eventID]))
	for userID, sub := range h.connections[eventID] {
		targets[userID] = sub
	}
	h.mu.RUnlock()

	for userID, sub := range targets {
		if err := sub.write(data); err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to deliver chat broadcast")
			h.Unregister(eventID, userID, sub.conn)
		}
	}
}

// SendToUser writes a message to one subscriber of eventID.
func (h *ChatHub) SendToUser(eventID, userID models.ID, message WSMessage) error {
	h.mu.RLock()
	sub, ok := h.connections[eventID][userID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("user %s is not subscribed to event %s", userID, eventID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := sub.write(data); err != nil {
		h.Unregister(eventID, userID, sub.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// DisconnectUser closes every connection of userID and returns how many
// were closed.
func (h *ChatHub) DisconnectUser(userID models.ID) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	closed := 0
	for eventID, subs := range h.connections {
		sub, ok := subs[userID]
		if !ok {
			continue
		}
		sub.conn.Close()
		delete(subs, userID)
		if len(subs) == 0 {
			delete(h.connections, eventID)
		}
		closed++
	}
	if closed > 0 {
		log.Info().Str("user_id", userID.String()).Int("connections", closed).Msg("Chat subscriber disconnected")
	}
	return closed
}

// CloseAll closes every subscriber connection.
func (h *ChatHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for eventID, subs := range h.connections {
		for _, sub := range subs {
			sub.conn.Close()
		}
		delete(h.connections, eventID)
	}
}
