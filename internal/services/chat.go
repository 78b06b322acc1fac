package services

import (
	"context"
	"strings"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// ChatService handles event-scoped chat and media.
type ChatService struct {
	clock
	gw  *repository.Gateway
	hub *ChatHub
}

// NewChatService creates a new chat service
func NewChatService(gw *repository.Gateway, hub *ChatHub) *ChatService {
	return &ChatService{gw: gw, hub: hub}
}

// PostMessageRequest is the payload of a chat message.
type PostMessageRequest struct {
	Text     string `json:"text"`
	PhotoURL string `json:"photoUrl"`
}

// PostMessageResponse is returned after a message is stored.
type PostMessageResponse struct {
	Message models.ChatMessage   `json:"message"`
	Chat    []models.ChatMessage `json:"chat"`
	Media   []models.MediaItem   `json:"media"`
	Event   models.Event         `json:"event"`
}

// Messages returns the transcript of an event.
func (s *ChatService) Messages(ctx context.Context, viewer, eventID models.ID) ([]models.ChatMessage, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	if err := visibleEvent(doc, eventID, viewer); err != nil {
		return nil, err
	}
	if msgs := doc.EventChats[eventID]; msgs != nil {
		return msgs, nil
	}
	return []models.ChatMessage{}, nil
}

// Media returns the photo gallery of an event.
func (s *ChatService) Media(ctx context.Context, viewer, eventID models.ID) ([]models.MediaItem, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	if err := visibleEvent(doc, eventID, viewer); err != nil {
		return nil, err
	}
	if items := doc.EventMedia[eventID]; items != nil {
		return items, nil
	}
	return []models.MediaItem{}, nil
}

// Post appends a message to an event chat. A photo also lands in the
// gallery. The author becomes part of the derived attendee projection and
// live subscribers receive the message.
func (s *ChatService) Post(ctx context.Context, authorID, eventID models.ID, req PostMessageRequest) (*PostMessageResponse, error) {
	req.Text = strings.TrimSpace(req.Text)
	req.PhotoURL = strings.TrimSpace(req.PhotoURL)
	if req.Text == "" && req.PhotoURL == "" {
		return nil, apperr.Validation("text or photoUrl is required")
	}

	var resp PostMessageResponse
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		if err := visibleEvent(doc, eventID, authorID); err != nil {
			return err
		}
		author := doc.FindUser(authorID)
		if author == nil {
			return apperr.NotFound("user not found")
		}

		msg := models.ChatMessage{
			ID:           newID(),
			AuthorID:     authorID,
			Author:       author.DisplayName(),
			AuthorAvatar: author.Avatar,
			Text:         req.Text,
			PhotoURL:     req.PhotoURL,
			CreatedAt:    s.Now(),
		}
		doc.EventChats[eventID] = append(doc.EventChats[eventID], msg)
		if req.PhotoURL != "" {
			doc.EventMedia[eventID] = append(doc.EventMedia[eventID], models.MediaItem{
				ID:           msg.ID,
				AuthorID:     authorID,
				Author:       msg.Author,
				AuthorAvatar: msg.AuthorAvatar,
				PhotoURL:     req.PhotoURL,
				CreatedAt:    msg.CreatedAt,
			})
		}

		event := doc.FindEvent(eventID)
		refreshAttendees(doc, event)

		resp = PostMessageResponse{
			Message: msg,
			Chat:    doc.EventChats[eventID],
			Media:   doc.EventMedia[eventID],
			Event:   *event,
		}
		if resp.Media == nil {
			resp.Media = []models.MediaItem{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.hub != nil {
		msg := resp.Message
		event := resp.Event
		s.hub.Broadcast(eventID, WSMessage{Type: "chat_message", EventID: eventID, Chat: &msg, Event: &event})
	}
	log.Info().Str("event_id", eventID.String()).Str("user_id", authorID.String()).Msg("Chat message posted")
	return &resp, nil
}

// CanSubscribe checks that viewer may follow the live chat of eventID.
func (s *ChatService) CanSubscribe(ctx context.Context, viewer, eventID models.ID) error {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return err
	}
	return visibleEvent(doc, eventID, viewer)
}

func visibleEvent(doc *models.Document, eventID, viewer models.ID) error {
	event := doc.FindEvent(eventID)
	if event == nil || !canView(doc, event, viewer) {
		return apperr.NotFound("event not found")
	}
	return nil
}
