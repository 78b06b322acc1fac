package services

import (
	"context"
	"fmt"
	"time"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/config"
	"meetmap-backend/internal/metrics"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// Notification kinds.
const (
	NotifyJoinRequest = "join_request"
	NotifyApproved    = "join_approved"
	NotifyNewFollower = "new_follower"
)

const pushTimeout = 10 * time.Second

// Pusher delivers a push notification to one device.
type Pusher interface {
	Push(ctx context.Context, deviceToken, title, body string, eventID models.ID) error
}

// NopPusher drops every push. Used when APNs is not configured.
type NopPusher struct{}

func (NopPusher) Push(context.Context, string, string, string, models.ID) error { return nil }

// APNsPusher sends pushes through Apple's token-based provider API.
type APNsPusher struct {
	client *apns2.Client
	topic  string
}

// NewPusher builds an APNs pusher from config, or a NopPusher when no key
// is configured.
func NewPusher(cfg config.APNsConfig) (Pusher, error) {
	if cfg.KeyPath == "" {
		return NopPusher{}, nil
	}
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &APNsPusher{client: client, topic: cfg.Topic}, nil
}

func (p *APNsPusher) Push(ctx context.Context, deviceToken, title, body string, eventID models.ID) error {
	pl := payload.NewPayload().AlertTitle(title).AlertBody(body).Sound("default")
	if eventID != "" {
		pl = pl.Custom("eventId", eventID.String())
	}
	res, err := p.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		Payload:     pl,
	})
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}

// push is a delivery queued while the document is locked and sent after
// the update committed.
type push struct {
	deviceToken string
	title       string
	body        string
	eventID     models.ID
}

// outbox collects pushes produced by one document update.
type outbox []push

// NotificationService stores in-app notifications and fans them out to
// registered devices.
type NotificationService struct {
	clock
	gw     *repository.Gateway
	pusher Pusher
}

// NewNotificationService creates a new notification service
func NewNotificationService(gw *repository.Gateway, pusher Pusher) *NotificationService {
	if pusher == nil {
		pusher = NopPusher{}
	}
	return &NotificationService{gw: gw, pusher: pusher}
}

// enqueue records a notification for userID inside an ongoing update and
// queues a push when the user registered a device.
func (s *NotificationService) enqueue(doc *models.Document, box *outbox, userID models.ID, kind, text string, eventID models.ID) {
	doc.Notifications = append(doc.Notifications, models.Notification{
		ID:        newID(),
		UserID:    userID,
		Kind:      kind,
		Text:      text,
		EventID:   eventID,
		Unread:    true,
		CreatedAt: s.Now(),
	})
	user := doc.FindUser(userID)
	if user == nil || user.PushToken == nil || *user.PushToken == "" {
		return
	}
	*box = append(*box, push{deviceToken: *user.PushToken, title: "MeetMap", body: text, eventID: eventID})
}

// flush sends queued pushes in the background. Delivery failures are
// logged and never fail the operation that produced them.
func (s *NotificationService) flush(box outbox) {
	if len(box) == 0 {
		return
	}
	go func() {
		for _, p := range box {
			ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
			err := s.pusher.Push(ctx, p.deviceToken, p.title, p.body, p.eventID)
			cancel()
			if err != nil {
				metrics.PushNotifications.WithLabelValues("failed").Inc()
				log.Warn().Err(err).Str("event_id", p.eventID.String()).Msg("Failed to deliver push")
				continue
			}
			metrics.PushNotifications.WithLabelValues("sent").Inc()
		}
	}()
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID models.ID) ([]models.Notification, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.Notification{}
	for i := len(doc.Notifications) - 1; i >= 0; i-- {
		if doc.Notifications[i].UserID == userID {
			out = append(out, doc.Notifications[i])
		}
	}
	return out, nil
}

// MarkRead clears the unread flag of one of the user's notifications.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id models.ID) error {
	return s.gw.Update(ctx, func(doc *models.Document) error {
		for i := range doc.Notifications {
			n := &doc.Notifications[i]
			if n.ID == id && n.UserID == userID {
				n.Unread = false
				return nil
			}
		}
		return apperr.NotFound("notification not found")
	})
}

// Delete removes one of the user's notifications.
func (s *NotificationService) Delete(ctx context.Context, userID, id models.ID) error {
	return s.gw.Update(ctx, func(doc *models.Document) error {
		for i := range doc.Notifications {
			if doc.Notifications[i].ID == id && doc.Notifications[i].UserID == userID {
				doc.Notifications = append(doc.Notifications[:i], doc.Notifications[i+1:]...)
				return nil
			}
		}
		return apperr.NotFound("notification not found")
	})
}
