package services

import (
	"context"
	"testing"
	"time"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
)

func TestChatPostValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, _ := f.register(t, "ana@example.com", "Ana")
	event := f.createEvent(t, ana, CreateEventRequest{}, f.now.Add(24*time.Hour))

	tests := []struct {
		name string
		req  PostMessageRequest
		want apperr.Kind
	}{
		{"empty", PostMessageRequest{}, apperr.KindValidation},
		{"whitespace only", PostMessageRequest{Text: "   "}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.chat.Post(ctx, ana, event.ID, tt.req)
			wantKind(t, err, tt.want)
		})
	}

	_, err := f.chat.Post(ctx, ana, "missing", PostMessageRequest{Text: "hi"})
	wantKind(t, err, apperr.KindNotFound)
}

func TestChatPhotoLandsInGallery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, _ := f.register(t, "ana@example.com", "Ana")
	bob, _ := f.register(t, "bob@example.com", "Bob")
	event := f.createEvent(t, ana, CreateEventRequest{}, f.now.Add(24*time.Hour))

	if _, err := f.chat.Post(ctx, ana, event.ID, PostMessageRequest{Text: "welcome"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	resp, err := f.chat.Post(ctx, bob, event.ID, PostMessageRequest{PhotoURL: "https://cdn.example.com/p.jpg"})
	if err != nil {
		t.Fatalf("Post photo: %v", err)
	}
	if len(resp.Chat) != 2 {
		t.Errorf("chat length = %d, want 2", len(resp.Chat))
	}
	if len(resp.Media) != 1 || resp.Media[0].ID != resp.Message.ID {
		t.Errorf("media = %+v, want the photo message", resp.Media)
	}

	media, err := f.chat.Media(ctx, ana, event.ID)
	if err != nil {
		t.Fatalf("Media: %v", err)
	}
	if len(media) != 1 || media[0].AuthorID != bob {
		t.Errorf("gallery = %+v", media)
	}

	// chatting counts towards the derived attendees without joining
	if resp.Event.AttendeeIDs.Contains(bob) {
		t.Error("chat author must not be written to attendeeIds")
	}
	found := false
	for _, a := range resp.Event.AttendeesList {
		if a.ID == bob {
			found = true
		}
	}
	if !found {
		t.Errorf("attendeesList = %+v, want bob", resp.Event.AttendeesList)
	}
}

func TestChatHiddenFromOutsiders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, _ := f.register(t, "ana@example.com", "Ana")
	bob, _ := f.register(t, "bob@example.com", "Bob")
	event := f.createEvent(t, ana, CreateEventRequest{Visibility: models.VisibilityInviteOnly}, f.now.Add(24*time.Hour))

	if _, err := f.chat.Messages(ctx, bob, event.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("Messages by outsider: %v", err)
	}
	if err := f.chat.CanSubscribe(ctx, bob, event.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("CanSubscribe by outsider: %v", err)
	}
	if err := f.chat.CanSubscribe(ctx, ana, event.ID); err != nil {
		t.Errorf("CanSubscribe by creator: %v", err)
	}

	msgs, err := f.chat.Messages(ctx, ana, event.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("empty transcript = %#v, want an empty slice", msgs)
	}
}
