package services

import (
	"context"
	"testing"
	"time"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

// fixture wires every service against an in-memory document and a clock
// the test controls.
type fixture struct {
	gw            *repository.Gateway
	now           time.Time
	sessions      *SessionManager
	auth          *AuthService
	users         *UserService
	events        *EventService
	expenses      *ExpenseService
	notifications *NotificationService
	posts         *PostService
	search        *SearchService
	hub           *ChatHub
	chat          *ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := repository.NewGateway(repository.NewMemoryStore())
	f := &fixture{
		gw:  gw,
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.sessions = NewSessionManager(gw, 24*time.Hour)
	f.auth = NewAuthService(gw, f.sessions, bcrypt.MinCost)
	f.notifications = NewNotificationService(gw, nil)
	f.users = NewUserService(gw, f.notifications)
	f.events = NewEventService(gw, f.notifications)
	f.expenses = NewExpenseService(gw)
	f.posts = NewPostService(gw)
	f.search = NewSearchService(gw)
	f.hub = NewChatHub()
	f.chat = NewChatService(gw, f.hub)

	clockFn := func() time.Time { return f.now }
	for _, c := range []interface{ SetClock(func() time.Time) }{
		f.sessions, f.auth, f.notifications, f.users, f.events, f.expenses, f.posts, f.search, f.chat,
	} {
		c.SetClock(clockFn)
	}
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// register creates a user and returns its id and token.
func (f *fixture) register(t *testing.T, email, name string) (models.ID, string) {
	t.Helper()
	resp, err := f.auth.Register(context.Background(), RegisterRequest{
		Email:     email,
		Password:  "secret123",
		Name:      name,
		BirthDate: "1990-04-12",
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return resp.User.ID, resp.Token
}

// createEvent stores a single event starting at start and lasting two hours.
func (f *fixture) createEvent(t *testing.T, creator models.ID, req CreateEventRequest, start time.Time) models.Event {
	t.Helper()
	end := start.Add(2 * time.Hour)
	req.StartsAt = &start
	req.EndsAt = &end
	if req.Name == "" {
		req.Name = "Sunset run"
	}
	events, err := f.events.Create(context.Background(), creator, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return events[0]
}

func (f *fixture) doc(t *testing.T) *models.Document {
	t.Helper()
	doc, err := f.gw.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return doc
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}
