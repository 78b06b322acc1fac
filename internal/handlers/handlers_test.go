package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"meetmap-backend/internal/config"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/ratelimit"
	"meetmap-backend/internal/repository"
	"meetmap-backend/internal/services"

	"github.com/gorilla/websocket"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newLimitedRouter(t, config.Default().RateLimit)
}

func newLimitedRouter(t *testing.T, limits config.RateLimitConfig) http.Handler {
	t.Helper()

	gw := repository.NewGateway(repository.NewMemoryStore())
	sessions := services.NewSessionManager(gw, 24*time.Hour)
	notifications := services.NewNotificationService(gw, services.NopPusher{})
	hub := services.NewChatHub()
	t.Cleanup(hub.CloseAll)
	sessions.OnRevoke(func(userID models.ID) { hub.DisconnectUser(userID) })
	chat := services.NewChatService(gw, hub)
	tickets := services.NewTicketIssuer("test-secret", time.Minute)
	limiter := ratelimit.New()

	rt := &Router{
		Auth:          NewAuthHandler(services.NewAuthService(gw, sessions, 4)),
		Users:         NewUserHandler(services.NewUserService(gw, notifications)),
		Events:        NewEventHandler(services.NewEventService(gw, notifications)),
		Expenses:      NewExpenseHandler(services.NewExpenseService(gw)),
		Chat:          NewChatHandler(chat, tickets),
		WebSocket:     NewWebSocketHandler(hub, chat, tickets, sessions, limiter, limits),
		Posts:         NewPostHandler(services.NewPostService(gw)),
		Notifications: NewNotificationHandler(notifications),
		Search:        NewSearchHandler(services.NewSearchService(gw)),
		Media:         NewMediaHandler(services.NewMediaService(gw, nil, config.AWSConfig{})),
		Sessions:      sessions,
		Limiter:       limiter,
		RateLimit:     limits,
	}
	return rt.Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
}

func register(t *testing.T, h http.Handler, email, name string) services.AuthResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/auth/register", "", services.RegisterRequest{
		Email: email, Password: "secret123", Name: name, BirthDate: "1990-04-12",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: got %d: %s", email, rec.Code, rec.Body.String())
	}
	var resp services.AuthResponse
	decode(t, rec, &resp)
	return resp
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	var body OKResponse
	decode(t, rec, &body)
	if !body.OK {
		t.Errorf("expected ok:true, got %s", rec.Body.String())
	}
}

func TestAuthFlow(t *testing.T) {
	h := newTestRouter(t)

	first := register(t, h, "ana@example.com", "Ana")
	if first.Token == "" {
		t.Fatal("expected a token on registration")
	}

	rec := do(t, h, http.MethodPost, "/auth/register", "", services.RegisterRequest{
		Email: "ana@example.com", Password: "secret123", Name: "Ana 2", BirthDate: "1990-04-12",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate registration: got %d, want 409", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/auth/login", "", LoginRequest{Email: "ana@example.com", Password: "wrong-pass"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: got %d, want 401", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/auth/login", "", LoginRequest{Username: "ana@example.com", Password: "secret123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got %d: %s", rec.Code, rec.Body.String())
	}
	var second services.AuthResponse
	decode(t, rec, &second)

	if rec := do(t, h, http.MethodGet, "/users/me", first.Token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("replaced token: got %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/users/me", second.Token, nil); rec.Code != http.StatusOK {
		t.Errorf("current token: got %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/users/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: got %d, want 401", rec.Code)
	}
}

func TestEditVersionConflict(t *testing.T) {
	h := newTestRouter(t)
	ana := register(t, h, "ana@example.com", "Ana")

	rec := do(t, h, http.MethodPost, "/events", ana.Token, services.CreateEventRequest{Name: "Picnic"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rec.Code, rec.Body.String())
	}
	var created CreatedEvent
	decode(t, rec, &created)

	path := "/events/" + created.ID.String()
	rec = do(t, h, http.MethodPut, path, ana.Token, map[string]any{"version": 1, "name": "Park picnic"})
	if rec.Code != http.StatusOK {
		t.Fatalf("first edit: got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPut, path, ana.Token, map[string]any{"version": 1, "name": "Beach picnic"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale edit: got %d, want 409", rec.Code)
	}
	var body struct {
		Error          string `json:"error"`
		CurrentVersion int    `json:"currentVersion"`
		CurrentEvent   struct {
			Name string `json:"name"`
		} `json:"currentEvent"`
	}
	decode(t, rec, &body)
	if body.Error != "version conflict" {
		t.Errorf("error = %q", body.Error)
	}
	if body.CurrentVersion != 2 {
		t.Errorf("currentVersion = %d, want 2", body.CurrentVersion)
	}
	if body.CurrentEvent.Name != "Park picnic" {
		t.Errorf("currentEvent.name = %q, want %q", body.CurrentEvent.Name, "Park picnic")
	}
}

func TestBlockedProfileIsNotFound(t *testing.T) {
	h := newTestRouter(t)
	ana := register(t, h, "ana@example.com", "Ana")
	bia := register(t, h, "bia@example.com", "Bia")

	if rec := do(t, h, http.MethodPost, "/users/"+bia.User.ID.String()+"/block", ana.Token, nil); rec.Code != http.StatusOK {
		t.Fatalf("block: got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/users/"+ana.User.ID.String(), bia.Token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("blocked viewer: got %d, want 404", rec.Code)
	}
}

func TestPostCreationRateLimit(t *testing.T) {
	h := newTestRouter(t)
	ana := register(t, h, "ana@example.com", "Ana")

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/posts", ana.Token, services.CreatePostRequest{Text: "hello"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("post %d: got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := do(t, h, http.MethodPost, "/posts", ana.Token, services.CreatePostRequest{Text: "hello"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third post: got %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header")
	}
	var body ErrorResponse
	decode(t, rec, &body)
	if body.RetryAfter < 1 {
		t.Errorf("retryAfter = %d, want >= 1", body.RetryAfter)
	}
}

func TestSearchRejectsBadFilters(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name    string
		filters string
		want    int
	}{
		{"no filters", "", http.StatusOK},
		{"plain dates", `{"dateFrom":"2025-01-01","dateTo":"2025-12-31"}`, http.StatusOK},
		{"malformed json", `{"dateFrom":`, http.StatusBadRequest},
		{"bad date", `{"dateFrom":"yesterday"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/search?q=picnic"
			if tt.filters != "" {
				path += "&filters=" + url.QueryEscape(tt.filters)
			}
			if rec := do(t, h, http.MethodGet, path, "", nil); rec.Code != tt.want {
				t.Errorf("got %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestMediaUploadDisabled(t *testing.T) {
	h := newTestRouter(t)
	ana := register(t, h, "ana@example.com", "Ana")

	rec := do(t, h, http.MethodPost, "/media/upload-url", ana.Token, services.UploadRequest{ContentType: "image/png"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestChatStream(t *testing.T) {
	h := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ana := register(t, h, "ana@example.com", "Ana")
	rec := do(t, h, http.MethodPost, "/events", ana.Token, services.CreateEventRequest{Name: "Picnic"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rec.Code, rec.Body.String())
	}
	var event CreatedEvent
	decode(t, rec, &event)
	base := "/events/" + event.ID.String()

	rec = do(t, h, http.MethodPost, base+"/chat/ticket", ana.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ticket: got %d: %s", rec.Code, rec.Body.String())
	}
	var ticket TicketResponse
	decode(t, rec, &ticket)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + base + "/chat/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL+"?ticket=bogus", nil); err == nil {
		t.Fatal("expected a bogus ticket to be rejected")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bogus ticket: got %d, want 401", resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?ticket="+ticket.Ticket, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg services.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if msg.Type != "subscribed" {
		t.Fatalf("first message type = %q, want subscribed", msg.Type)
	}

	if err := conn.WriteJSON(services.WSMessage{Type: "ping"}); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "pong" {
		t.Fatalf("ping: got %q, %v", msg.Type, err)
	}

	rec = do(t, h, http.MethodPost, base+"/chat", ana.Token, services.PostMessageRequest{Text: "see you there"})
	if rec.Code != http.StatusOK {
		t.Fatalf("post: got %d: %s", rec.Code, rec.Body.String())
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}
	if msg.Type != "chat_message" || msg.Chat == nil || msg.Chat.Text != "see you there" {
		t.Errorf("unexpected broadcast %+v", msg)
	}
}

// openChat creates an event owned by auth and returns its stream URL and a
// fresh ticket for it.
func openChat(t *testing.T, h http.Handler, srv *httptest.Server, auth services.AuthResponse) (string, string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/events", auth.Token, services.CreateEventRequest{Name: "Picnic"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rec.Code, rec.Body.String())
	}
	var event CreatedEvent
	decode(t, rec, &event)
	base := "/events/" + event.ID.String()

	rec = do(t, h, http.MethodPost, base+"/chat/ticket", auth.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ticket: got %d: %s", rec.Code, rec.Body.String())
	}
	var ticket TicketResponse
	decode(t, rec, &ticket)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + base + "/chat/ws", ticket.Ticket
}

func dialChat(t *testing.T, wsURL, ticket string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?ticket="+ticket, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg services.WSMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "subscribed" {
		t.Fatalf("subscribe: got %q, %v", msg.Type, err)
	}
	return conn
}

func TestChatStreamEndsWithLogoutAll(t *testing.T) {
	h := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ana := register(t, h, "ana@example.com", "Ana")
	wsURL, ticket := openChat(t, h, srv, ana)
	conn := dialChat(t, wsURL, ticket)
	defer conn.Close()

	rec := do(t, h, http.MethodPost, "/auth/logout-all", ana.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout-all: got %d: %s", rec.Code, rec.Body.String())
	}

	var msg services.WSMessage
	if err := conn.ReadJSON(&msg); err == nil {
		t.Errorf("expected the open stream to close, got %+v", msg)
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?ticket="+ticket, nil)
	if err == nil {
		t.Fatal("expected a ticket from a revoked session to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("revoked ticket: got %v, want 401", resp)
	}
}

func TestChatStreamWritesAreLimited(t *testing.T) {
	limits := config.Default().RateLimit
	limits.UserWrite = config.Limit{Max: 4, Window: time.Hour}
	h := newLimitedRouter(t, limits)
	srv := httptest.NewServer(h)
	defer srv.Close()

	// creating the event and the ticket spend two of the four writes
	ana := register(t, h, "ana@example.com", "Ana")
	wsURL, ticket := openChat(t, h, srv, ana)
	conn := dialChat(t, wsURL, ticket)
	defer conn.Close()

	for i := 0; i < 5; i++ {
		if err := conn.WriteJSON(services.WSMessage{Type: "chat_message", Message: "hello"}); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
		var msg services.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Failed to read: %v", err)
		}
		if msg.Type == "chat_message" {
			continue
		}
		if msg.Type != "error" {
			t.Fatalf("unexpected frame %+v", msg)
		}
		if i != 2 {
			t.Errorf("limited after %d messages, want 2", i)
		}
		if msg.RetryAfter <= 0 {
			t.Errorf("retryAfter = %d, want positive", msg.RetryAfter)
		}
		if msg.Message != "too many requests, try again later" {
			t.Errorf("message = %q", msg.Message)
		}

		// the HTTP surface shares the same budget
		rec := do(t, h, http.MethodPut, "/users/me", ana.Token, map[string]string{"name": "Ana B"})
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("update after limit: got %d, want 429", rec.Code)
		}
		return
	}
	t.Fatal("expected socket writes to be rate limited")
}
