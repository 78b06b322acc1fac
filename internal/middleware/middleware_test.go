package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meetmap-backend/internal/config"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/ratelimit"
	"meetmap-backend/internal/repository"
	"meetmap-backend/internal/services"
)

func newSessions(t *testing.T) (*services.SessionManager, string) {
	t.Helper()
	gw := repository.NewGateway(repository.NewMemoryStore())
	sessions := services.NewSessionManager(gw, 24*time.Hour)

	var token string
	err := gw.Update(context.Background(), func(doc *models.Document) error {
		doc.Users = append(doc.Users, models.User{ID: "42", Username: "ana", Email: "ana@example.com"})
		var err error
		token, err = sessions.Issue(doc, "42")
		return err
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return sessions, token
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetUserID(r.Context())))
}

func TestRequireAuth(t *testing.T) {
	sessions, token := newSessions(t)
	handler := RequireAuth(sessions)(http.HandlerFunc(echoUser))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, ""},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid token", "Bearer " + token, http.StatusOK, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	sessions, token := newSessions(t)
	handler := OptionalAuth(sessions)(http.HandlerFunc(echoUser))

	for header, want := range map[string]string{"": "", "Bearer nope": "", "Bearer " + token: "42"} {
		req := httptest.NewRequest(http.MethodGet, "/events", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Errorf("header %q: status %d body %q", header, rec.Code, rec.Body.String())
		}
	}
}

func TestRateLimit(t *testing.T) {
	sessions, token := newSessions(t)
	cfg := config.RateLimitConfig{
		IPWrite:    config.Limit{Max: 100, Window: time.Minute},
		UserWrite:  config.Limit{Max: 200, Window: time.Minute},
		CreatePost: config.Limit{Max: 2, Window: time.Hour},
	}
	handler := RateLimit(ratelimit.New(), sessions, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send(http.MethodPost, "/posts"); rec.Code != http.StatusNoContent {
			t.Fatalf("post %d: status %d", i+1, rec.Code)
		}
	}

	rec := send(http.MethodPost, "/posts")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third post: status %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == "" || body.RetryAfter < 1 || body.RetryAfter > 3600 {
		t.Errorf("body = %+v", body)
	}

	if rec := send(http.MethodGet, "/posts"); rec.Code != http.StatusNoContent {
		t.Errorf("read was limited: %d", rec.Code)
	}
	if rec := send(http.MethodPost, "/posts/1/like"); rec.Code != http.StatusNoContent {
		t.Errorf("other writes share the post budget: %d", rec.Code)
	}
}

func TestRateLimitPerIP(t *testing.T) {
	sessions, _ := newSessions(t)
	cfg := config.RateLimitConfig{IPWrite: config.Limit{Max: 3, Window: time.Minute}}
	handler := RateLimit(ratelimit.New(), sessions, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := []int{}
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/notifications/1", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[2] != http.StatusOK || codes[3] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health was limited: %d", rec.Code)
	}
}
