package handlers

import (
	"net/http"

	"meetmap-backend/internal/config"
	"meetmap-backend/internal/middleware"
	"meetmap-backend/internal/ratelimit"
	"meetmap-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router holds every handler plus the shared middleware dependencies.
type Router struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Events        *EventHandler
	Expenses      *ExpenseHandler
	Chat          *ChatHandler
	WebSocket     *WebSocketHandler
	Posts         *PostHandler
	Notifications *NotificationHandler
	Search        *SearchHandler
	Media         *MediaHandler

	Sessions  *services.SessionManager
	Limiter   *ratelimit.Limiter
	RateLimit config.RateLimitConfig
}

// Handler builds the HTTP route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(middleware.RateLimit(rt.Limiter, rt.Sessions, rt.RateLimit))

	r.Get("/health", Health)
	r.Handle("/metrics", promhttp.Handler())

	// The stream authenticates with a ticket in the query string.
	r.Get("/events/{id}/chat/ws", rt.WebSocket.HandleWebSocket)

	// Public routes
	r.Post("/auth/register", rt.Auth.Register)
	r.Post("/auth/login", rt.Auth.Login)
	r.Post("/auth/google-mock", rt.Auth.GoogleMock)

	// Readable anonymously, tailored to the viewer when a token is sent
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(rt.Sessions))
		r.Get("/events", rt.Events.List)
		r.Get("/events/{id}", rt.Events.Get)
		r.Get("/users", rt.Users.List)
		r.Get("/users/{id}", rt.Users.Get)
		r.Get("/posts", rt.Posts.List)
		r.Get("/search", rt.Search.Search)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(rt.Sessions))

		r.Post("/auth/logout-all", rt.Auth.LogoutAll)

		r.Get("/users/me", rt.Users.Me)
		r.Put("/users/me", rt.Users.UpdateMe)
		r.Post("/users/me/avatar", rt.Media.Avatar)
		r.Get("/users/me/privacy", rt.Users.Privacy)
		r.Put("/users/me/privacy", rt.Users.UpdatePrivacy)
		r.Put("/users/me/password", rt.Auth.ChangePassword)
		r.Get("/users/me/friends", rt.Users.Friends)
		r.Get("/users/me/favorites", rt.Users.Favorites)
		r.Put("/users/me/favorites", rt.Users.SetFavorites)
		r.Get("/users/me/search-history", rt.Users.SearchHistory)
		r.Put("/users/me/push-token", rt.Users.SetPushToken)
		r.Get("/users/me/participations", rt.Events.Participations)
		r.Post("/users/{id}/follow", rt.Users.Follow)
		r.Post("/users/{id}/block", rt.Users.Block)
		r.Post("/users/{id}/unblock", rt.Users.Unblock)

		r.Post("/events", rt.Events.Create)
		r.Put("/events/{id}", rt.Events.Edit)
		r.Delete("/events/{id}", rt.Events.Delete)
		r.Post("/events/{id}/join", rt.Events.Join)
		r.Post("/events/{id}/approve", rt.Events.Approve)
		r.Post("/events/{id}/checkin", rt.Events.CheckIn)
		r.Get("/events/{id}/series", rt.Events.ListSeries)
		r.Put("/events/{id}/series", rt.Events.EditSeries)
		r.Post("/events/{id}/series/join", rt.Events.JoinSeries)
		r.Delete("/events/{id}/occurrence", rt.Events.CancelOccurrence)

		r.Get("/events/{id}/expenses", rt.Expenses.List)
		r.Post("/events/{id}/expenses", rt.Expenses.Create)
		r.Put("/events/{id}/expenses/{expenseId}", rt.Expenses.Update)
		r.Put("/events/{id}/expenses/{expenseId}/participants/{participantId}", rt.Expenses.SetParticipantStatus)
		r.Delete("/events/{id}/expenses/{expenseId}", rt.Expenses.Delete)

		r.Get("/events/{id}/chat", rt.Chat.Messages)
		r.Post("/events/{id}/chat", rt.Chat.Post)
		r.Post("/events/{id}/chat/ticket", rt.Chat.Ticket)
		r.Get("/events/{id}/media", rt.Chat.Media)

		r.Post("/posts", rt.Posts.Create)
		r.Post("/posts/{id}/like", rt.Posts.Like)
		r.Post("/posts/{id}/comments", rt.Posts.Comment)

		r.Get("/notifications", rt.Notifications.List)
		r.Put("/notifications/{id}/read", rt.Notifications.MarkRead)
		r.Delete("/notifications/{id}", rt.Notifications.Delete)

		r.Post("/media/upload-url", rt.Media.UploadURL)
		r.Post("/media/upload", rt.Media.UploadURL)
	})

	return r
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Retry-After")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
