package middleware

import (
	"net"
	"net/http"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/config"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/ratelimit"
	"meetmap-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// RateLimit throttles mutating requests per client address and per
// session owner, plus dedicated budgets for creating events and posts.
// Reads and the health probe are never limited.
func RateLimit(limiter *ratelimit.Limiter, sessions *services.SessionManager, cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isWrite(r.Method) || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			var userID models.ID
			if token := BearerToken(r); token != "" {
				id, ok, err := sessions.Peek(r.Context(), token)
				if err != nil {
					log.Warn().Err(err).Msg("Failed to look up session for rate limiting")
				}
				if ok {
					userID = id
				}
			}

			checks := WriteChecks(cfg, ip, userID)
			subject := "ip:" + ip
			if userID != "" {
				subject = "user:" + userID.String()
			}
			if r.Method == http.MethodPost {
				switch r.URL.Path {
				case "/events":
					checks = append(checks, ratelimit.Check{Tier: ratelimit.TierCreateEvent, Subject: subject, Limit: cfg.CreateEvent})
				case "/posts":
					checks = append(checks, ratelimit.Check{Tier: ratelimit.TierCreatePost, Subject: subject, Limit: cfg.CreatePost})
				}
			}

			d := limiter.Allow(checks...)
			if !d.Allowed {
				log.Warn().
					Str("ip", ip).
					Str("path", r.URL.Path).
					Strs("tiers", d.Tiers).
					Int("retry_after", d.RetryAfter).
					Msg("Rate limit exceeded")
				apperr.Write(w, apperr.RateLimited(TooManyRequests, d.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// TooManyRequests is the message of every throttled write.
const TooManyRequests = "too many requests, try again later"

// WriteChecks are the tiers every mutating call is charged against: the
// client address and, for a live session, its owner.
func WriteChecks(cfg config.RateLimitConfig, ip string, userID models.ID) []ratelimit.Check {
	checks := []ratelimit.Check{{Tier: ratelimit.TierIP, Subject: ip, Limit: cfg.IPWrite}}
	if userID != "" {
		checks = append(checks, ratelimit.Check{Tier: ratelimit.TierUser, Subject: userID.String(), Limit: cfg.UserWrite})
	}
	return checks
}

// ClientIP is the request's remote host. chi's RealIP middleware has
// already applied X-Forwarded-For / X-Real-IP when present.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
