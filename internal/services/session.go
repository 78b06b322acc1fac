package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"meetmap-backend/internal/metrics"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

const tokenBytes = 24

// SessionManager issues and resolves opaque bearer tokens. A user holds at
// most one live session: issuing a token evicts every older one.
type SessionManager struct {
	clock
	gw       *repository.Gateway
	timeout  time.Duration
	onRevoke []func(userID models.ID)
}

// NewSessionManager creates a session manager expiring sessions idle for
// longer than timeout.
func NewSessionManager(gw *repository.Gateway, timeout time.Duration) *SessionManager {
	return &SessionManager{gw: gw, timeout: timeout}
}

// Issue creates a session for userID inside an ongoing document update,
// evicting the user's previous sessions first.
func (m *SessionManager) Issue(doc *models.Document, userID models.ID) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	revokeUser(doc, userID)
	now := m.Now()
	doc.Tokens = append(doc.Tokens, models.Session{
		Token:        token,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
	})
	metrics.SessionsIssued.Inc()
	return token, nil
}

// Resolve returns the owner of token and refreshes its lastActivity. An
// unknown or expired token yields a nil user and no error; an expired
// session is deleted on the way. Errors are storage failures only.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}

	var user *models.User
	err := m.gw.Update(ctx, func(doc *models.Document) error {
		idx := findSession(doc, token)
		if idx < 0 {
			return repository.ErrSkipSave
		}
		session := &doc.Tokens[idx]
		now := m.Now()
		if m.expired(session, now) {
			log.Info().Str("user_id", session.UserID.String()).Msg("Session expired")
			doc.Tokens = append(doc.Tokens[:idx], doc.Tokens[idx+1:]...)
			metrics.SessionsExpired.Inc()
			return nil
		}
		session.LastActivity = now
		if u := doc.FindUser(session.UserID); u != nil {
			found := *u
			user = &found
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	return user, nil
}

// Peek returns the owner of a live token without touching lastActivity.
func (m *SessionManager) Peek(ctx context.Context, token string) (models.ID, bool, error) {
	if token == "" {
		return "", false, nil
	}
	doc, err := m.gw.Read(ctx)
	if err != nil {
		return "", false, err
	}
	idx := findSession(doc, token)
	if idx < 0 || m.expired(&doc.Tokens[idx], m.Now()) {
		return "", false, nil
	}
	return doc.Tokens[idx].UserID, true, nil
}

// SessionDigest identifies a session without exposing its token.
func SessionDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// PeekDigest is Peek for a session known only by its digest.
func (m *SessionManager) PeekDigest(ctx context.Context, digest string) (models.ID, bool, error) {
	if digest == "" {
		return "", false, nil
	}
	doc, err := m.gw.Read(ctx)
	if err != nil {
		return "", false, err
	}
	now := m.Now()
	for i := range doc.Tokens {
		if SessionDigest(doc.Tokens[i].Token) == digest {
			if m.expired(&doc.Tokens[i], now) {
				return "", false, nil
			}
			return doc.Tokens[i].UserID, true, nil
		}
	}
	return "", false, nil
}

// OnRevoke registers fn to run after every RevokeAll.
func (m *SessionManager) OnRevoke(fn func(userID models.ID)) {
	m.onRevoke = append(m.onRevoke, fn)
}

// Revoke deletes a single session.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	return m.gw.Update(ctx, func(doc *models.Document) error {
		idx := findSession(doc, token)
		if idx < 0 {
			return repository.ErrSkipSave
		}
		doc.Tokens = append(doc.Tokens[:idx], doc.Tokens[idx+1:]...)
		return nil
	})
}

// RevokeAll deletes every session of userID and returns how many were removed.
func (m *SessionManager) RevokeAll(ctx context.Context, userID models.ID) (int, error) {
	var removed int
	err := m.gw.Update(ctx, func(doc *models.Document) error {
		removed = revokeUser(doc, userID)
		if removed == 0 {
			return repository.ErrSkipSave
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, fn := range m.onRevoke {
		fn(userID)
	}
	log.Info().Str("user_id", userID.String()).Int("sessions", removed).Msg("Sessions revoked")
	return removed, nil
}

// Sweep deletes every expired session.
func (m *SessionManager) Sweep(ctx context.Context) (int, error) {
	var removed int
	err := m.gw.Update(ctx, func(doc *models.Document) error {
		now := m.Now()
		kept := doc.Tokens[:0]
		for _, s := range doc.Tokens {
			if m.expired(&s, now) {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		doc.Tokens = kept
		if removed == 0 {
			return repository.ErrSkipSave
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.SessionsExpired.Add(float64(removed))
	return removed, nil
}

// RunSweeper sweeps expired sessions every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := m.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Failed to sweep sessions")
				continue
			}
			if removed > 0 {
				log.Info().Int("removed", removed).Msg("Expired sessions swept")
			}
		}
	}
}

func (m *SessionManager) expired(s *models.Session, now time.Time) bool {
	return now.Sub(s.LastSeen()) > m.timeout
}

func findSession(doc *models.Document, token string) int {
	for i := range doc.Tokens {
		if doc.Tokens[i].Token == token {
			return i
		}
	}
	return -1
}

func revokeUser(doc *models.Document, userID models.ID) int {
	kept := doc.Tokens[:0]
	removed := 0
	for _, s := range doc.Tokens {
		if s.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	doc.Tokens = kept
	return removed
}
