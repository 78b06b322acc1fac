package services

import (
	"fmt"
	"time"

	"meetmap-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// TicketIssuer signs short-lived tickets that authorize one websocket
// subscription to one event chat. Browsers cannot set headers on a
// websocket handshake, so the bearer session is exchanged for a ticket
// passed in the query string.
type TicketIssuer struct {
	clock
	secret []byte
	ttl    time.Duration
}

// NewTicketIssuer creates a ticket issuer
func NewTicketIssuer(secret string, ttl time.Duration) *TicketIssuer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TicketIssuer{secret: []byte(secret), ttl: ttl}
}

// Ticket is what a validated ticket grants: a user, through one session.
type Ticket struct {
	UserID models.ID
	// Session is the SessionDigest of the bearer token the ticket was
	// exchanged for.
	Session string
}

// Issue signs a ticket for userID on eventID, bound to the session whose
// digest is given.
func (t *TicketIssuer) Issue(userID, eventID models.ID, session string) (string, time.Time, error) {
	now := t.Now()
	exp := now.Add(t.ttl)
	claims := jwt.MapClaims{
		"user_id":  userID.String(),
		"event_id": eventID.String(),
		"sid":      session,
		"exp":      exp.Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign ticket: %w", err)
	}
	return tokenString, exp, nil
}

// Validate checks a ticket for eventID and returns what it grants.
func (t *TicketIssuer) Validate(tokenString string, eventID models.ID) (*Ticket, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ticket: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid ticket")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid ticket claims")
	}
	if claimed, _ := claims["event_id"].(string); claimed != eventID.String() {
		return nil, fmt.Errorf("ticket was issued for another event")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("user_id not found in ticket")
	}
	session, ok := claims["sid"].(string)
	if !ok || session == "" {
		return nil, fmt.Errorf("sid not found in ticket")
	}
	return &Ticket{UserID: models.ID(userID), Session: session}, nil
}
