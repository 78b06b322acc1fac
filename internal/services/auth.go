package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var (
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	birthDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// AuthService handles registration, login and credentials.
type AuthService struct {
	clock
	gw         *repository.Gateway
	sessions   *SessionManager
	bcryptCost int
}

// NewAuthService creates a new auth service
func NewAuthService(gw *repository.Gateway, sessions *SessionManager, bcryptCost int) *AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{gw: gw, sessions: sessions, bcryptCost: bcryptCost}
}

// RegisterRequest is the payload of a registration.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	BirthDate string `json:"birthDate"`
}

// AuthResponse is returned by every operation that issues a session.
type AuthResponse struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// ValidEmail reports whether email has the shape local@domain.tld.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidBirthDate reports whether value is a real calendar date in YYYY-MM-DD form.
func ValidBirthDate(value string) bool {
	if !birthDatePattern.MatchString(value) {
		return false
	}
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if req.Email == "" || req.Password == "" || req.Name == "" || req.BirthDate == "" {
		return nil, apperr.Validation("email, password, name and birthDate are required")
	}
	if !ValidEmail(req.Email) {
		return nil, apperr.Validation("invalid email")
	}
	if !ValidBirthDate(req.BirthDate) {
		return nil, apperr.Validation("invalid birth date")
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	err = s.gw.Update(ctx, func(doc *models.Document) error {
		if doc.FindUserByEmail(req.Email) != nil {
			return apperr.Conflict("user already exists")
		}
		user := newUser(req.Email, req.Name, req.BirthDate, s.Now())
		user.Password = models.HashedCredential(hash)
		doc.Users = append(doc.Users, user)

		token, err := s.sessions.Issue(doc, user.ID)
		if err != nil {
			return err
		}
		resp = AuthResponse{User: user.Public(), Token: token}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", resp.User.ID.String()).Msg("User registered")
	return &resp, nil
}

// Login verifies credentials by username or email and issues a fresh
// session, evicting the previous ones. A correct legacy plaintext password
// is rehashed on the way.
func (s *AuthService) Login(ctx context.Context, login, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		user := doc.FindUserByLogin(login)
		if login == "" || user == nil || !verify(user.Password, password) {
			return apperr.Auth("incorrect username or password")
		}
		if user.Password.Kind == models.CredentialLegacy {
			hash, err := s.hash(password)
			if err != nil {
				return err
			}
			user.Password = models.HashedCredential(hash)
			log.Info().Str("user_id", user.ID.String()).Msg("Legacy password migrated")
		}

		token, err := s.sessions.Issue(doc, user.ID)
		if err != nil {
			return err
		}
		resp = AuthResponse{User: user.Public(), Token: token}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GoogleMockRequest is the payload of the OAuth mock.
type GoogleMockRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	BirthDate string `json:"birthDate"`
}

// GoogleMock signs in by email, creating the account on first use. Accounts
// created this way carry no password and cannot log in with one.
func (s *AuthService) GoogleMock(ctx context.Context, req GoogleMockRequest) (*AuthResponse, error) {
	if req.Email == "" || req.Name == "" || req.BirthDate == "" {
		return nil, apperr.Validation("email, name and birthDate are required")
	}
	if !ValidBirthDate(req.BirthDate) {
		return nil, apperr.Validation("invalid birth date")
	}

	var resp AuthResponse
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		user := doc.FindUserByEmail(req.Email)
		if user == nil {
			doc.Users = append(doc.Users, newUser(req.Email, req.Name, req.BirthDate, s.Now()))
			user = &doc.Users[len(doc.Users)-1]
			log.Info().Str("user_id", user.ID.String()).Msg("User created through OAuth mock")
		}
		token, err := s.sessions.Issue(doc, user.ID)
		if err != nil {
			return err
		}
		resp = AuthResponse{User: user.Public(), Token: token}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangePassword verifies the current password and stores the new one hashed.
func (s *AuthService) ChangePassword(ctx context.Context, userID models.ID, current, next string) error {
	if current == "" || next == "" {
		return apperr.Validation("currentPassword and newPassword are required")
	}
	if len(next) < minPasswordLength {
		return apperr.Validation("new password must be at least %d characters", minPasswordLength)
	}

	hash, err := s.hash(next)
	if err != nil {
		return err
	}

	return s.gw.Update(ctx, func(doc *models.Document) error {
		user := doc.FindUser(userID)
		if user == nil {
			return apperr.NotFound("user not found")
		}
		if !verify(user.Password, current) {
			return apperr.Auth("current password is incorrect")
		}
		user.Password = models.HashedCredential(hash)
		log.Info().Str("user_id", userID.String()).Msg("Password changed")
		return nil
	})
}

// LogoutAll revokes every session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID models.ID) error {
	_, err := s.sessions.RevokeAll(ctx, userID)
	return err
}

func (s *AuthService) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Validation("password is too long")
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func verify(c models.Credential, password string) bool {
	switch c.Kind {
	case models.CredentialHashed:
		return bcrypt.CompareHashAndPassword([]byte(c.Secret), []byte(password)) == nil
	case models.CredentialLegacy:
		return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(password)) == 1
	default:
		return false
	}
}

func newUser(email, name, birthDate string, now time.Time) models.User {
	return models.User{
		ID:           newID(),
		Username:     email,
		Email:        email,
		Name:         strings.TrimSpace(name),
		BirthDate:    birthDate,
		FollowerIDs:  models.IDSet{},
		FollowingIDs: models.IDSet{},
		CreatedAt:    now,
	}
}
