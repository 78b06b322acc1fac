package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// CredentialKind tags how a stored password must be verified.
type CredentialKind int

const (
	// CredentialNone never verifies (accounts created through the OAuth mock).
	CredentialNone CredentialKind = iota
	// CredentialHashed is a bcrypt hash.
	CredentialHashed
	// CredentialLegacy is a plaintext password written by older versions.
	CredentialLegacy
)

const bcryptMarker = "$2"

// Credential is the stored password of a user. On disk it is a plain string;
// the kind is decided once when the document is decoded.
type Credential struct {
	Kind   CredentialKind
	Secret string
}

// HashedCredential wraps a bcrypt hash.
func HashedCredential(hash string) Credential {
	return Credential{Kind: CredentialHashed, Secret: hash}
}

func (c Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Secret)
}

func (c *Credential) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = Credential{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch {
	case s == "":
		*c = Credential{Kind: CredentialNone}
	case strings.HasPrefix(s, bcryptMarker):
		*c = Credential{Kind: CredentialHashed, Secret: s}
	default:
		*c = Credential{Kind: CredentialLegacy, Secret: s}
	}
	return nil
}

// Privacy holds the profile visibility flags of a user.
type Privacy struct {
	ProfilePublic bool `json:"profilePublic"`
	ShowEmail     bool `json:"showEmail"`
	ShowBirthDate bool `json:"showBirthDate"`
	ShowFollowers bool `json:"showFollowers"`
}

// DefaultPrivacy is applied the first time a user's privacy is read.
func DefaultPrivacy() Privacy {
	return Privacy{
		ProfilePublic: true,
		ShowEmail:     false,
		ShowBirthDate: true,
		ShowFollowers: true,
	}
}

// SearchEntry is one item of a user's search history.
type SearchEntry struct {
	Query     string    `json:"query"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxSearchHistory bounds the per-user search history.
const MaxSearchHistory = 10

// User represents a registered account
type User struct {
	ID             ID            `json:"id"`
	Username       string        `json:"username"`
	Email          string        `json:"email"`
	Name           string        `json:"name"`
	Password       Credential    `json:"password"`
	Avatar         string        `json:"avatar"`
	Bio            string        `json:"bio"`
	BirthDate      string        `json:"birthDate"`
	Followers      int           `json:"followers"`
	Following      int           `json:"following"`
	FollowerIDs    IDSet         `json:"followerIds"`
	FollowingIDs   IDSet         `json:"followingIds"`
	BlockedUserIDs IDSet         `json:"blockedUserIds,omitempty"`
	Privacy        *Privacy      `json:"privacy,omitempty"`
	SearchHistory  []SearchEntry `json:"searchHistory,omitempty"`
	PushToken      *string       `json:"pushToken,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// DisplayName is the name shown next to content the user authored.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// HasBlocked reports whether u blocked other.
func (u *User) HasBlocked(other ID) bool {
	return u.BlockedUserIDs.Contains(other)
}

// RecountFollows refreshes the cached follower/following counters.
func (u *User) RecountFollows() {
	u.Followers = len(u.FollowerIDs)
	u.Following = len(u.FollowingIDs)
}

// PushSearch records a search, newest first, keeping MaxSearchHistory entries.
func (u *User) PushSearch(entry SearchEntry) {
	history := append([]SearchEntry{entry}, u.SearchHistory...)
	if len(history) > MaxSearchHistory {
		history = history[:MaxSearchHistory]
	}
	u.SearchHistory = history
}

// PublicUser is the outward representation of a user. It never carries the
// credential or the device token.
type PublicUser struct {
	ID             ID        `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email,omitempty"`
	Name           string    `json:"name"`
	Avatar         string    `json:"avatar"`
	Bio            string    `json:"bio"`
	BirthDate      string    `json:"birthDate,omitempty"`
	Followers      int       `json:"followers"`
	Following      int       `json:"following"`
	FollowerIDs    IDSet     `json:"followerIds,omitempty"`
	FollowingIDs   IDSet     `json:"followingIds,omitempty"`
	BlockedUserIDs IDSet     `json:"blockedUserIds,omitempty"`
	Privacy        *Privacy  `json:"privacy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Public returns the full view of the user, as seen by themselves.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Name:           u.Name,
		Avatar:         u.Avatar,
		Bio:            u.Bio,
		BirthDate:      u.BirthDate,
		Followers:      u.Followers,
		Following:      u.Following,
		FollowerIDs:    nonNil(u.FollowerIDs),
		FollowingIDs:   nonNil(u.FollowingIDs),
		BlockedUserIDs: u.BlockedUserIDs,
		Privacy:        u.Privacy,
		CreatedAt:      u.CreatedAt,
	}
}

// PublicFor returns the view of u seen by viewer, masking the fields the
// user's privacy flags hide from others.
func (u *User) PublicFor(viewer ID) PublicUser {
	p := u.Public()
	if viewer == u.ID {
		return p
	}
	p.BlockedUserIDs = nil
	p.Privacy = nil
	privacy := DefaultPrivacy()
	if u.Privacy != nil {
		privacy = *u.Privacy
	}
	if !privacy.ShowEmail {
		p.Email = ""
	}
	if !privacy.ShowBirthDate {
		p.BirthDate = ""
	}
	if !privacy.ShowFollowers {
		p.FollowerIDs = nil
		p.FollowingIDs = nil
	}
	return p
}

func nonNil(s IDSet) IDSet {
	if s == nil {
		return IDSet{}
	}
	return s
}
