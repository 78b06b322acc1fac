package services

import (
	"context"
	"fmt"
	"strings"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// UserService handles profiles and the social graph.
type UserService struct {
	clock
	gw            *repository.Gateway
	notifications *NotificationService
}

// NewUserService creates a new user service
func NewUserService(gw *repository.Gateway, notifications *NotificationService) *UserService {
	return &UserService{gw: gw, notifications: notifications}
}

// ProfileUpdate carries the editable profile fields; nil fields are left alone.
type ProfileUpdate struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
	Bio    *string `json:"bio"`
}

// PrivacyUpdate carries the privacy flags to change; nil flags are left alone.
type PrivacyUpdate struct {
	ProfilePublic *bool `json:"profilePublic"`
	ShowEmail     *bool `json:"showEmail"`
	ShowBirthDate *bool `json:"showBirthDate"`
	ShowFollowers *bool `json:"showFollowers"`
}

// FollowResult is returned by Follow.
type FollowResult struct {
	Me          models.PublicUser `json:"me"`
	User        models.PublicUser `json:"user"`
	IsFollowing bool              `json:"isFollowing"`
}

// Me returns the full profile of the caller.
func (s *UserService) Me(ctx context.Context, userID models.ID) (*models.PublicUser, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	user := doc.FindUser(userID)
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	p := user.Public()
	return &p, nil
}

// UpdateProfile trims the given fields; a blank name keeps the old one.
func (s *UserService) UpdateProfile(ctx context.Context, userID models.ID, upd ProfileUpdate) (*models.PublicUser, error) {
	var out models.PublicUser
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		user := doc.FindUser(userID)
		if user == nil {
			return apperr.NotFound("user not found")
		}
		if upd.Name != nil {
			if name := strings.TrimSpace(*upd.Name); name != "" {
				user.Name = name
			}
		}
		if upd.Avatar != nil {
			user.Avatar = strings.TrimSpace(*upd.Avatar)
		}
		if upd.Bio != nil {
			user.Bio = strings.TrimSpace(*upd.Bio)
		}
		out = user.Public()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Privacy returns the caller's privacy flags, storing the defaults the
// first time they are read.
func (s *UserService) Privacy(ctx context.Context, userID models.ID) (*models.Privacy, error) {
	var out models.Privacy
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		user := doc.FindUser(userID)
		if user == nil {
			return apperr.NotFound("user not found")
		}
		if user.Privacy != nil {
			out = *user.Privacy
			return repository.ErrSkipSave
		}
		p := models.DefaultPrivacy()
		user.Privacy = &p
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePrivacy applies a partial update of the privacy flags.
func (s *UserService) UpdatePrivacy(ctx context.Context, userID models.ID, upd PrivacyUpdate) (*models.Privacy, error) {
	var out models.Privacy
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		user := doc.FindUser(userID)
		if user == nil {
			return apperr.NotFound("user not found")
		}
		if user.Privacy == nil {
			p := models.DefaultPrivacy()
			user.Privacy = &p
		}
		setBool(&user.Privacy.ProfilePublic, upd.ProfilePublic)
		setBool(&user.Privacy.ShowEmail, upd.ShowEmail)
		setBool(&user.Privacy.ShowBirthDate, upd.ShowBirthDate)
		setBool(&user.Privacy.ShowFollowers, upd.ShowFollowers)
		out = *user.Privacy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get looks a user up for viewer. When either side has blocked the other
// the lookup fails exactly like a missing user.
func (s *UserService) Get(ctx context.Context, viewer, id models.ID) (*models.PublicUser, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	user := doc.FindUser(id)
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	if viewer != "" && doc.Blocked(viewer, id) {
		return nil, apperr.Concealed("user not found")
	}
	p := user.PublicFor(viewer)
	return &p, nil
}

// List returns every user visible to viewer, optionally filtered by a
// case-insensitive username substring.
func (s *UserService) List(ctx context.Context, viewer models.ID, query string) ([]models.PublicUser, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))

	out := []models.PublicUser{}
	for i := range doc.Users {
		u := &doc.Users[i]
		if viewer != "" && doc.Blocked(viewer, u.ID) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(u.Username), query) {
			continue
		}
		out = append(out, u.PublicFor(viewer))
	}
	return out, nil
}

// Follow toggles the follow edge from me to target.
func (s *UserService) Follow(ctx context.Context, me, target models.ID) (*FollowResult, error) {
	if me == target {
		return nil, apperr.Validation("cannot follow yourself")
	}

	var (
		res FollowResult
		box outbox
	)
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		self := doc.FindUser(me)
		other := doc.FindUser(target)
		if self == nil || other == nil || doc.Blocked(me, target) {
			return apperr.NotFound("user not found")
		}

		following := self.FollowingIDs.Contains(target)
		if following {
			self.FollowingIDs.Remove(target)
			other.FollowerIDs.Remove(me)
		} else {
			self.FollowingIDs.Add(target)
			other.FollowerIDs.Add(me)
			s.notifications.enqueue(doc, &box, target, NotifyNewFollower,
				fmt.Sprintf("%s started following you", self.DisplayName()), "")
		}
		self.RecountFollows()
		other.RecountFollows()

		res = FollowResult{Me: self.Public(), User: other.PublicFor(me), IsFollowing: !following}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifications.flush(box)

	log.Info().
		Str("user_id", me.String()).
		Str("target_id", target.String()).
		Bool("following", res.IsFollowing).
		Msg("Follow toggled")
	return &res, nil
}

// Block adds target to me's block list and removes every follow edge
// between the two users.
func (s *UserService) Block(ctx context.Context, me, target models.ID) error {
	if me == target {
		return apperr.Validation("cannot block yourself")
	}

	err := s.gw.Update(ctx, func(doc *models.Document) error {
		self := doc.FindUser(me)
		other := doc.FindUser(target)
		if self == nil || other == nil {
			return apperr.NotFound("user not found")
		}
		if !self.BlockedUserIDs.Add(target) {
			return apperr.Validation("user is already blocked")
		}

		self.FollowingIDs.Remove(target)
		self.FollowerIDs.Remove(target)
		other.FollowingIDs.Remove(me)
		other.FollowerIDs.Remove(me)
		self.RecountFollows()
		other.RecountFollows()
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("user_id", me.String()).Str("target_id", target.String()).Msg("User blocked")
	return nil
}

// Unblock removes target from me's block list.
func (s *UserService) Unblock(ctx context.Context, me, target models.ID) error {
	return s.gw.Update(ctx, func(doc *models.Document) error {
		self := doc.FindUser(me)
		if self == nil || doc.FindUser(target) == nil {
			return apperr.NotFound("user not found")
		}
		if !self.BlockedUserIDs.Remove(target) {
			return apperr.Validation("user is not blocked")
		}
		return nil
	})
}

// Friends returns the users followed by me who follow me back.
func (s *UserService) Friends(ctx context.Context, me models.ID) ([]models.PublicUser, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	self := doc.FindUser(me)
	if self == nil {
		return nil, apperr.NotFound("user not found")
	}

	out := []models.PublicUser{}
	for _, id := range self.FollowingIDs {
		if !self.FollowerIDs.Contains(id) {
			continue
		}
		if friend := doc.FindUser(id); friend != nil {
			out = append(out, friend.PublicFor(me))
		}
	}
	return out, nil
}

// Favorites returns the caller's favorite event ids.
func (s *UserService) Favorites(ctx context.Context, me models.ID) (models.IDSet, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	if favs, ok := doc.UserFavorites[me]; ok {
		return favs, nil
	}
	return models.IDSet{}, nil
}

// SetFavorites replaces the caller's favorites, dropping blanks and duplicates.
func (s *UserService) SetFavorites(ctx context.Context, me models.ID, eventIDs []models.ID) (models.IDSet, error) {
	set := models.IDSet{}
	for _, id := range eventIDs {
		if strings.TrimSpace(id.String()) == "" {
			continue
		}
		set.Add(id)
	}
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		doc.UserFavorites[me] = set
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// SearchHistory returns the caller's recent searches, newest first.
func (s *UserService) SearchHistory(ctx context.Context, me models.ID) ([]models.SearchEntry, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	user := doc.FindUser(me)
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	if user.SearchHistory == nil {
		return []models.SearchEntry{}, nil
	}
	return user.SearchHistory, nil
}

// SetPushToken registers the device token used for push notifications. An
// empty token unregisters the device.
func (s *UserService) SetPushToken(ctx context.Context, me models.ID, token string) error {
	token = strings.TrimSpace(token)
	return s.gw.Update(ctx, func(doc *models.Document) error {
		user := doc.FindUser(me)
		if user == nil {
			return apperr.NotFound("user not found")
		}
		if token == "" {
			user.PushToken = nil
		} else {
			user.PushToken = &token
		}
		return nil
	})
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
