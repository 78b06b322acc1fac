package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// Join statuses returned to clients.
const (
	JoinStatusJoined  = "joined"
	JoinStatusPending = "pending"
)

const (
	minRecurrence = 2
	maxRecurrence = 52
)

// EventService is the event directory and attendance engine.
type EventService struct {
	clock
	gw            *repository.Gateway
	notifications *NotificationService
}

// NewEventService creates a new event service
func NewEventService(gw *repository.Gateway, notifications *NotificationService) *EventService {
	return &EventService{gw: gw, notifications: notifications}
}

// Recurrence materializes sibling occurrences at creation time.
type Recurrence struct {
	Frequency string `json:"frequency"` // daily or weekly
	Count     int    `json:"count"`
}

// CreateEventRequest is the payload of event creation.
type CreateEventRequest struct {
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Type             string           `json:"type"`
	Location         string           `json:"location"`
	Position         *models.Position `json:"position"`
	Date             string           `json:"date"`
	Time             string           `json:"time"`
	StartsAt         *time.Time       `json:"startsAt"`
	EndsAt           *time.Time       `json:"endsAt"`
	Image            string           `json:"image"`
	Visibility       string           `json:"visibility"`
	RequiresApproval bool             `json:"requiresApproval"`
	MaxAttendees     int              `json:"maxAttendees"`
	IsRecurring      bool             `json:"isRecurring"`
	Recurrence       *Recurrence      `json:"recurrence"`
}

// EventPatch is an edit of an event. Version, when present, must match the
// stored version.
type EventPatch struct {
	Version          *int             `json:"version"`
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	Type             *string          `json:"type"`
	Location         *string          `json:"location"`
	Position         *models.Position `json:"position"`
	Date             *string          `json:"date"`
	Time             *string          `json:"time"`
	StartsAt         *time.Time       `json:"startsAt"`
	EndsAt           *time.Time       `json:"endsAt"`
	Image            *string          `json:"image"`
	Visibility       *string          `json:"visibility"`
	RequiresApproval *bool            `json:"requiresApproval"`
	MaxAttendees     *int             `json:"maxAttendees"`
}

// VersionConflict describes a rejected edit.
type VersionConflict struct {
	CurrentVersion int          `json:"currentVersion"`
	ClientVersion  int          `json:"clientVersion"`
	CurrentEvent   models.Event `json:"currentEvent"`
}

// JoinResult is returned by Join.
type JoinResult struct {
	Status string        `json:"status"`
	Event  *models.Event `json:"event,omitempty"`
}

// CheckInResult is returned by CheckIn.
type CheckInResult struct {
	OK            bool                 `json:"ok"`
	PhotoURL      string               `json:"photoUrl"`
	Participation models.Participation `json:"participation"`
}

// ParticipationFilter narrows the participation listing.
type ParticipationFilter struct {
	Status    string
	EventType string
	DateFrom  *time.Time
	DateTo    *time.Time
}

// ParticipationView is a participation enriched with its event.
type ParticipationView struct {
	models.Participation
	Event models.Event `json:"event"`
}

// ParticipationStats summarizes a participation listing.
type ParticipationStats struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checkedIn"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
}

// Participations is the response of the participation listing.
type Participations struct {
	Participations []ParticipationView `json:"participations"`
	Stats          ParticipationStats  `json:"stats"`
}

// Create validates and stores a new event. A recurrence expands into one
// row per occurrence, all sharing the first occurrence's series id.
func (s *EventService) Create(ctx context.Context, creatorID models.ID, req CreateEventRequest) ([]models.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, apperr.Validation("name is required")
	}
	if req.Visibility == "" {
		req.Visibility = models.VisibilityPublic
	}
	if !models.ValidVisibility(req.Visibility) {
		return nil, apperr.Validation("invalid visibility %q", req.Visibility)
	}
	if req.StartsAt != nil && req.EndsAt != nil && req.EndsAt.Before(*req.StartsAt) {
		return nil, apperr.Validation("endsAt must not be before startsAt")
	}
	if req.MaxAttendees < 0 {
		return nil, apperr.Validation("maxAttendees must not be negative")
	}

	step, count, err := recurrenceStep(req)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	first := models.Event{
		ID:                newID(),
		Name:              req.Name,
		Description:       req.Description,
		Type:              req.Type,
		Location:          req.Location,
		Position:          req.Position,
		Date:              req.Date,
		Time:              req.Time,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		Image:             req.Image,
		Visibility:        req.Visibility,
		RequiresApproval:  req.RequiresApproval,
		MaxAttendees:      req.MaxAttendees,
		CreatorID:         creatorID,
		Version:           1,
		AttendeeIDs:       models.IDSet{},
		PendingRequestIDs: models.IDSet{},
		AttendeesList:     []models.AttendeeSummary{},
		IsRecurring:       req.IsRecurring || count > 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if first.IsRecurring {
		first.RecurringSeries = &models.RecurringSeries{
			SeriesID:             first.ID,
			ParentEventID:        first.ID,
			CancelledOccurrences: models.IDSet{},
		}
	}

	created := []models.Event{first}
	for i := 1; i < count; i++ {
		occ := first
		occ.ID = newID()
		occ.StartsAt = shift(first.StartsAt, step*time.Duration(i))
		occ.EndsAt = shift(first.EndsAt, step*time.Duration(i))
		occ.Date = ""
		occ.Time = ""
		occ.AttendeeIDs = models.IDSet{}
		occ.PendingRequestIDs = models.IDSet{}
		series := *first.RecurringSeries
		series.CancelledOccurrences = models.IDSet{}
		occ.RecurringSeries = &series
		created = append(created, occ)
	}

	err = s.gw.Update(ctx, func(doc *models.Document) error {
		// newest first
		doc.Events = append(append([]models.Event{}, created...), doc.Events...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("event_id", first.ID.String()).
		Str("user_id", creatorID.String()).
		Int("occurrences", len(created)).
		Msg("Event created")
	return created, nil
}

func recurrenceStep(req CreateEventRequest) (time.Duration, int, error) {
	if req.Recurrence == nil {
		return 0, 1, nil
	}
	var step time.Duration
	switch req.Recurrence.Frequency {
	case "daily":
		step = 24 * time.Hour
	case "weekly":
		step = 7 * 24 * time.Hour
	default:
		return 0, 0, apperr.Validation("recurrence frequency must be daily or weekly")
	}
	if req.Recurrence.Count < minRecurrence || req.Recurrence.Count > maxRecurrence {
		return 0, 0, apperr.Validation("recurrence count must be between %d and %d", minRecurrence, maxRecurrence)
	}
	if req.StartsAt == nil {
		return 0, 0, apperr.Validation("recurrence requires startsAt")
	}
	return step, req.Recurrence.Count, nil
}

func shift(t *time.Time, d time.Duration) *time.Time {
	if t == nil {
		return nil
	}
	v := t.Add(d)
	return &v
}

// Get returns one event with a fresh attendee projection, applying the
// same visibility rules as listings except the hidden flag.
func (s *EventService) Get(ctx context.Context, viewer, id models.ID) (*models.Event, error) {
	var out models.Event
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		event := doc.FindEvent(id)
		if event == nil || !canView(doc, event, viewer) {
			return apperr.NotFound("event not found")
		}
		changed := refreshAttendees(doc, event)
		out = *event
		if !changed {
			return repository.ErrSkipSave
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns every non-hidden event visible to viewer, refreshing and
// persisting each attendee projection on the way.
func (s *EventService) List(ctx context.Context, viewer models.ID) ([]models.Event, error) {
	out := []models.Event{}
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		changed := false
		for i := range doc.Events {
			event := &doc.Events[i]
			if refreshAttendees(doc, event) {
				changed = true
			}
			if event.Hidden || !canView(doc, event, viewer) {
				continue
			}
			out = append(out, *event)
		}
		if !changed {
			return repository.ErrSkipSave
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Edit applies a patch to an event owned by userID. A stale version fails
// with a conflict carrying the current copy and changes nothing.
func (s *EventService) Edit(ctx context.Context, userID, id models.ID, patch EventPatch) (*models.Event, error) {
	if patch.Visibility != nil && !models.ValidVisibility(*patch.Visibility) {
		return nil, apperr.Validation("invalid visibility %q", *patch.Visibility)
	}
	if patch.MaxAttendees != nil && *patch.MaxAttendees < 0 {
		return nil, apperr.Validation("maxAttendees must not be negative")
	}

	var out models.Event
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		event := doc.FindEvent(id)
		if event == nil {
			return apperr.NotFound("event not found")
		}
		if event.CreatorID != userID {
			return apperr.Forbidden("only the creator can edit this event")
		}

		current := event.EffectiveVersion()
		if patch.Version != nil && *patch.Version != current {
			refreshAttendees(doc, event)
			return apperr.ConflictWithCurrent(
				"the event was modified by someone else, reload and try again",
				&VersionConflict{CurrentVersion: current, ClientVersion: *patch.Version, CurrentEvent: *event},
			)
		}

		next := *event
		applyPatch(&next, patch)
		if next.StartsAt != nil && next.EndsAt != nil && next.EndsAt.Before(*next.StartsAt) {
			return apperr.Validation("endsAt must not be before startsAt")
		}
		next.Version = current + 1
		next.UpdatedAt = s.Now()
		*event = next
		refreshAttendees(doc, event)
		out = *event
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("event_id", id.String()).Int("version", out.Version).Msg("Event updated")
	return &out, nil
}

func applyPatch(e *models.Event, p EventPatch) {
	if p.Name != nil && strings.TrimSpace(*p.Name) != "" {
		e.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Position != nil {
		pos := *p.Position
		e.Position = &pos
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Time != nil {
		e.Time = *p.Time
	}
	if p.StartsAt != nil {
		e.StartsAt = p.StartsAt
	}
	if p.EndsAt != nil {
		e.EndsAt = p.EndsAt
	}
	if p.Image != nil {
		e.Image = *p.Image
	}
	if p.Visibility != nil {
		e.Visibility = *p.Visibility
	}
	if p.RequiresApproval != nil {
		e.RequiresApproval = *p.RequiresApproval
	}
	if p.MaxAttendees != nil {
		e.MaxAttendees = *p.MaxAttendees
	}
}

// Delete removes an event owned by userID together with its chat, media,
// participations, expenses and favorites entries.
func (s *EventService) Delete(ctx context.Context, userID, id models.ID) error {
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		event := doc.FindEvent(id)
		if event == nil {
			return apperr.NotFound("event not found")
		}
		if event.CreatorID != userID {
			return apperr.Forbidden("only the creator can delete this event")
		}

		events := doc.Events[:0]
		for _, e := range doc.Events {
			if e.ID != id {
				events = append(events, e)
			}
		}
		doc.Events = events

		delete(doc.EventChats, id)
		delete(doc.EventMedia, id)
		delete(doc.EventParticipations, id)

		expenses := doc.Expenses[:0]
		for _, e := range doc.Expenses {
			if e.EventID != id {
				expenses = append(expenses, e)
			}
		}
		doc.Expenses = expenses

		for user, favs := range doc.UserFavorites {
			if favs.Remove(id) {
				doc.UserFavorites[user] = favs
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("event_id", id.String()).Str("user_id", userID.String()).Msg("Event deleted")
	return nil
}

// Join runs the attendance workflow for userID.
func (s *EventService) Join(ctx context.Context, userID, id models.ID) (*JoinResult, error) {
	var (
		res JoinResult
		box outbox
	)
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		event := doc.FindEvent(id)
		if event == nil || !canJoin(doc, event, userID) {
			return apperr.NotFound("event not found")
		}
		if !event.IsRecurring {
			if end, ok := event.EndTime(); ok && end.Before(s.Now()) {
				return apperr.Business("event already happened")
			}
		}
		if event.Cancelled {
			return apperr.Business("event was cancelled")
		}

		status, changed := s.joinLocked(doc, event, userID, &box)
		res.Status = status
		if status == JoinStatusJoined {
			e := *event
			res.Event = &e
		}
		if !changed {
			return repository.ErrSkipSave
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifications.flush(box)

	log.Info().Str("event_id", id.String()).Str("user_id", userID.String()).Str("status", res.Status).Msg("Join")
	return &res, nil
}

// joinLocked applies one join to an event inside an ongoing update and
// reports the resulting status and whether the document changed.
func (s *EventService) joinLocked(doc *models.Document, event *models.Event, userID models.ID, box *outbox) (string, bool) {
	if event.AttendeeIDs.Contains(userID) {
		return JoinStatusJoined, refreshAttendees(doc, event)
	}
	if event.RequiresApproval {
		if !event.PendingRequestIDs.Add(userID) {
			return JoinStatusPending, false
		}
		upsertParticipation(doc, event.ID, userID, func(p *models.Participation) {
			p.Status = models.ParticipationPending
		})
		if user := doc.FindUser(userID); user != nil && event.CreatorID != userID {
			s.notifications.enqueue(doc, box, event.CreatorID, NotifyJoinRequest,
				fmt.Sprintf("%s asked to join %s", user.DisplayName(), event.Name), event.ID)
		}
		return JoinStatusPending, true
	}
	event.AttendeeIDs.Add(userID)
	refreshAttendees(doc, event)
	return JoinStatusJoined, true
}

// Approve moves userID from the pending requests to the attendees. Only
// the creator may approve; approving a user with no pending request is a
// no-op.
func (s *EventService) Approve(ctx context.Context, approverID, id, userID models.ID) (*models.Event, error) {
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}

	var (
		out models.Event
		box outbox
	)
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		event := doc.FindEvent(id)
		if event == nil {
			return apperr.NotFound("event not found")
		}
		if event.CreatorID != approverID {
			return apperr.Forbidden("only the creator can approve requests")
		}
		if !event.PendingRequestIDs.Remove(userID) {
			out = *event
			return repository.ErrSkipSave
		}
		event.AttendeeIDs.Add(userID)
		refreshAttendees(doc, event)
		upsertParticipation(doc, event.ID, userID, func(p *models.Participation) {
			p.Status = models.ParticipationApproved
		})
		s.notifications.enqueue(doc, &box, userID, NotifyApproved,
			fmt.Sprintf("Your request to join %s was approved", event.Name), event.ID)
		out = *event
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifications.flush(box)

	log.Info().Str("event_id", id.String()).Str("user_id", userID.String()).Msg("Join request approved")
	return &out, nil
}

// CheckIn records that an attendee is at the event. The photo becomes a
// check-in item of the event gallery.
func (s *EventService) CheckIn(ctx context.Context, userID, id models.ID, photoURL string) (*CheckInResult, error) {
	photoURL = strings.TrimSpace(photoURL)
	if photoURL == "" {
		return nil, apperr.Validation("a photo is required for check-in")
	}

	var res CheckInResult
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		event := doc.FindEvent(id)
		if event == nil {
			return apperr.NotFound("event not found")
		}
		if !event.AttendeeIDs.Contains(userID) {
			return apperr.Business("you must join the event before checking in")
		}
		now := s.Now()
		if !event.IsRecurring {
			if start, ok := event.StartTime(); ok && start.After(now) {
				return apperr.Business("event has not started yet")
			}
		}
		user := doc.FindUser(userID)
		if user == nil {
			return apperr.NotFound("user not found")
		}

		doc.EventMedia[id] = append(doc.EventMedia[id], models.MediaItem{
			ID:           newID(),
			AuthorID:     userID,
			Author:       user.DisplayName(),
			AuthorAvatar: user.Avatar,
			PhotoURL:     photoURL,
			CreatedAt:    now,
			IsCheckIn:    true,
		})
		p := upsertParticipation(doc, id, userID, func(p *models.Participation) {
			p.Status = models.ParticipationCheckedIn
			p.CheckedInAt = &now
			p.CheckInPhoto = photoURL
		})
		res = CheckInResult{OK: true, PhotoURL: photoURL, Participation: p}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("event_id", id.String()).Str("user_id", userID.String()).Msg("Checked in")
	return &res, nil
}

// upsertParticipation keeps one participation row per user and event.
func upsertParticipation(doc *models.Document, eventID, userID models.ID, set func(*models.Participation)) models.Participation {
	rows := doc.EventParticipations[eventID]
	for i := range rows {
		if rows[i].UserID == userID {
			set(&rows[i])
			return rows[i]
		}
	}
	p := models.Participation{UserID: userID, EventID: eventID}
	set(&p)
	doc.EventParticipations[eventID] = append(rows, p)
	return p
}

// Participations lists the user's participation rows enriched with their
// events, newest event first.
func (s *EventService) Participations(ctx context.Context, userID models.ID, f ParticipationFilter) (*Participations, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}

	views := []ParticipationView{}
	for eventID, rows := range doc.EventParticipations {
		event := doc.FindEvent(eventID)
		if event == nil {
			continue
		}
		for _, p := range rows {
			if p.UserID != userID {
				continue
			}
			if f.Status != "" && p.Status != f.Status {
				continue
			}
			if f.EventType != "" && event.Type != f.EventType {
				continue
			}
			start, ok := event.StartTime()
			if f.DateFrom != nil && (!ok || start.Before(*f.DateFrom)) {
				continue
			}
			if f.DateTo != nil && (!ok || start.After(*f.DateTo)) {
				continue
			}
			e := *event
			refreshAttendees(doc, &e)
			views = append(views, ParticipationView{Participation: p, Event: e})
		}
	}

	sort.Slice(views, func(i, j int) bool {
		a, _ := views[i].Event.StartTime()
		b, _ := views[j].Event.StartTime()
		if a.Equal(b) {
			return views[i].EventID < views[j].EventID
		}
		return a.After(b)
	})

	stats := ParticipationStats{Total: len(views)}
	for _, v := range views {
		switch v.Status {
		case models.ParticipationCheckedIn:
			stats.CheckedIn++
		case models.ParticipationPending:
			stats.Pending++
		case models.ParticipationApproved:
			stats.Approved++
		}
	}
	return &Participations{Participations: views, Stats: stats}, nil
}

// canView decides whether viewer may see event. Anonymous viewers see
// public events only. Creators, attendees and pending requesters always
// see the event. Friends events need a follow edge in either direction
// with the creator; invite-only events need membership.
func canView(doc *models.Document, event *models.Event, viewer models.ID) bool {
	if viewer != "" && event.CreatorID == viewer {
		return true
	}
	if viewer != "" && event.CreatorID != "" && doc.Blocked(viewer, event.CreatorID) {
		return false
	}
	if viewer != "" && event.IsMember(viewer) {
		return true
	}
	switch event.Visibility {
	case "", models.VisibilityPublic:
		return true
	case models.VisibilityFriends:
		return viewer != "" && connected(doc, viewer, event.CreatorID)
	default:
		return false
	}
}

// canJoin reports whether userID may join or ask to join event. Visibility
// only scopes listings: anyone holding the event id may join, except users
// in a block relationship with the creator.
func canJoin(doc *models.Document, event *models.Event, userID models.ID) bool {
	if event.CreatorID == "" || event.CreatorID == userID {
		return true
	}
	return !doc.Blocked(userID, event.CreatorID)
}

func connected(doc *models.Document, a, b models.ID) bool {
	ua := doc.FindUser(a)
	if ua == nil {
		return false
	}
	return ua.FollowingIDs.Contains(b) || ua.FollowerIDs.Contains(b)
}
