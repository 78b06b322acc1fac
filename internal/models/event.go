package models

import (
	"strings"
	"time"
)

// Visibility values of an event.
const (
	VisibilityPublic     = "public"
	VisibilityFriends    = "friends"
	VisibilityInviteOnly = "invite-only"
)

// ValidVisibility reports whether v is a known visibility value.
func ValidVisibility(v string) bool {
	switch v {
	case VisibilityPublic, VisibilityFriends, VisibilityInviteOnly:
		return true
	}
	return false
}

// Position is a [lat, lng] pair.
type Position [2]float64

// RecurringSeries groups sibling occurrences of a recurring event.
type RecurringSeries struct {
	SeriesID             ID    `json:"seriesId"`
	ParentEventID        ID    `json:"parentEventId"`
	CancelledOccurrences IDSet `json:"cancelledOccurrences"`
}

// AttendeeSummary is one entry of the derived attendee list.
type AttendeeSummary struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Event is a location-bound social event
type Event struct {
	ID                ID                `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Type              string            `json:"type"`
	Location          string            `json:"location"`
	Position          *Position         `json:"position,omitempty"`
	Date              string            `json:"date,omitempty"`
	Time              string            `json:"time,omitempty"`
	StartsAt          *time.Time        `json:"startsAt,omitempty"`
	EndsAt            *time.Time        `json:"endsAt,omitempty"`
	Image             string            `json:"image,omitempty"`
	Visibility        string            `json:"visibility"`
	RequiresApproval  bool              `json:"requiresApproval"`
	MaxAttendees      int               `json:"maxAttendees"`
	CreatorID         ID                `json:"creatorId"`
	Version           int               `json:"version"`
	AttendeeIDs       IDSet             `json:"attendeeIds"`
	PendingRequestIDs IDSet             `json:"pendingRequestIds"`
	AttendeesList     []AttendeeSummary `json:"attendeesList"`
	Attendees         int               `json:"attendees"`
	Cancelled         bool              `json:"cancelled,omitempty"`
	Hidden            bool              `json:"hidden,omitempty"`
	IsRecurring       bool              `json:"isRecurring,omitempty"`
	RecurringSeries   *RecurringSeries  `json:"recurringSeries,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

var legacyLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// legacyTime parses the date/time pair written by older clients.
func (e *Event) legacyTime() (time.Time, bool) {
	if e.Date == "" {
		return time.Time{}, false
	}
	value := strings.TrimSpace(e.Date + " " + e.Time)
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StartTime returns the start of the event, if one is defined.
func (e *Event) StartTime() (time.Time, bool) {
	if e.StartsAt != nil && !e.StartsAt.IsZero() {
		return *e.StartsAt, true
	}
	return e.legacyTime()
}

// EndTime returns the end of the event, if one is defined. Legacy rows
// only have a single date/time which doubles as the end.
func (e *Event) EndTime() (time.Time, bool) {
	if e.EndsAt != nil && !e.EndsAt.IsZero() {
		return *e.EndsAt, true
	}
	return e.legacyTime()
}

// EffectiveVersion treats rows written before versioning as version 1.
func (e *Event) EffectiveVersion() int {
	if e.Version <= 0 {
		return 1
	}
	return e.Version
}

// ExplicitSeriesID returns the series id when the row carries one.
func (e *Event) ExplicitSeriesID() (ID, bool) {
	if e.RecurringSeries == nil || e.RecurringSeries.SeriesID == "" {
		return "", false
	}
	return e.RecurringSeries.SeriesID, true
}

// IsMember reports whether the user is an attendee or has a pending request.
func (e *Event) IsMember(userID ID) bool {
	return e.AttendeeIDs.Contains(userID) || e.PendingRequestIDs.Contains(userID)
}

// Participation statuses.
const (
	ParticipationPending   = "pending"
	ParticipationApproved  = "approved"
	ParticipationCheckedIn = "checkedIn"
)

// Participation tracks one user's attendance record for one event.
type Participation struct {
	UserID       ID         `json:"userId"`
	EventID      ID         `json:"eventId"`
	Status       string     `json:"status"`
	CheckedInAt  *time.Time `json:"checkedInAt,omitempty"`
	CheckInPhoto string     `json:"checkInPhoto,omitempty"`
}
