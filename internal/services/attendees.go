package services

import (
	"meetmap-backend/internal/models"
)

// Attendance is the derived attendee projection of an event.
type Attendance struct {
	IDs   models.IDSet
	List  []models.AttendeeSummary
	Count int
}

// DeriveAttendees computes who is attending an event: the explicit
// attendees followed by every distinct chat author. A message without an
// author id is attributed by matching its display name against user names
// and usernames. The list drops ids with no user record; Count does not.
func DeriveAttendees(event *models.Event, chat []models.ChatMessage, users []models.User) Attendance {
	byID := make(map[models.ID]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	ids := models.IDSet{}
	for _, id := range event.AttendeeIDs {
		ids.Add(id)
	}
	for _, msg := range chat {
		if msg.AuthorID != "" {
			ids.Add(msg.AuthorID)
			continue
		}
		if msg.Author == "" {
			continue
		}
		for i := range users {
			if users[i].Name == msg.Author || users[i].Username == msg.Author {
				ids.Add(users[i].ID)
				break
			}
		}
	}

	list := make([]models.AttendeeSummary, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			continue
		}
		list = append(list, models.AttendeeSummary{ID: u.ID, Name: u.DisplayName(), Avatar: u.Avatar})
	}
	return Attendance{IDs: ids, List: list, Count: len(ids)}
}

// refreshAttendees writes the derived projection back onto the stored
// event and reports whether anything changed.
func refreshAttendees(doc *models.Document, event *models.Event) bool {
	a := DeriveAttendees(event, doc.EventChats[event.ID], doc.Users)
	changed := event.Attendees != a.Count || !sameSummaries(event.AttendeesList, a.List)
	event.Attendees = a.Count
	event.AttendeesList = a.List
	if event.AttendeeIDs == nil {
		event.AttendeeIDs = models.IDSet{}
	}
	if event.PendingRequestIDs == nil {
		event.PendingRequestIDs = models.IDSet{}
	}
	return changed
}

func sameSummaries(a, b []models.AttendeeSummary) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
