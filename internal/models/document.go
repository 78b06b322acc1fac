package models

import "strings"

// Document is the whole persisted state. Every operation loads it, mutates
// it in memory and writes it back.
type Document struct {
	Tokens              []Session              `json:"tokens"`
	Users               []User                 `json:"users"`
	Events              []Event                `json:"events"`
	Posts               []Post                 `json:"posts"`
	Notifications       []Notification         `json:"notifications"`
	Media               []UploadedMedia        `json:"media"`
	EventChats          map[ID][]ChatMessage   `json:"eventChats"`
	EventMedia          map[ID][]MediaItem     `json:"eventMedia"`
	UserFavorites       map[ID]IDSet           `json:"userFavorites"`
	Expenses            []Expense              `json:"expenses"`
	EventParticipations map[ID][]Participation `json:"eventParticipations"`
}

// NewDocument returns an empty document with every collection present.
func NewDocument() *Document {
	d := &Document{}
	d.EnsureCollections()
	return d
}

// EnsureCollections fills in any collection missing from a decoded document
// so callers never distinguish "missing" from "empty".
func (d *Document) EnsureCollections() {
	if d.Tokens == nil {
		d.Tokens = []Session{}
	}
	if d.Users == nil {
		d.Users = []User{}
	}
	if d.Events == nil {
		d.Events = []Event{}
	}
	if d.Posts == nil {
		d.Posts = []Post{}
	}
	if d.Notifications == nil {
		d.Notifications = []Notification{}
	}
	if d.Media == nil {
		d.Media = []UploadedMedia{}
	}
	if d.EventChats == nil {
		d.EventChats = map[ID][]ChatMessage{}
	}
	if d.EventMedia == nil {
		d.EventMedia = map[ID][]MediaItem{}
	}
	if d.UserFavorites == nil {
		d.UserFavorites = map[ID]IDSet{}
	}
	if d.Expenses == nil {
		d.Expenses = []Expense{}
	}
	if d.EventParticipations == nil {
		d.EventParticipations = map[ID][]Participation{}
	}
}

// FindUser returns a pointer into the users collection, or nil.
func (d *Document) FindUser(id ID) *User {
	for i := range d.Users {
		if d.Users[i].ID == id {
			return &d.Users[i]
		}
	}
	return nil
}

// FindUserByEmail matches the email exactly.
func (d *Document) FindUserByEmail(email string) *User {
	for i := range d.Users {
		if d.Users[i].Email == email {
			return &d.Users[i]
		}
	}
	return nil
}

// FindUserByLogin matches either the username or the email.
func (d *Document) FindUserByLogin(login string) *User {
	for i := range d.Users {
		if d.Users[i].Username == login || d.Users[i].Email == login {
			return &d.Users[i]
		}
	}
	return nil
}

// FindUserByDisplay resolves a chat author display string to a user.
func (d *Document) FindUserByDisplay(display string) *User {
	if strings.TrimSpace(display) == "" {
		return nil
	}
	for i := range d.Users {
		if d.Users[i].Name == display || d.Users[i].Username == display {
			return &d.Users[i]
		}
	}
	return nil
}

// FindEvent returns a pointer into the events collection, or nil.
func (d *Document) FindEvent(id ID) *Event {
	for i := range d.Events {
		if d.Events[i].ID == id {
			return &d.Events[i]
		}
	}
	return nil
}

// FindExpense returns a pointer into the expenses collection, or nil.
func (d *Document) FindExpense(id ID) *Expense {
	for i := range d.Expenses {
		if d.Expenses[i].ID == id {
			return &d.Expenses[i]
		}
	}
	return nil
}

// FindPost returns a pointer into the posts collection, or nil.
func (d *Document) FindPost(id ID) *Post {
	for i := range d.Posts {
		if d.Posts[i].ID == id {
			return &d.Posts[i]
		}
	}
	return nil
}

// Blocked reports whether either user has blocked the other.
func (d *Document) Blocked(a, b ID) bool {
	if ua := d.FindUser(a); ua != nil && ua.HasBlocked(b) {
		return true
	}
	if ub := d.FindUser(b); ub != nil && ub.HasBlocked(a) {
		return true
	}
	return false
}
