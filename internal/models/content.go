package models

import "time"

// ChatMessage is a message in an event's chat transcript.
type ChatMessage struct {
	ID           ID        `json:"id"`
	AuthorID     ID        `json:"authorId,omitempty"`
	Author       string    `json:"author"`
	AuthorAvatar string    `json:"authorAvatar"`
	Text         string    `json:"text,omitempty"`
	PhotoURL     string    `json:"photoUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MediaItem is a photo in an event's gallery.
type MediaItem struct {
	ID           ID        `json:"id"`
	AuthorID     ID        `json:"authorId"`
	Author       string    `json:"author"`
	AuthorAvatar string    `json:"authorAvatar"`
	PhotoURL     string    `json:"photoUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	IsCheckIn    bool      `json:"isCheckIn,omitempty"`
}

// UploadedMedia records an object handed out through an upload target.
type UploadedMedia struct {
	ID        ID        `json:"id"`
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	OwnerID   ID        `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comment on a post.
type Comment struct {
	ID        ID        `json:"id"`
	UserID    ID        `json:"userId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Post is a feed entry.
type Post struct {
	ID           ID        `json:"id"`
	AuthorID     ID        `json:"authorId"`
	Author       string    `json:"author"`
	Text         string    `json:"text"`
	Image        string    `json:"image,omitempty"`
	EventID      ID        `json:"eventId,omitempty"`
	Likes        int       `json:"likes"`
	LikedByIDs   IDSet     `json:"likedByIds"`
	Comments     int       `json:"comments"`
	CommentsList []Comment `json:"commentsList"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Notification is an in-app notice addressed to one user.
type Notification struct {
	ID        ID        `json:"id"`
	UserID    ID        `json:"userId"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	EventID   ID        `json:"eventId,omitempty"`
	Unread    bool      `json:"unread"`
	CreatedAt time.Time `json:"createdAt"`
}
