package services

import (
	"context"
	"strings"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"
)

// PostService handles the social feed.
type PostService struct {
	clock
	gw *repository.Gateway
}

// NewPostService creates a new post service
func NewPostService(gw *repository.Gateway) *PostService {
	return &PostService{gw: gw}
}

// CreatePostRequest is the payload of a new post.
type CreatePostRequest struct {
	Text    string    `json:"text"`
	Image   string    `json:"image"`
	EventID models.ID `json:"eventId"`
}

// LikeResult is returned by ToggleLike.
type LikeResult struct {
	Likes int  `json:"likes"`
	Liked bool `json:"liked"`
}

// CommentResult is returned by Comment.
type CommentResult struct {
	Comment  models.Comment `json:"comment"`
	Comments int            `json:"comments"`
}

// List returns the feed, newest first, hiding authors in a block
// relationship with viewer.
func (s *PostService) List(ctx context.Context, viewer models.ID) ([]models.Post, error) {
	doc, err := s.gw.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.Post{}
	for _, p := range doc.Posts {
		if viewer != "" && doc.Blocked(viewer, p.AuthorID) {
			continue
		}
		if p.LikedByIDs == nil {
			p.LikedByIDs = models.IDSet{}
		}
		if p.CommentsList == nil {
			p.CommentsList = []models.Comment{}
		}
		out = append(out, p)
	}
	return out, nil
}

// Create publishes a post.
func (s *PostService) Create(ctx context.Context, authorID models.ID, req CreatePostRequest) (*models.Post, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" && req.Image == "" {
		return nil, apperr.Validation("text or image is required")
	}

	var out models.Post
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		author := doc.FindUser(authorID)
		if author == nil {
			return apperr.NotFound("user not found")
		}
		if req.EventID != "" && doc.FindEvent(req.EventID) == nil {
			return apperr.NotFound("event not found")
		}
		out = models.Post{
			ID:           newID(),
			AuthorID:     authorID,
			Author:       author.DisplayName(),
			Text:         req.Text,
			Image:        req.Image,
			EventID:      req.EventID,
			LikedByIDs:   models.IDSet{},
			CommentsList: []models.Comment{},
			CreatedAt:    s.Now(),
		}
		doc.Posts = append([]models.Post{out}, doc.Posts...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ToggleLike likes or unlikes a post.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID models.ID) (*LikeResult, error) {
	var res LikeResult
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		post := doc.FindPost(postID)
		if post == nil {
			return apperr.NotFound("post not found")
		}
		if post.LikedByIDs.Remove(userID) {
			res.Liked = false
		} else {
			post.LikedByIDs.Add(userID)
			res.Liked = true
		}
		post.Likes = len(post.LikedByIDs)
		res.Likes = post.Likes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Comment appends a comment to a post.
func (s *PostService) Comment(ctx context.Context, userID, postID models.ID, text string) (*CommentResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("text is required")
	}

	var res CommentResult
	err := s.gw.Update(ctx, func(doc *models.Document) error {
		post := doc.FindPost(postID)
		if post == nil {
			return apperr.NotFound("post not found")
		}
		user := doc.FindUser(userID)
		if user == nil {
			return apperr.NotFound("user not found")
		}
		c := models.Comment{
			ID:        newID(),
			UserID:    userID,
			Username:  user.Username,
			Text:      text,
			CreatedAt: s.Now(),
		}
		post.CommentsList = append(post.CommentsList, c)
		post.Comments = len(post.CommentsList)
		res = CommentResult{Comment: c, Comments: post.Comments}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
