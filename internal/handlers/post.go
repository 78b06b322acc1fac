package handlers

import (
	"net/http"

	"meetmap-backend/internal/middleware"
	"meetmap-backend/internal/services"
)

// PostHandler handles the social feed
type PostHandler struct {
	postService *services.PostService
}

// NewPostHandler creates a new post handler
func NewPostHandler(postService *services.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

// CommentRequest is the body of POST /posts/{id}/comments
type CommentRequest struct {
	Text string `json:"text"`
}

// List handles GET /posts
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	posts, err := h.postService.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, posts)
}

// Create handles POST /posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreatePostRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	post, err := h.postService.Create(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, post)
}

// Like handles POST /posts/{id}/like
func (h *PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	res, err := h.postService.ToggleLike(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Comment handles POST /posts/{id}/comments
func (h *PostHandler) Comment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	res, err := h.postService.Comment(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"), req.Text)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
