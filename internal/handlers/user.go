package handlers

import (
	"net/http"

	"meetmap-backend/internal/middleware"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/services"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// FavoritesBody is the body of the favorites endpoints.
type FavoritesBody struct {
	EventIDs models.IDSet `json:"eventIds"`
}

// PushTokenRequest is the body of PUT /users/me/push-token
type PushTokenRequest struct {
	Token string `json:"token"`
}

// Me handles GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	me, err := h.userService.Me(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, me)
}

// UpdateMe handles PUT /users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req services.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	me, err := h.userService.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, me)
}

// Privacy handles GET /users/me/privacy
func (h *UserHandler) Privacy(w http.ResponseWriter, r *http.Request) {
	p, err := h.userService.Privacy(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// UpdatePrivacy handles PUT /users/me/privacy
func (h *UserHandler) UpdatePrivacy(w http.ResponseWriter, r *http.Request) {
	var req services.PrivacyUpdate
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	p, err := h.userService.UpdatePrivacy(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// List handles GET /users?search=
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")
	if query == "" {
		query = r.URL.Query().Get("q")
	}
	users, err := h.userService.List(r.Context(), middleware.GetUserID(r.Context()), query)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// Get handles GET /users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Get(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Follow handles POST /users/{id}/follow
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	res, err := h.userService.Follow(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Block handles POST /users/{id}/block
func (h *UserHandler) Block(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.Block(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Unblock handles POST /users/{id}/unblock
func (h *UserHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.Unblock(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Friends handles GET /users/me/friends
func (h *UserHandler) Friends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.userService.Friends(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, friends)
}

// Favorites handles GET /users/me/favorites
func (h *UserHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	ids, err := h.userService.Favorites(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, FavoritesBody{EventIDs: ids})
}

// SetFavorites handles PUT /users/me/favorites
func (h *UserHandler) SetFavorites(w http.ResponseWriter, r *http.Request) {
	var req FavoritesBody
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if req.EventIDs == nil {
		respondError(w, "eventIds must be an array", http.StatusBadRequest)
		return
	}
	ids, err := h.userService.SetFavorites(r.Context(), middleware.GetUserID(r.Context()), req.EventIDs)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, FavoritesBody{EventIDs: ids})
}

// SearchHistory handles GET /users/me/search-history
func (h *UserHandler) SearchHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.userService.SearchHistory(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// SetPushToken handles PUT /users/me/push-token
func (h *UserHandler) SetPushToken(w http.ResponseWriter, r *http.Request) {
	var req PushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if err := h.userService.SetPushToken(r.Context(), middleware.GetUserID(r.Context()), req.Token); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}
