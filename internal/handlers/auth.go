package handlers

import (
	"net/http"

	"meetmap-backend/internal/middleware"
	"meetmap-backend/internal/services"
)

// AuthHandler handles account and session requests
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginRequest is the body of POST /auth/login. Username may also hold
// the e-mail address.
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	resp, err := h.authService.Register(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	login := req.Username
	if login == "" {
		login = req.Email
	}

	resp, err := h.authService.Login(r.Context(), login, req.Password)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// GoogleMock handles POST /auth/google-mock
func (h *AuthHandler) GoogleMock(w http.ResponseWriter, r *http.Request) {
	var req services.GoogleMockRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	resp, err := h.authService.GoogleMock(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// LogoutAll handles POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.LogoutAll(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

// ChangePasswordRequest is the body of PUT /users/me/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword handles PUT /users/me/password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.authService.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}
