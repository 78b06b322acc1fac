package handlers

import (
	"net/http"

	"meetmap-backend/internal/middleware"
	"meetmap-backend/internal/services"
)

// MediaHandler hands out presigned upload targets
type MediaHandler struct {
	mediaService *services.MediaService
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(mediaService *services.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// UploadURL handles POST /media/upload-url
func (h *MediaHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	var req services.UploadRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	res, err := h.mediaService.UploadURL(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Avatar handles POST /users/me/avatar
func (h *MediaHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	var req services.UploadRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	res, err := h.mediaService.AvatarUpload(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
