package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/listhub/editor-backend/internal/models"
	"github.com/listhub/editor-backend/internal/services"
)

type ImageHandler struct {
	sessionService *services.SessionService
	maxSizeMB      int64
	maxImages      int
}

func NewImageHandler(sessionService *services.SessionService, maxSizeMB int64, maxImages int) *ImageHandler {
	return &ImageHandler{
		sessionService: sessionService,
		maxSizeMB:      maxSizeMB,
		maxImages:      maxImages,
	}
}

// AddImages accepts one or more files under the "images" form field and
// stages them as pending entries on the session.
func (h *ImageHandler) AddImages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	// Limit request body size: every file may legitimately be at the
	// per-file cap, so the cap scales with the image limit.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSizeMB*int64(h.maxImages)*1024*1024)

	if err := r.ParseMultipartForm(h.maxSizeMB * 1024 * 1024); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("File too large or invalid form data"))
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("No image files provided"))
		return
	}

	for _, header := range files {
		contentType := header.Header.Get("Content-Type")
		if !isValidImageType(contentType) {
			writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid image type. Allowed: JPEG, PNG, GIF, WebP"))
			return
		}
	}

	session, rejected, err := h.sessionService.AddImages(r.Context(), sessionID, files)
	if err != nil {
		if writeSessionError(w, err) {
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to add images"))
		return
	}

	if len(rejected) > 0 {
		// Partial acceptance: the session state is returned alongside the
		// per-file rejections so the client can report them inline.
		writeJSON(w, http.StatusOK, models.APIResponse{
			Success: true,
			Data:    session,
			Errors:  rejected,
		})
		return
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(session))
}

func (h *ImageHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	entryID := chi.URLParam(r, "entryId")

	session, err := h.sessionService.RemoveImage(r.Context(), sessionID, entryID)
	if err != nil {
		if writeSessionError(w, err) {
			return
		}
		if errors.Is(err, services.ErrImageNotFound) {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Image not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to remove image"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(session))
}

func (h *ImageHandler) SetMainImage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	entryID := chi.URLParam(r, "entryId")

	session, err := h.sessionService.SetMainImage(r.Context(), sessionID, entryID)
	if err != nil {
		if writeSessionError(w, err) {
			return
		}
		if errors.Is(err, services.ErrImageNotFound) {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Image not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to set main image"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(session))
}

func (h *ImageHandler) ReorderImage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	entryID := chi.URLParam(r, "entryId")

	var req models.ReorderImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	session, err := h.sessionService.ReorderImage(r.Context(), sessionID, entryID, req.Position)
	if err != nil {
		if writeSessionError(w, err) {
			return
		}
		if errors.Is(err, services.ErrImageNotFound) {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Image not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to reorder image"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(session))
}

func isValidImageType(contentType string) bool {
	validTypes := map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}
	return validTypes[contentType]
}
