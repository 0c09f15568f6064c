package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/listhub/editor-backend/internal/models"
	"github.com/listhub/editor-backend/internal/services"
	"github.com/listhub/editor-backend/internal/upstream"
)

type SessionHandler struct {
	sessionService *services.SessionService
}

func NewSessionHandler(sessionService *services.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

func (h *SessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req models.OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		log.Printf("[OpenSession] Validation errors: %v", errors)
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	session, err := h.sessionService.Open(r.Context(), req.ListingID)
	if err != nil {
		log.Printf("[OpenSession] Service error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to open edit session"))
		return
	}

	log.Printf("[OpenSession] session=%s listing=%s state=%s", session.ID, session.ListingID, session.State)
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(session))
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	session, err := h.sessionService.Get(r.Context(), sessionID)
	if err != nil {
		if err == services.ErrSessionNotFound {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Edit session not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to get edit session"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(session))
}

func (h *SessionHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	session, err := h.sessionService.Refresh(r.Context(), sessionID)
	if err != nil {
		if err == services.ErrSessionNotFound {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Edit session not found"))
			return
		}
		if err == services.ErrSubmitInFlight {
			writeJSON(w, http.StatusConflict, models.NewErrorResponse("A submission is in progress"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to refresh edit session"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(session))
}

func (h *SessionHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req models.UpdateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	session, err := h.sessionService.UpdateField(r.Context(), sessionID, req.Field, req.Value)
	if err != nil {
		if writeSessionError(w, err) {
			return
		}
		if errors.Is(err, services.ErrUnknownField) {
			writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to update field"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(session))
}

func (h *SessionHandler) SubmitSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	session, err := h.sessionService.Submit(r.Context(), sessionID)
	if err != nil {
		if writeSessionError(w, err) {
			return
		}
		if errors.Is(err, services.ErrInvalidPrice) {
			writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(err.Error()))
			return
		}
		if errors.Is(err, services.ErrUploadFailed) {
			writeJSON(w, http.StatusBadGateway, models.NewErrorResponse("Image upload failed; the listing was not updated"))
			return
		}
		if errors.Is(err, upstream.ErrNetwork) || errors.Is(err, upstream.ErrParse) {
			writeJSON(w, http.StatusBadGateway, models.NewErrorResponse("The marketplace rejected the update"))
			return
		}
		log.Printf("[SubmitSession] Service error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to submit changes"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(session))
}

func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	err := h.sessionService.Cancel(r.Context(), sessionID)
	if err != nil {
		if writeSessionError(w, err) {
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to close edit session"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewMessageResponse("Edit session closed"))
}

// writeSessionError handles the error cases every session route shares.
// Returns true when a response has been written.
func writeSessionError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Edit session not found"))
	case errors.Is(err, services.ErrSubmitInFlight):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse("A submission is in progress"))
	case errors.Is(err, services.ErrSessionNotReady):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse("Edit session is not ready"))
	default:
		return false
	}
	return true
}
