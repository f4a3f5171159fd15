package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"commitpact-backend/internal/models"
	"commitpact-backend/internal/repository"
	"commitpact-backend/internal/services"
)

type SessionHandler struct {
	sessionRepo    *repository.SessionRepo
	attendanceRepo *repository.AttendanceRepo
	closer         *services.Closer
}

func NewSessionHandler(sessionRepo *repository.SessionRepo, attendanceRepo *repository.AttendanceRepo, closer *services.Closer) *SessionHandler {
	return &SessionHandler{
		sessionRepo:    sessionRepo,
		attendanceRepo: attendanceRepo,
		closer:         closer,
	}
}

// List serves GET /sessions?study_id=&status= as a thin projection over the
// session store.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	var studyID *uuid.UUID
	if raw := r.URL.Query().Get("study_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid study_id", r))
			return
		}
		studyID = &id
	}

	status := r.URL.Query().Get("status")
	switch status {
	case "", "ACTIVE", "CLOSED", "FAILED":
	default:
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "status must be ACTIVE, CLOSED or FAILED", r))
		return
	}

	sessions, err := h.sessionRepo.List(r.Context(), studyID, status)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list sessions", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *SessionHandler) ListAttendances(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	session, err := h.sessionRepo.GetByID(r.Context(), sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		handleServiceError(w, r, &services.NotFoundError{Message: "Session not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load session", r))
		return
	}

	attendances, err := h.attendanceRepo.ListBySession(r.Context(), session.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list attendances", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":     session,
		"attendances": attendances,
	})
}

// RunClosures triggers one synchronous close pass and returns the per-session
// outcomes. Operational intervention only; the background scheduler performs
// the same pass on its own tick.
func (h *SessionHandler) RunClosures(w http.ResponseWriter, r *http.Request) {
	outcomes := h.closer.RunOnce(r.Context(), time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]interface{}{"outcomes": outcomes})
}

// Fail marks a stuck ACTIVE session FAILED. Terminal and manual: used when an
// operator has established that closure will never succeed for the session.
// The request body may carry a reason, persisted for the audit trail.
func (h *SessionHandler) Fail(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	var req models.FailSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	failed, err := h.sessionRepo.MarkFailed(r.Context(), sessionID, req.Reason)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update session", r))
		return
	}
	if !failed {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Session is not ACTIVE", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session marked FAILED"})
}
