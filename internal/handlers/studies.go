package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"commitpact-backend/internal/models"
	"commitpact-backend/internal/repository"
	"commitpact-backend/internal/window"
)

type StudyHandler struct {
	studyRepo       *repository.StudyRepo
	participantRepo *repository.ParticipantRepo
}

func NewStudyHandler(studyRepo *repository.StudyRepo, participantRepo *repository.ParticipantRepo) *StudyHandler {
	return &StudyHandler{studyRepo: studyRepo, participantRepo: participantRepo}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Create registers a study. Window offsets are validated here, once; the
// resolver assumes every stored configuration is well-formed.
func (h *StudyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStudyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	fieldErrors := make(map[string]string)
	if req.Name == "" {
		fieldErrors["name"] = "Name is required"
	}
	if !strings.HasPrefix(req.RepoURL, "https://") {
		fieldErrors["repo_url"] = "Repository URL must be an https URL"
	}
	if req.LedgerRef == "" {
		fieldErrors["ledger_ref"] = "Ledger reference is required"
	}
	if err := window.ValidateOffsets(req.StartOffsetSeconds, req.EndOffsetSeconds); err != nil {
		fieldErrors["window"] = err.Error()
	}

	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fieldErrors, r))
		return
	}

	study := &models.Study{
		Name:               req.Name,
		RepoURL:            req.RepoURL,
		StartOffsetSeconds: req.StartOffsetSeconds,
		EndOffsetSeconds:   req.EndOffsetSeconds,
		LedgerRef:          req.LedgerRef,
	}

	if err := h.studyRepo.Create(r.Context(), study); err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "A study already exists for this repository", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create study", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"study": study})
}

func (h *StudyHandler) List(w http.ResponseWriter, r *http.Request) {
	studies, err := h.studyRepo.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list studies", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"studies": studies})
}

func (h *StudyHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	studyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid study ID", r))
		return
	}

	var req models.AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	fieldErrors := make(map[string]string)
	if !emailRegex.MatchString(req.Email) {
		fieldErrors["email"] = "Invalid email format"
	}
	if req.WalletAddress == "" {
		fieldErrors["wallet_address"] = "Wallet address is required"
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fieldErrors, r))
		return
	}

	participant := &models.Participant{
		StudyID:       studyID,
		Email:         req.Email,
		WalletAddress: req.WalletAddress,
	}

	if err := h.participantRepo.Create(r.Context(), participant); err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Participant already registered for this study", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to add participant", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"participant": participant})
}

func (h *StudyHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	studyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid study ID", r))
		return
	}

	participants, err := h.participantRepo.ListByStudy(r.Context(), studyID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list participants", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"participants": participants})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
