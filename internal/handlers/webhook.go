package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"commitpact-backend/internal/models"
	"commitpact-backend/internal/worker"
)

// PushPayload is the slice of a git-host push webhook this service consumes.
// Signature verification happens upstream; by the time a payload reaches this
// handler it is trusted.
type PushPayload struct {
	Repository struct {
		HTMLURL  string `json:"html_url"`
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
	Commits []PushCommit `json:"commits"`
}

type PushCommit struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Author    struct {
		Email string `json:"email"`
	} `json:"author"`
}

type WebhookHandler struct {
	redis *redis.Client
}

func NewWebhookHandler(redisClient *redis.Client) *WebhookHandler {
	return &WebhookHandler{redis: redisClient}
}

// Push accepts a push webhook and enqueues one commit event per commit. The
// handler only validates shape and enqueues; all attribution logic runs in
// the workers, so webhook deliveries are acknowledged fast and retried by the
// git host if the enqueue fails.
func (h *WebhookHandler) Push(w http.ResponseWriter, r *http.Request) {
	var payload PushPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid push payload", r))
		return
	}

	repoURL := payload.Repository.HTMLURL
	if repoURL == "" {
		repoURL = payload.Repository.CloneURL
	}
	if repoURL == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Payload missing repository URL", r))
		return
	}

	enqueued := 0
	for _, commit := range payload.Commits {
		if commit.ID == "" || commit.Author.Email == "" || commit.Timestamp.IsZero() {
			log.Printf("webhook: skipping malformed commit entry in push for %s", repoURL)
			continue
		}

		evt := models.CommitEvent{
			AuthorEmail: commit.Author.Email,
			RepoURL:     repoURL,
			CommitSHA:   commit.ID,
			Message:     commit.Message,
			CommittedAt: commit.Timestamp.UTC(),
		}

		msg, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if err := h.redis.RPush(r.Context(), worker.CommitQueue, msg).Err(); err != nil {
			log.Printf("webhook: failed to enqueue commit %s: %v", commit.ID, err)
			writeJSON(w, http.StatusServiceUnavailable, errorResp("QUEUE_UNAVAILABLE", "Failed to enqueue commit events", r))
			return
		}
		enqueued++
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"enqueued": enqueued})
}
