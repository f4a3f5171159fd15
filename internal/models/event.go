package models

import (
	"time"

	"github.com/google/uuid"
)

// CommitEvent is one commit delivered by the event source. Delivery is
// at-least-once: the same commit may arrive more than once and must be
// deduplicated downstream.
type CommitEvent struct {
	AuthorEmail string    `json:"author_email"`
	RepoURL     string    `json:"repo_url"`
	CommitSHA   string    `json:"commit_sha"`
	Message     string    `json:"message"`
	CommittedAt time.Time `json:"committed_at"`
	RetryCount  int       `json:"retry_count"`
}

// WebSocket message envelope for the ops event feed
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type SessionStartedEvent struct {
	SessionID    uuid.UUID `json:"session_id"`
	StudyID      uuid.UUID `json:"study_id"`
	CalendarDate string    `json:"calendar_date"`
	StartedAt    time.Time `json:"started_at"`
}

type AttendanceRecordedEvent struct {
	SessionID     uuid.UUID `json:"session_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	CommitSHA     string    `json:"commit_sha"`
	CommittedAt   time.Time `json:"committed_at"`
}

type SessionClosedEvent struct {
	SessionID   uuid.UUID `json:"session_id"`
	ClosedAt    time.Time `json:"closed_at"`
	ExternalRef string    `json:"external_ref"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
