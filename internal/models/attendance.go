package models

import (
	"time"

	"github.com/google/uuid"
)

// Attendance is the fact that a participant made a creditable commit within a
// session. One row per (session, participant); later commits in the same
// window are ignored. LedgerAckedAt is set once the remote ledger has
// confirmed the attendance, and drives the retry sweep for records whose
// ledger call failed after the local insert.
type Attendance struct {
	ID            uuid.UUID  `json:"id"`
	SessionID     uuid.UUID  `json:"session_id"`
	ParticipantID uuid.UUID  `json:"participant_id"`
	CommitSHA     string     `json:"commit_sha"`
	CommitMessage string     `json:"commit_message"`
	CommittedAt   time.Time  `json:"committed_at"`
	LedgerAckedAt *time.Time `json:"ledger_acked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// UnackedAttendance joins an attendance row with the study/session fields the
// retry sweep needs to re-issue the ledger call.
type UnackedAttendance struct {
	AttendanceID  uuid.UUID
	LedgerRef     string
	MidnightUTC   time.Time
	WalletAddress string
	CommittedAt   time.Time
}
