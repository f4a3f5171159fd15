package models

import (
	"time"

	"github.com/google/uuid"
)

// Session status values. Transitions are monotonic: ACTIVE → CLOSED or
// ACTIVE → FAILED, nothing leaves a terminal state.
const (
	SessionActive = "ACTIVE"
	SessionClosed = "CLOSED"
	SessionFailed = "FAILED"
)

// Session is one calendar-date occurrence of a study's window. MidnightUTC is
// the UTC instant of that date's local midnight, persisted at creation so
// closure uses the same date basis as attribution.
type Session struct {
	ID            uuid.UUID  `json:"id"`
	StudyID       uuid.UUID  `json:"study_id"`
	CalendarDate  string     `json:"calendar_date"` // YYYY-MM-DD
	MidnightUTC   time.Time  `json:"midnight_utc"`
	Status        string     `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	ExternalRef   *string    `json:"external_ref,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// FailSessionRequest is the optional body of the administrative fail
// endpoint.
type FailSessionRequest struct {
	Reason string `json:"reason"`
}

// ActiveSession is a scan row for the closure pass: the session joined with
// the owning study's window end and ledger reference.
type ActiveSession struct {
	Session
	EndOffsetSeconds int
	LedgerRef        string
}

// WindowEndUTC is the instant the session's window closes.
func (s *ActiveSession) WindowEndUTC() time.Time {
	return s.MidnightUTC.Add(time.Duration(s.EndOffsetSeconds) * time.Second)
}
