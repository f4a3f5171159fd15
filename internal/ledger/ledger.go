// Package ledger wraps the remote settlement ledger. The ledger is the system
// of record for deposits and penalties; this service only tells it when a
// session started, who attended, and when to close and settle.
package ledger

import (
	"context"
	"time"
)

// StartOutcome is the tagged result of StartSession. An AlreadyStarted
// response is an idempotent collision, not a failure: a concurrent commit or
// an earlier retry started the session first.
type StartOutcome int

const (
	Started StartOutcome = iota
	AlreadyStarted
)

// Ledger is the remote capability consumed by the orchestrator and the
// closure scheduler. Implementations must bound every call with a timeout;
// neither the commit path nor a scheduler tick may block indefinitely on the
// network.
type Ledger interface {
	StartSession(ctx context.Context, ledgerRef string, midnightUTC time.Time) (StartOutcome, error)
	RecordAttendance(ctx context.Context, ledgerRef string, midnightUTC time.Time, walletAddress string, committedAt time.Time) error
	CloseSession(ctx context.Context, ledgerRef string, midnightUTC time.Time) (txRef string, err error)
}
