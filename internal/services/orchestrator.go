package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"commitpact-backend/internal/ledger"
	"commitpact-backend/internal/models"
	"commitpact-backend/internal/window"
)

// OpsEventChannel is the redis pub/sub channel the websocket hub relays to
// operator clients.
const OpsEventChannel = "ops:events"

// MembershipDirectory resolves a commit author to a study participant.
type MembershipDirectory interface {
	FindMembership(ctx context.Context, email, repoURL string) (*models.Membership, error)
}

// SessionStore is the slice of the session repository the orchestrator needs.
type SessionStore interface {
	GetOrCreate(ctx context.Context, studyID uuid.UUID, calendarDate string, midnightUTC time.Time) (*models.Session, error)
	MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// AttendanceStore is the local attendance ledger.
type AttendanceStore interface {
	Insert(ctx context.Context, a *models.Attendance) (bool, error)
	MarkLedgerAcked(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Orchestrator turns inbound commit events into session and attendance state.
// It is safe to run concurrently for different events: the store uniqueness
// constraints are the only synchronization it relies on.
type Orchestrator struct {
	directory   MembershipDirectory
	sessions    SessionStore
	attendances AttendanceStore
	ledger      ledger.Ledger
	pubsub      *redis.Client
	localOffset int
}

func NewOrchestrator(
	directory MembershipDirectory,
	sessions SessionStore,
	attendances AttendanceStore,
	ledgerClient ledger.Ledger,
	pubsubClient *redis.Client,
	localOffsetSeconds int,
) *Orchestrator {
	return &Orchestrator{
		directory:   directory,
		sessions:    sessions,
		attendances: attendances,
		ledger:      ledgerClient,
		pubsub:      pubsubClient,
		localOffset: localOffsetSeconds,
	}
}

// HandleCommit processes one delivered commit. A nil return means the event
// is fully absorbed: recorded, out-of-window, from an outsider, or a
// duplicate. A non-nil return means a ledger call failed after the local
// attendance row was committed; the row stands and the unacked sweep owns the
// retry.
func (o *Orchestrator) HandleCommit(ctx context.Context, evt models.CommitEvent) error {
	membership, err := o.directory.FindMembership(ctx, evt.AuthorEmail, evt.RepoURL)
	if err != nil {
		return fmt.Errorf("membership lookup for %s: %w", evt.AuthorEmail, err)
	}
	if membership == nil {
		log.Printf("orchestrator: no membership for %s on %s, discarding commit %s", evt.AuthorEmail, evt.RepoURL, shortSHA(evt.CommitSHA))
		return nil
	}

	res, ok := window.Resolve(evt.CommittedAt, membership.StartOffsetSeconds, membership.EndOffsetSeconds, o.localOffset)
	if !ok {
		log.Printf("orchestrator: commit %s at %s outside window, discarding", shortSHA(evt.CommitSHA), evt.CommittedAt.UTC().Format(time.RFC3339))
		return nil
	}

	session, err := o.sessions.GetOrCreate(ctx, membership.StudyID, res.CalendarDate, res.MidnightUTC)
	if err != nil {
		return fmt.Errorf("get-or-create session for %s/%s: %w", membership.StudyID, res.CalendarDate, err)
	}

	record := &models.Attendance{
		SessionID:     session.ID,
		ParticipantID: membership.ParticipantID,
		CommitSHA:     evt.CommitSHA,
		CommitMessage: evt.Message,
		CommittedAt:   evt.CommittedAt.UTC(),
	}
	created, err := o.attendances.Insert(ctx, record)
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	if !created {
		// Second commit of the day or a redelivery; nothing more to do.
		return nil
	}

	isFirst, err := o.sessions.MarkStarted(ctx, session.ID, evt.CommittedAt.UTC())
	if err != nil {
		return fmt.Errorf("mark session started: %w", err)
	}

	if isFirst {
		outcome, err := o.ledger.StartSession(ctx, membership.LedgerRef, res.MidnightUTC)
		if err != nil {
			// The local attendance row is authoritative and is not rolled
			// back; divergence is picked up by the unacked sweep.
			log.Printf("orchestrator: ledger start session failed for %s/%s: %v", membership.LedgerRef, res.CalendarDate, err)
			return fmt.Errorf("ledger start session: %w", err)
		}
		if outcome == ledger.AlreadyStarted {
			log.Printf("orchestrator: session %s/%s already started on ledger", membership.LedgerRef, res.CalendarDate)
		}
		o.publish("session_started", models.SessionStartedEvent{
			SessionID:    session.ID,
			StudyID:      session.StudyID,
			CalendarDate: session.CalendarDate,
			StartedAt:    evt.CommittedAt.UTC(),
		})
	}

	if err := o.ledger.RecordAttendance(ctx, membership.LedgerRef, res.MidnightUTC, membership.WalletAddress, evt.CommittedAt.UTC()); err != nil {
		log.Printf("orchestrator: ledger record attendance failed for %s: %v", membership.WalletAddress, err)
		return fmt.Errorf("ledger record attendance: %w", err)
	}

	if err := o.attendances.MarkLedgerAcked(ctx, record.ID, time.Now().UTC()); err != nil {
		log.Printf("orchestrator: failed to mark attendance %s acked: %v", record.ID, err)
	}

	o.publish("attendance_recorded", models.AttendanceRecordedEvent{
		SessionID:     session.ID,
		ParticipantID: membership.ParticipantID,
		CommitSHA:     evt.CommitSHA,
		CommittedAt:   evt.CommittedAt.UTC(),
	})

	return nil
}

func (o *Orchestrator) publish(eventType string, payload interface{}) {
	if o.pubsub == nil {
		return
	}

	msg, err := json.Marshal(models.WSMessage{Type: eventType, Payload: payload})
	if err != nil {
		return
	}
	if err := o.pubsub.Publish(context.Background(), OpsEventChannel, msg).Err(); err != nil {
		log.Printf("orchestrator: failed to publish %s event: %v", eventType, err)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
