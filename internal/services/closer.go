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
)

const pastDueAlertSentKey = "ops:past_due_alert_sent"

// CloseOutcome is one session's result from a manually triggered close pass.
type CloseOutcome struct {
	SessionID    uuid.UUID `json:"session_id"`
	CalendarDate string    `json:"calendar_date"`
	Outcome      string    `json:"outcome"` // "closed" | "skipped" | "failed"
	Reason       string    `json:"reason,omitempty"`
	TxRef        string    `json:"tx_ref,omitempty"`
}

// ClosableSessionStore is the slice of the session repository the closer needs.
type ClosableSessionStore interface {
	ListActive(ctx context.Context) ([]models.ActiveSession, error)
	MarkClosed(ctx context.Context, id uuid.UUID, closedAt time.Time, externalRef string) (bool, error)
}

// UnackedStore lists and acknowledges attendance records whose ledger call
// never succeeded.
type UnackedStore interface {
	ListUnacked(ctx context.Context, before time.Time) ([]models.UnackedAttendance, error)
	MarkLedgerAcked(ctx context.Context, id uuid.UUID, at time.Time) error
}

// OpsBus is the slice of the redis client the closer uses: the ops event
// channel and the alert rate-limit marker. *redis.Client satisfies it.
type OpsBus interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// AlertMailer delivers the past-due operator alert. *EmailService satisfies it.
type AlertMailer interface {
	SendPastDueAlert(to string, sessions []models.ActiveSession, now time.Time) error
}

// Closer reconciles session state against wall-clock time and the remote
// ledger: it closes sessions whose window has ended, retries unacknowledged
// attendance records, and alerts operators about sessions stuck past due.
type Closer struct {
	sessions    ClosableSessionStore
	attendances UnackedStore
	ledger      ledger.Ledger
	email       AlertMailer
	bus         OpsBus
	alertsTo    string

	closeInterval time.Duration
	sweepInterval time.Duration
	pastDueAfter  time.Duration

	stopChan chan struct{}
}

func NewCloser(
	sessions ClosableSessionStore,
	attendances UnackedStore,
	ledgerClient ledger.Ledger,
	email AlertMailer,
	bus OpsBus,
	alertsTo string,
	closeInterval, sweepInterval, pastDueAfter time.Duration,
) *Closer {
	return &Closer{
		sessions:      sessions,
		attendances:   attendances,
		ledger:        ledgerClient,
		email:         email,
		bus:           bus,
		alertsTo:      alertsTo,
		closeInterval: closeInterval,
		sweepInterval: sweepInterval,
		pastDueAfter:  pastDueAfter,
		stopChan:      make(chan struct{}),
	}
}

func (c *Closer) Start() {
	go c.loop(c.closeInterval, func(ctx context.Context, now time.Time) {
		c.RunOnce(ctx, now)
	})
	go c.loop(c.sweepInterval, c.sweepUnacked)
	go c.loop(c.closeInterval, c.alertPastDue)

	log.Printf("Closure scheduler started (close pass every %s)", c.closeInterval)
}

func (c *Closer) Stop() {
	select {
	case <-c.stopChan:
		return
	default:
		close(c.stopChan)
	}
}

func (c *Closer) loop(interval time.Duration, runFn func(ctx context.Context, now time.Time)) {
	// Run on startup as well as by interval.
	runFn(context.Background(), time.Now().UTC())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			runFn(context.Background(), time.Now().UTC())
		}
	}
}

// RunOnce performs one close pass and reports the outcome per session. Each
// session's closure is isolated: a ledger failure leaves that session ACTIVE
// for the next tick and never aborts the rest of the scan.
func (c *Closer) RunOnce(ctx context.Context, now time.Time) []CloseOutcome {
	active, err := c.sessions.ListActive(ctx)
	if err != nil {
		log.Printf("close pass: failed to list active sessions: %v", err)
		return nil
	}

	outcomes := make([]CloseOutcome, 0, len(active))
	for _, session := range active {
		outcome := CloseOutcome{SessionID: session.ID, CalendarDate: session.CalendarDate}

		windowEnd := session.WindowEndUTC()
		if !now.After(windowEnd) {
			outcome.Outcome = "skipped"
			outcome.Reason = fmt.Sprintf("window open until %s", windowEnd.Format(time.RFC3339))
			outcomes = append(outcomes, outcome)
			continue
		}

		txRef, err := c.ledger.CloseSession(ctx, session.LedgerRef, session.MidnightUTC)
		if err != nil {
			log.Printf("close pass: ledger close failed for session %s (%s): %v", session.ID, session.CalendarDate, err)
			outcome.Outcome = "failed"
			outcome.Reason = err.Error()
			outcomes = append(outcomes, outcome)
			continue
		}

		closed, err := c.sessions.MarkClosed(ctx, session.ID, now, txRef)
		if err != nil {
			log.Printf("close pass: failed to mark session %s closed: %v", session.ID, err)
			outcome.Outcome = "failed"
			outcome.Reason = err.Error()
			outcomes = append(outcomes, outcome)
			continue
		}
		if !closed {
			// Lost a race with another closer; the session is already terminal.
			outcome.Outcome = "skipped"
			outcome.Reason = "already closed"
			outcomes = append(outcomes, outcome)
			continue
		}

		log.Printf("close pass: session %s (%s) closed, tx %s", session.ID, session.CalendarDate, txRef)
		c.publish(ctx, "session_closed", models.SessionClosedEvent{
			SessionID:   session.ID,
			ClosedAt:    now,
			ExternalRef: txRef,
		})
		outcome.Outcome = "closed"
		outcome.TxRef = txRef
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// sweepUnacked retries the ledger attendance call for records whose original
// call failed after the local insert. Event redelivery cannot retry these:
// the local row already deduplicates the commit.
func (c *Closer) sweepUnacked(ctx context.Context, now time.Time) {
	// Leave fresh records to the commit path; only pick up ones old enough
	// that their original ledger call has clearly not succeeded.
	cutoff := now.Add(-5 * time.Minute)

	records, err := c.attendances.ListUnacked(ctx, cutoff)
	if err != nil {
		log.Printf("ack sweep: failed to list unacked attendance: %v", err)
		return
	}

	for _, rec := range records {
		if err := c.ledger.RecordAttendance(ctx, rec.LedgerRef, rec.MidnightUTC, rec.WalletAddress, rec.CommittedAt); err != nil {
			log.Printf("ack sweep: retry failed for attendance %s: %v", rec.AttendanceID, err)
			continue
		}
		if err := c.attendances.MarkLedgerAcked(ctx, rec.AttendanceID, now); err != nil {
			log.Printf("ack sweep: failed to mark attendance %s acked: %v", rec.AttendanceID, err)
		}
	}
}

// alertPastDue emails operators when ACTIVE sessions linger past their window
// end. Purely advisory; the close pass keeps retrying regardless.
func (c *Closer) alertPastDue(ctx context.Context, now time.Time) {
	if c.email == nil || c.alertsTo == "" {
		return
	}

	active, err := c.sessions.ListActive(ctx)
	if err != nil {
		log.Printf("past-due alert: failed to list active sessions: %v", err)
		return
	}

	pastDue := make([]models.ActiveSession, 0)
	for _, session := range active {
		if now.Sub(session.WindowEndUTC()) > c.pastDueAfter {
			pastDue = append(pastDue, session)
		}
	}
	if len(pastDue) == 0 {
		return
	}

	if c.bus != nil {
		// One alert per close interval, across restarts.
		set, err := c.bus.SetNX(ctx, pastDueAlertSentKey, now.Format(time.RFC3339), c.closeInterval).Result()
		if err != nil || !set {
			return
		}
	}

	if err := c.email.SendPastDueAlert(c.alertsTo, pastDue, now); err != nil {
		log.Printf("past-due alert: failed to send: %v", err)
	}
}

func (c *Closer) publish(ctx context.Context, eventType string, payload interface{}) {
	if c.bus == nil {
		return
	}

	msg, err := json.Marshal(models.WSMessage{Type: eventType, Payload: payload})
	if err != nil {
		return
	}
	if err := c.bus.Publish(ctx, OpsEventChannel, msg).Err(); err != nil {
		log.Printf("close pass: failed to publish %s event: %v", eventType, err)
	}
}
