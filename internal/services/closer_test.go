package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"commitpact-backend/internal/models"
)

// ─── Fakes ───

type fakeClosableStore struct {
	mu       sync.Mutex
	sessions []*models.ActiveSession
}

func (f *fakeClosableStore) ListActive(context.Context) ([]models.ActiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	active := make([]models.ActiveSession, 0)
	for _, s := range f.sessions {
		if s.Status == models.SessionActive {
			active = append(active, *s)
		}
	}
	return active, nil
}

func (f *fakeClosableStore) MarkClosed(_ context.Context, id uuid.UUID, closedAt time.Time, externalRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sessions {
		if s.ID == id {
			if s.Status != models.SessionActive {
				return false, nil
			}
			s.Status = models.SessionClosed
			s.ClosedAt = &closedAt
			s.ExternalRef = &externalRef
			return true, nil
		}
	}
	return false, nil
}

type fakeCloseLedger struct {
	fakeLedger
	closeCalls int
	closeErrs  map[string]error // keyed by ledger ref
}

func (f *fakeCloseLedger) CloseSession(_ context.Context, ledgerRef string, _ time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if err := f.closeErrs[ledgerRef]; err != nil {
		return "", err
	}
	return "0xtx-" + ledgerRef, nil
}

type fakeUnackedStore struct {
	mu      sync.Mutex
	records []models.UnackedAttendance
	acked   map[uuid.UUID]bool
}

func (f *fakeUnackedStore) ListUnacked(_ context.Context, before time.Time) ([]models.UnackedAttendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.UnackedAttendance, 0)
	for _, r := range f.records {
		if !f.acked[r.AttendanceID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeUnackedStore) MarkLedgerAcked(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked[id] = true
	return nil
}

type fakeOpsBus struct {
	mu           sync.Mutex
	published    []models.WSMessage
	setNXResults []bool
	setNXCalls   int
}

func (f *fakeOpsBus) Publish(ctx context.Context, _ string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	var msg models.WSMessage
	if err := json.Unmarshal(message.([]byte), &msg); err == nil {
		f.published = append(f.published, msg)
	}
	return redis.NewIntCmd(ctx)
}

func (f *fakeOpsBus) SetNX(ctx context.Context, _ string, _ interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	set := true
	if f.setNXCalls < len(f.setNXResults) {
		set = f.setNXResults[f.setNXCalls]
	}
	f.setNXCalls++

	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(set)
	return cmd
}

type fakeAlertMailer struct {
	mu    sync.Mutex
	sends [][]models.ActiveSession
}

func (f *fakeAlertMailer) SendPastDueAlert(_ string, sessions []models.ActiveSession, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sessions)
	return nil
}

// ─── Helpers ───

func activeSession(ledgerRef string, midnightUTC time.Time, endOffset int) *models.ActiveSession {
	return &models.ActiveSession{
		Session: models.Session{
			ID:           uuid.New(),
			StudyID:      uuid.New(),
			CalendarDate: midnightUTC.Add(kst * time.Second).Format("2006-01-02"),
			MidnightUTC:  midnightUTC,
			Status:       models.SessionActive,
		},
		EndOffsetSeconds: endOffset,
		LedgerRef:        ledgerRef,
	}
}

func newTestCloser(store *fakeClosableStore, unacked *fakeUnackedStore, led *fakeCloseLedger) *Closer {
	return NewCloser(store, unacked, led, nil, nil, "", time.Hour, 15*time.Minute, 6*time.Hour)
}

// ─── Tests ───

func TestRunOnceClosureMonotonicity(t *testing.T) {
	midnight := time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC) // 2024-05-01 00:00 KST
	session := activeSession("study-1", midnight, 90000)
	windowEnd := midnight.Add(90000 * time.Second)

	store := &fakeClosableStore{sessions: []*models.ActiveSession{session}}
	led := &fakeCloseLedger{}
	c := newTestCloser(store, &fakeUnackedStore{acked: map[uuid.UUID]bool{}}, led)

	// One second before the window end: untouched.
	outcomes := c.RunOnce(context.Background(), windowEnd.Add(-time.Second))
	if len(outcomes) != 1 || outcomes[0].Outcome != "skipped" {
		t.Fatalf("pass before window end should skip, got %+v", outcomes)
	}
	if led.closeCalls != 0 {
		t.Error("no ledger call expected before window end")
	}

	// One second after: closed with the ledger's transaction reference.
	outcomes = c.RunOnce(context.Background(), windowEnd.Add(time.Second))
	if len(outcomes) != 1 || outcomes[0].Outcome != "closed" {
		t.Fatalf("pass after window end should close, got %+v", outcomes)
	}
	if outcomes[0].TxRef != "0xtx-study-1" {
		t.Errorf("txRef = %q", outcomes[0].TxRef)
	}
	if session.Status != models.SessionClosed {
		t.Errorf("session status = %s, want CLOSED", session.Status)
	}

	// A later pass no longer sees the session and never re-calls the ledger.
	outcomes = c.RunOnce(context.Background(), windowEnd.Add(time.Hour))
	if len(outcomes) != 0 {
		t.Fatalf("closed session reappeared in scan: %+v", outcomes)
	}
	if led.closeCalls != 1 {
		t.Errorf("closeCalls = %d, want 1", led.closeCalls)
	}
}

func TestRunOnceExactBoundaryNotClosed(t *testing.T) {
	midnight := time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC)
	session := activeSession("study-1", midnight, 90000)
	windowEnd := midnight.Add(90000 * time.Second)

	store := &fakeClosableStore{sessions: []*models.ActiveSession{session}}
	c := newTestCloser(store, &fakeUnackedStore{acked: map[uuid.UUID]bool{}}, &fakeCloseLedger{})

	// The window end instant itself is still inside the window.
	outcomes := c.RunOnce(context.Background(), windowEnd)
	if outcomes[0].Outcome != "skipped" {
		t.Errorf("session at exact window end should stay open, got %s", outcomes[0].Outcome)
	}
}

func TestRunOnceFailureIsolatedPerSession(t *testing.T) {
	midnight := time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC)
	broken := activeSession("study-broken", midnight, 39600)
	healthy := activeSession("study-ok", midnight, 39600)

	store := &fakeClosableStore{sessions: []*models.ActiveSession{broken, healthy}}
	led := &fakeCloseLedger{closeErrs: map[string]error{"study-broken": errors.New("rpc timeout")}}
	c := newTestCloser(store, &fakeUnackedStore{acked: map[uuid.UUID]bool{}}, led)

	outcomes := c.RunOnce(context.Background(), midnight.Add(24*time.Hour))
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}

	byRef := map[uuid.UUID]CloseOutcome{}
	for _, o := range outcomes {
		byRef[o.SessionID] = o
	}

	if byRef[broken.ID].Outcome != "failed" {
		t.Errorf("broken session outcome = %s, want failed", byRef[broken.ID].Outcome)
	}
	if broken.Status != models.SessionActive {
		t.Error("failed closure must leave the session ACTIVE for the next tick")
	}
	if byRef[healthy.ID].Outcome != "closed" {
		t.Errorf("healthy session outcome = %s, want closed", byRef[healthy.ID].Outcome)
	}

	// The next pass retries only the broken session.
	outcomes = c.RunOnce(context.Background(), midnight.Add(25*time.Hour))
	if len(outcomes) != 1 || outcomes[0].SessionID != broken.ID {
		t.Fatalf("expected retry of the failed session only, got %+v", outcomes)
	}
}

func TestSweepUnackedRetriesAndAcks(t *testing.T) {
	recID := uuid.New()
	unacked := &fakeUnackedStore{
		records: []models.UnackedAttendance{{
			AttendanceID:  recID,
			LedgerRef:     "study-1",
			MidnightUTC:   time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC),
			WalletAddress: "0xaaa",
			CommittedAt:   time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC),
		}},
		acked: map[uuid.UUID]bool{},
	}

	led := &fakeCloseLedger{}
	c := newTestCloser(&fakeClosableStore{}, unacked, led)

	c.sweepUnacked(context.Background(), time.Now().UTC())
	if !unacked.acked[recID] {
		t.Error("successful retry should mark the record acked")
	}
	if led.recordCalls != 1 {
		t.Errorf("recordCalls = %d, want 1", led.recordCalls)
	}

	// A second sweep finds nothing left to do.
	c.sweepUnacked(context.Background(), time.Now().UTC())
	if led.recordCalls != 1 {
		t.Errorf("acked record retried again: recordCalls = %d", led.recordCalls)
	}
}

func TestRunOncePublishesClosedEvent(t *testing.T) {
	midnight := time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC)
	session := activeSession("study-1", midnight, 90000)
	windowEnd := midnight.Add(90000 * time.Second)

	store := &fakeClosableStore{sessions: []*models.ActiveSession{session}}
	bus := &fakeOpsBus{}
	c := NewCloser(store, &fakeUnackedStore{acked: map[uuid.UUID]bool{}}, &fakeCloseLedger{}, nil, bus, "", time.Hour, 15*time.Minute, 6*time.Hour)

	// A skipped pass stays silent on the ops channel.
	c.RunOnce(context.Background(), windowEnd.Add(-time.Second))
	if len(bus.published) != 0 {
		t.Fatalf("skipped pass published %d events", len(bus.published))
	}

	c.RunOnce(context.Background(), windowEnd.Add(time.Second))
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(bus.published))
	}

	msg := bus.published[0]
	if msg.Type != "session_closed" {
		t.Errorf("event type = %q, want session_closed", msg.Type)
	}
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("payload type = %T", msg.Payload)
	}
	if payload["session_id"] != session.ID.String() {
		t.Errorf("session_id = %v, want %s", payload["session_id"], session.ID)
	}
	if payload["external_ref"] != "0xtx-study-1" {
		t.Errorf("external_ref = %v", payload["external_ref"])
	}
}

func TestAlertPastDueThresholdAndRateLimit(t *testing.T) {
	midnight := time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC)
	session := activeSession("study-1", midnight, 39600)
	windowEnd := midnight.Add(39600 * time.Second)

	store := &fakeClosableStore{sessions: []*models.ActiveSession{session}}
	mailer := &fakeAlertMailer{}
	bus := &fakeOpsBus{setNXResults: []bool{true, false}}
	c := NewCloser(store, &fakeUnackedStore{acked: map[uuid.UUID]bool{}}, &fakeCloseLedger{}, mailer, bus, "ops@example.com", time.Hour, 15*time.Minute, 6*time.Hour)

	// Exactly at the threshold: not yet past due.
	c.alertPastDue(context.Background(), windowEnd.Add(6*time.Hour))
	if len(mailer.sends) != 0 {
		t.Fatalf("alert sent before the past-due threshold")
	}

	// Past the threshold: one alert listing the stuck session.
	c.alertPastDue(context.Background(), windowEnd.Add(6*time.Hour+time.Second))
	if len(mailer.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(mailer.sends))
	}
	if len(mailer.sends[0]) != 1 || mailer.sends[0][0].ID != session.ID {
		t.Errorf("alert listed %+v, want session %s", mailer.sends[0], session.ID)
	}

	// The redis marker suppresses the next pass.
	c.alertPastDue(context.Background(), windowEnd.Add(7*time.Hour))
	if len(mailer.sends) != 1 {
		t.Errorf("rate-limited pass sent another alert: sends = %d", len(mailer.sends))
	}
}

func TestSweepUnackedKeepsFailingRecords(t *testing.T) {
	recID := uuid.New()
	unacked := &fakeUnackedStore{
		records: []models.UnackedAttendance{{AttendanceID: recID, LedgerRef: "study-1"}},
		acked:   map[uuid.UUID]bool{},
	}

	led := &fakeCloseLedger{}
	led.recordErr = errors.New("still down")
	c := newTestCloser(&fakeClosableStore{}, unacked, led)

	c.sweepUnacked(context.Background(), time.Now().UTC())
	if unacked.acked[recID] {
		t.Error("failed retry must leave the record unacked")
	}

	// Retried again on the next sweep.
	c.sweepUnacked(context.Background(), time.Now().UTC())
	if led.recordCalls != 2 {
		t.Errorf("recordCalls = %d, want 2", led.recordCalls)
	}
}
