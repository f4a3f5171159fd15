package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"commitpact-backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, study_id, calendar_date::text, midnight_utc, status, started_at, closed_at, external_ref, failure_reason, created_at`

func scanSession(row pgx.Row, s *models.Session) error {
	return row.Scan(
		&s.ID, &s.StudyID, &s.CalendarDate, &s.MidnightUTC, &s.Status,
		&s.StartedAt, &s.ClosedAt, &s.ExternalRef, &s.FailureReason, &s.CreatedAt,
	)
}

// GetOrCreate resolves the session row for (study, calendarDate), creating it
// as ACTIVE if absent. The (study_id, calendar_date) uniqueness constraint
// collapses concurrent creations to a single row; losers fall through to the
// select.
func (r *SessionRepo) GetOrCreate(ctx context.Context, studyID uuid.UUID, calendarDate string, midnightUTC time.Time) (*models.Session, error) {
	s := &models.Session{}

	insert := `
		INSERT INTO sessions (id, study_id, calendar_date, midnight_utc, status)
		VALUES ($1, $2, $3::date, $4, 'ACTIVE')
		ON CONFLICT (study_id, calendar_date) DO NOTHING
		RETURNING ` + sessionColumns

	err := scanSession(r.pool.QueryRow(ctx, insert, uuid.New(), studyID, calendarDate, midnightUTC), s)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Row already existed; another writer got there first.
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE study_id = $1 AND calendar_date = $2::date`
	if err := scanSession(r.pool.QueryRow(ctx, query, studyID, calendarDate), s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s := &models.Session{}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	if err := scanSession(r.pool.QueryRow(ctx, query, id), s); err != nil {
		return nil, err
	}
	return s, nil
}

// MarkStarted stamps the first accepted commit time onto the session. The
// started_at IS NULL guard makes this a single-winner operation: exactly one
// caller per session observes true, and that caller owes the ledger a
// session-start call.
func (r *SessionRepo) MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET started_at = $2 WHERE id = $1 AND started_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListActive returns every ACTIVE session joined with the owning study's
// window end and ledger reference, for the closure pass.
func (r *SessionRepo) ListActive(ctx context.Context) ([]models.ActiveSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.study_id, s.calendar_date::text, s.midnight_utc, s.status,
		       s.started_at, s.closed_at, s.external_ref, s.created_at,
		       st.end_offset_seconds, st.ledger_ref
		FROM sessions s
		JOIN studies st ON st.id = s.study_id
		WHERE s.status = 'ACTIVE'
		ORDER BY s.midnight_utc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.ActiveSession, 0)
	for rows.Next() {
		var s models.ActiveSession
		if err := rows.Scan(
			&s.ID, &s.StudyID, &s.CalendarDate, &s.MidnightUTC, &s.Status,
			&s.StartedAt, &s.ClosedAt, &s.ExternalRef, &s.CreatedAt,
			&s.EndOffsetSeconds, &s.LedgerRef,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// MarkClosed transitions ACTIVE → CLOSED. The status guard keeps terminal
// states immutable; closing an already-closed session is a no-op reported as
// false.
func (r *SessionRepo) MarkClosed(ctx context.Context, id uuid.UUID, closedAt time.Time, externalRef string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET status = 'CLOSED', closed_at = $2, external_ref = $3
		WHERE id = $1 AND status = 'ACTIVE'`, id, closedAt, externalRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed transitions ACTIVE → FAILED and records the operator's reason.
// Only reachable through the administrative endpoint; the closure pass never
// escalates on its own.
func (r *SessionRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET status = 'FAILED', failure_reason = NULLIF($2, '')
		WHERE id = $1 AND status = 'ACTIVE'`, id, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// List is the read projection behind GET /sessions. Empty studyID/status
// leave that filter open.
func (r *SessionRepo) List(ctx context.Context, studyID *uuid.UUID, status string) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE ($1::uuid IS NULL OR study_id = $1)
		  AND ($2::text = '' OR status = $2)
		ORDER BY midnight_utc DESC`, studyID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(
			&s.ID, &s.StudyID, &s.CalendarDate, &s.MidnightUTC, &s.Status,
			&s.StartedAt, &s.ClosedAt, &s.ExternalRef, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
