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

type AttendanceRepo struct {
	pool *pgxpool.Pool
}

func NewAttendanceRepo(pool *pgxpool.Pool) *AttendanceRepo {
	return &AttendanceRepo{pool: pool}
}

// Insert records the participant's first commit of the session. The
// (session_id, participant_id) uniqueness constraint absorbs both redelivery
// of the same commit and later commits inside the same window: either way the
// insert is a no-op and created is false.
func (r *AttendanceRepo) Insert(ctx context.Context, a *models.Attendance) (created bool, err error) {
	query := `
		INSERT INTO attendances (id, session_id, participant_id, commit_sha, commit_message, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, participant_id) DO NOTHING
		RETURNING id, created_at`

	a.ID = uuid.New()

	err = r.pool.QueryRow(ctx, query,
		a.ID, a.SessionID, a.ParticipantID, a.CommitSHA, a.CommitMessage, a.CommittedAt,
	).Scan(&a.ID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkLedgerAcked stamps the time the remote ledger confirmed this record.
func (r *AttendanceRepo) MarkLedgerAcked(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attendances SET ledger_acked_at = $2 WHERE id = $1 AND ledger_acked_at IS NULL`, id, at)
	return err
}

// ListUnacked returns attendance records whose ledger call never succeeded,
// created before the cutoff. The retry sweep re-issues those calls; event
// redelivery cannot, because the local row already deduplicates it.
func (r *AttendanceRepo) ListUnacked(ctx context.Context, before time.Time) ([]models.UnackedAttendance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, st.ledger_ref, s.midnight_utc, p.wallet_address, a.committed_at
		FROM attendances a
		JOIN sessions s ON s.id = a.session_id
		JOIN studies st ON st.id = s.study_id
		JOIN participants p ON p.id = a.participant_id
		WHERE a.ledger_acked_at IS NULL AND a.created_at < $1
		ORDER BY a.created_at`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.UnackedAttendance, 0)
	for rows.Next() {
		var u models.UnackedAttendance
		if err := rows.Scan(&u.AttendanceID, &u.LedgerRef, &u.MidnightUTC, &u.WalletAddress, &u.CommittedAt); err != nil {
			return nil, err
		}
		records = append(records, u)
	}
	return records, rows.Err()
}

func (r *AttendanceRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Attendance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, participant_id, commit_sha, commit_message, committed_at, ledger_acked_at, created_at
		FROM attendances WHERE session_id = $1 ORDER BY committed_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.Attendance, 0)
	for rows.Next() {
		var a models.Attendance
		if err := rows.Scan(
			&a.ID, &a.SessionID, &a.ParticipantID, &a.CommitSHA,
			&a.CommitMessage, &a.CommittedAt, &a.LedgerAckedAt, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
