package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"commitpact-backend/internal/models"
)

type ParticipantRepo struct {
	pool *pgxpool.Pool
}

func NewParticipantRepo(pool *pgxpool.Pool) *ParticipantRepo {
	return &ParticipantRepo{pool: pool}
}

func (r *ParticipantRepo) Create(ctx context.Context, p *models.Participant) error {
	query := `
		INSERT INTO participants (id, study_id, email, wallet_address)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	p.ID = uuid.New()

	return r.pool.QueryRow(ctx, query, p.ID, p.StudyID, p.Email, p.WalletAddress).Scan(&p.CreatedAt)
}

// FindMembership resolves a commit author to a study participant. Returns
// (nil, nil) when the author has no membership for the repository; commits
// from outsiders are not an error.
func (r *ParticipantRepo) FindMembership(ctx context.Context, email, repoURL string) (*models.Membership, error) {
	m := &models.Membership{}
	query := `
		SELECT s.id, p.id, p.wallet_address, s.ledger_ref, s.start_offset_seconds, s.end_offset_seconds
		FROM participants p
		JOIN studies s ON s.id = p.study_id
		WHERE p.email = $1 AND s.repo_url = $2`

	err := r.pool.QueryRow(ctx, query, email, repoURL).Scan(
		&m.StudyID, &m.ParticipantID, &m.WalletAddress,
		&m.LedgerRef, &m.StartOffsetSeconds, &m.EndOffsetSeconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *ParticipantRepo) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, study_id, email, wallet_address, created_at
		FROM participants WHERE study_id = $1 ORDER BY created_at`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.StudyID, &p.Email, &p.WalletAddress, &p.CreatedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
