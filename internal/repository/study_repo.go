package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"commitpact-backend/internal/models"
)

type StudyRepo struct {
	pool *pgxpool.Pool
}

func NewStudyRepo(pool *pgxpool.Pool) *StudyRepo {
	return &StudyRepo{pool: pool}
}

func (r *StudyRepo) Create(ctx context.Context, study *models.Study) error {
	query := `
		INSERT INTO studies (id, name, repo_url, start_offset_seconds, end_offset_seconds, ledger_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	study.ID = uuid.New()

	return r.pool.QueryRow(ctx, query,
		study.ID, study.Name, study.RepoURL, study.StartOffsetSeconds, study.EndOffsetSeconds, study.LedgerRef,
	).Scan(&study.CreatedAt)
}

func (r *StudyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Study, error) {
	study := &models.Study{}
	query := `SELECT id, name, repo_url, start_offset_seconds, end_offset_seconds, ledger_ref, created_at
		FROM studies WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&study.ID, &study.Name, &study.RepoURL, &study.StartOffsetSeconds,
		&study.EndOffsetSeconds, &study.LedgerRef, &study.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return study, nil
}

func (r *StudyRepo) List(ctx context.Context) ([]models.Study, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, repo_url, start_offset_seconds, end_offset_seconds, ledger_ref, created_at
		FROM studies ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	studies := make([]models.Study, 0)
	for rows.Next() {
		var s models.Study
		if err := rows.Scan(
			&s.ID, &s.Name, &s.RepoURL, &s.StartOffsetSeconds,
			&s.EndOffsetSeconds, &s.LedgerRef, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		studies = append(studies, s)
	}
	return studies, rows.Err()
}
