package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

// TargetRepoImpl reads and loads batch targets from the fetch_targets table.
type TargetRepoImpl struct {
	db *pgxpool.Pool
}

func NewTargetRepo(db *pgxpool.Pool) *TargetRepoImpl {
	return &TargetRepoImpl{db: db}
}

func (r *TargetRepoImpl) Targets(ctx context.Context, batchID string, mode repository.TargetMode) ([]entity.Job, error) {
	var query string
	switch mode {
	case repository.TargetsAll:
		query = `
			SELECT key, url FROM fetch_targets
			WHERE batch_id = $1
			ORDER BY position`
	case repository.TargetsMissing:
		query = `
			SELECT t.key, t.url FROM fetch_targets t
			LEFT JOIN fetch_records r ON r.batch_id = t.batch_id AND r.key = t.key
			WHERE t.batch_id = $1 AND r.key IS NULL
			ORDER BY t.position`
	default:
		return nil, repository.ErrModeUnsupported
	}

	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []entity.Job
	for rows.Next() {
		var j entity.Job
		if err := rows.Scan(&j.Key, &j.URL); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *TargetRepoImpl) LatestBatch(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `SELECT batch_id FROM fetch_targets ORDER BY batch_id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", repository.ErrNoBatch
	}
	return id, err
}

func (r *TargetRepoImpl) AddTargets(ctx context.Context, batchID string, jobs []entity.Job) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, j := range jobs {
		batch.Queue(`
			INSERT INTO fetch_targets (batch_id, key, url) VALUES ($1, $2, $3)
			ON CONFLICT (batch_id, key) DO UPDATE SET url = EXCLUDED.url`,
			batchID, j.Key, j.URL)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
