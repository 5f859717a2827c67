package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

// TargetRepoImpl reads and loads batch targets. Targets keep insertion order.
type TargetRepoImpl struct {
	db *sql.DB
}

func NewTargetRepo(db *sql.DB) *TargetRepoImpl {
	return &TargetRepoImpl{db: db}
}

func (r *TargetRepoImpl) Targets(ctx context.Context, batchID string, mode repository.TargetMode) ([]entity.Job, error) {
	var query string
	switch mode {
	case repository.TargetsAll:
		query = `
			SELECT key, url FROM fetch_targets
			WHERE batch_id = ?
			ORDER BY rowid`
	case repository.TargetsMissing:
		query = `
			SELECT t.key, t.url FROM fetch_targets t
			LEFT JOIN fetch_records r ON r.batch_id = t.batch_id AND r.key = t.key
			WHERE t.batch_id = ? AND r.key IS NULL
			ORDER BY t.rowid`
	default:
		return nil, repository.ErrModeUnsupported
	}

	rows, err := r.db.QueryContext(ctx, query, batchID)
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
	var id sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(batch_id) FROM fetch_targets`).Scan(&id); err != nil {
		return "", err
	}
	if !id.Valid {
		return "", repository.ErrNoBatch
	}
	return id.String, nil
}

// AddTargets inserts new targets and updates the URL of existing ones
// without moving them in the batch order.
func (r *TargetRepoImpl) AddTargets(ctx context.Context, batchID string, jobs []entity.Job) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fetch_targets (batch_id, key, url) VALUES (?, ?, ?)
		ON CONFLICT (batch_id, key) DO UPDATE SET url = excluded.url`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, j := range jobs {
		if j.Key == "" {
			return fmt.Errorf("%w: empty key", repository.ErrInvalidTargetRow)
		}
		if _, err := stmt.ExecContext(ctx, batchID, j.Key, j.URL); err != nil {
			return err
		}
	}
	return tx.Commit()
}
