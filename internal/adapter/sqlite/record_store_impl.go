package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

// RecordStoreImpl implements repository.RecordStore and RecordReader on SQLite.
type RecordStoreImpl struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) *RecordStoreImpl {
	return &RecordStoreImpl{db: db}
}

// UpsertBatch replaces every record in one transaction.
func (r *RecordStoreImpl) UpsertBatch(ctx context.Context, batchID string, records []entity.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := r.upsert(ctx, batchID, records); err != nil {
		return fmt.Errorf("%w: %w", repository.ErrStoreWrite, err)
	}
	return nil
}

func (r *RecordStoreImpl) upsert(ctx context.Context, batchID string, records []entity.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO fetch_records (batch_id, key, kind, version, fields, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("encode fields of %s: %w", rec.Key, err)
		}
		if _, err := stmt.ExecContext(ctx, batchID, rec.Key, rec.Kind, rec.Version, string(fields), rec.FetchedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *RecordStoreImpl) FindRecord(ctx context.Context, batchID, key string) (*entity.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT key, kind, version, fields, fetched_at
		FROM fetch_records
		WHERE batch_id = ? AND key = ?`, batchID, key)

	var (
		rec       entity.Record
		fields    string
		fetchedAt string
	)
	if err := row.Scan(&rec.Key, &rec.Kind, &rec.Version, &fields, &fetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return nil, err
	}
	rec.FetchedAt = t
	return &rec, nil
}
