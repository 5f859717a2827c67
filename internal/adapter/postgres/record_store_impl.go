package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

const upsertRecord = `
	INSERT INTO fetch_records (batch_id, key, kind, version, fields, fetched_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (batch_id, key) DO UPDATE SET
		kind = EXCLUDED.kind,
		version = EXCLUDED.version,
		fields = EXCLUDED.fields,
		fetched_at = EXCLUDED.fetched_at`

// RecordStoreImpl implements repository.RecordStore and RecordReader on PostgreSQL.
type RecordStoreImpl struct {
	db *pgxpool.Pool
}

func NewRecordStore(db *pgxpool.Pool) *RecordStoreImpl {
	return &RecordStoreImpl{db: db}
}

// UpsertBatch writes all records in one transaction.
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
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range records {
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("encode fields of %s: %w", rec.Key, err)
		}
		batch.Queue(upsertRecord, batchID, rec.Key, rec.Kind, rec.Version, fields, rec.FetchedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *RecordStoreImpl) FindRecord(ctx context.Context, batchID, key string) (*entity.Record, error) {
	row := r.db.QueryRow(ctx, `
		SELECT key, kind, version, fields, fetched_at
		FROM fetch_records
		WHERE batch_id = $1 AND key = $2`, batchID, key)

	var (
		rec    entity.Record
		fields []byte
	)
	if err := row.Scan(&rec.Key, &rec.Kind, &rec.Version, &fields, &rec.FetchedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, err
	}
	return &rec, nil
}
