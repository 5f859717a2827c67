package repository

import (
	"context"
	"errors"

	"github.com/user/fetch-pipeline/internal/entity"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrStoreWrite     = errors.New("store write failed")
)

// RecordStore persists records with insert-or-replace semantics keyed by
// (batchID, record.Key). The last write for a key wins. A failed write is
// reported wrapping ErrStoreWrite and leaves the batch unapplied.
type RecordStore interface {
	UpsertBatch(ctx context.Context, batchID string, records []entity.Record) error
}

// RecordReader looks up a single stored record.
type RecordReader interface {
	FindRecord(ctx context.Context, batchID, key string) (*entity.Record, error)
}
