package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

const (
	recordPrefix   = "record:"
	recordIndexKey = "records:"
)

// RecordStoreImpl keeps each record in a hash under record:<batch>:<key> and
// indexes the batch's keys in the set records:<batch>. Batch ids and keys are
// query-escaped inside key names, so neither can contain the ':' separator.
type RecordStoreImpl struct {
	client *redis.Client
}

func NewRecordStore(client *redis.Client) *RecordStoreImpl {
	return &RecordStoreImpl{client: client}
}

// keyPart escapes one component of a Redis key name.
func keyPart(s string) string {
	return url.QueryEscape(s)
}

func recordKey(batchID, key string) string {
	return fmt.Sprintf("%s%s:%s", recordPrefix, keyPart(batchID), keyPart(key))
}

func indexKey(batchID string) string {
	return recordIndexKey + keyPart(batchID)
}

// UpsertBatch replaces every record inside one MULTI/EXEC so a batch is
// applied entirely or not at all.
func (r *RecordStoreImpl) UpsertBatch(ctx context.Context, batchID string, records []entity.Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			fields, err := json.Marshal(rec.Fields)
			if err != nil {
				return fmt.Errorf("encode fields of %s: %w", rec.Key, err)
			}
			k := recordKey(batchID, rec.Key)
			pipe.Del(ctx, k)
			pipe.HSet(ctx, k,
				"kind", rec.Kind,
				"version", rec.Version,
				"fields", fields,
				"fetched_at", rec.FetchedAt.UTC().Format(time.RFC3339Nano),
			)
			pipe.SAdd(ctx, indexKey(batchID), rec.Key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", repository.ErrStoreWrite, err)
	}
	return nil
}

func (r *RecordStoreImpl) FindRecord(ctx context.Context, batchID, key string) (*entity.Record, error) {
	vals, err := r.client.HGetAll(ctx, recordKey(batchID, key)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, repository.ErrRecordNotFound
	}

	rec := entity.Record{Key: key, Kind: vals["kind"]}
	if rec.Version, err = strconv.Atoi(vals["version"]); err != nil {
		return nil, fmt.Errorf("decode version of %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(vals["fields"]), &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", key, err)
	}
	if rec.FetchedAt, err = time.Parse(time.RFC3339Nano, vals["fetched_at"]); err != nil {
		return nil, fmt.Errorf("decode fetched_at of %s: %w", key, err)
	}
	return &rec, nil
}

// StoredKeys returns the keys already stored for a batch.
func (r *RecordStoreImpl) StoredKeys(ctx context.Context, batchID string) (map[string]struct{}, error) {
	members, err := r.client.SMembers(ctx, indexKey(batchID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, nil
}
