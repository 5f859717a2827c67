package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

const targetsPrefix = "targets:"

func targetsKey(batchID string) string {
	return targetsPrefix + keyPart(batchID)
}

type targetRow struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// TargetListImpl stores a batch's targets as a list of JSON rows under
// targets:<batch>, in run order.
type TargetListImpl struct {
	client  *redis.Client
	records *RecordStoreImpl
}

func NewTargetList(client *redis.Client) *TargetListImpl {
	return &TargetListImpl{client: client, records: NewRecordStore(client)}
}

func (r *TargetListImpl) Targets(ctx context.Context, batchID string, mode repository.TargetMode) ([]entity.Job, error) {
	if mode != repository.TargetsAll && mode != repository.TargetsMissing {
		return nil, repository.ErrModeUnsupported
	}
	jobs, err := load(ctx, r.client, batchID)
	if err != nil {
		return nil, err
	}
	if mode == repository.TargetsAll {
		return jobs, nil
	}

	stored, err := r.records.StoredKeys(ctx, batchID)
	if err != nil {
		return nil, err
	}
	missing := jobs[:0]
	for _, j := range jobs {
		if _, ok := stored[j.Key]; !ok {
			missing = append(missing, j)
		}
	}
	return missing, nil
}

type lister interface {
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

func load(ctx context.Context, c lister, batchID string) ([]entity.Job, error) {
	rows, err := c.LRange(ctx, targetsKey(batchID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]entity.Job, 0, len(rows))
	for i, raw := range rows {
		var row targetRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %w", repository.ErrInvalidTargetRow, batchID, i, err)
		}
		jobs = append(jobs, entity.Job{Key: row.Key, URL: row.URL})
	}
	return jobs, nil
}

// LatestBatch scans targets:* and returns the greatest batch id.
func (r *TargetListImpl) LatestBatch(ctx context.Context) (string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, targetsPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id, err := url.QueryUnescape(strings.TrimPrefix(iter.Val(), targetsPrefix))
		if err != nil {
			return "", fmt.Errorf("decode batch of %s: %w", iter.Val(), err)
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", repository.ErrNoBatch
	}
	sort.Strings(ids)
	return ids[len(ids)-1], nil
}

// AddTargets merges jobs into the batch list. Existing keys keep their
// position and take the new URL; new keys are appended.
func (r *TargetListImpl) AddTargets(ctx context.Context, batchID string, jobs []entity.Job) error {
	key := targetsKey(batchID)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := load(ctx, tx, batchID)
		if err != nil {
			return err
		}
		pos := make(map[string]int, len(current))
		for i, j := range current {
			pos[j.Key] = i
		}
		for _, j := range jobs {
			if i, ok := pos[j.Key]; ok {
				current[i].URL = j.URL
				continue
			}
			pos[j.Key] = len(current)
			current = append(current, j)
		}

		rows := make([]any, 0, len(current))
		for _, j := range current {
			b, err := json.Marshal(targetRow{Key: j.Key, URL: j.URL})
			if err != nil {
				return err
			}
			rows = append(rows, string(b))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(rows) > 0 {
				pipe.RPush(ctx, key, rows...)
			}
			return nil
		})
		return err
	}, key)
}
