package usecase

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
	"github.com/user/fetch-pipeline/pkg/utils"
)

// batchDateLayout names a batch when the source cannot tell us the latest one.
const batchDateLayout = "2006-01-02"

// TargetLoader turns a target source into the job list of one run.
type TargetLoader struct {
	repo   repository.TargetRepository
	base   *url.URL
	logger *zap.Logger
	now    func() time.Time
}

// NewTargetLoader resolves relative target URLs against baseURL when it is
// non-empty.
func NewTargetLoader(repo repository.TargetRepository, baseURL string, logger *zap.Logger) (*TargetLoader, error) {
	l := &TargetLoader{repo: repo, logger: logger, now: time.Now}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("invalid base url %q", baseURL)
		}
		l.base = u
	}
	return l, nil
}

// ResolveBatch returns batchID, or the latest batch known to the source, or
// today's date for sources that have no notion of batches.
func (l *TargetLoader) ResolveBatch(ctx context.Context, batchID string) (string, error) {
	if batchID != "" {
		return batchID, nil
	}
	if r, ok := l.repo.(repository.BatchResolver); ok {
		id, err := r.LatestBatch(ctx)
		if err != nil {
			return "", fmt.Errorf("resolve latest batch: %w", err)
		}
		return id, nil
	}
	return l.now().Format(batchDateLayout), nil
}

// Load enumerates the batch and makes every URL absolute.
func (l *TargetLoader) Load(ctx context.Context, batchID string, mode repository.TargetMode) ([]entity.Job, error) {
	jobs, err := l.repo.Targets(ctx, batchID, mode)
	if err != nil {
		return nil, fmt.Errorf("load targets of %s: %w", batchID, err)
	}
	return l.Resolve(jobs)
}

// Resolve makes every job URL absolute. A row that cannot be resolved fails
// the whole list.
func (l *TargetLoader) Resolve(jobs []entity.Job) ([]entity.Job, error) {
	out := make([]entity.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Key == "" {
			return nil, fmt.Errorf("%w: empty key for %q", repository.ErrInvalidTargetRow, j.URL)
		}
		u, err := utils.ResolveTarget(l.base, j.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: key %s: %w", repository.ErrInvalidTargetRow, j.Key, err)
		}
		out = append(out, entity.Job{Key: j.Key, URL: u})
	}
	l.logger.Debug("targets resolved", zap.Int("count", len(out)))
	return out, nil
}
