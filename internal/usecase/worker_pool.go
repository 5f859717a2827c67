package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
	"github.com/user/fetch-pipeline/pkg/metrics"
	"github.com/user/fetch-pipeline/pkg/utils"
)

var errNoPages = errors.New("worker pool has no pages")

// RetryPolicy bounds fetch attempts per job. The wait after attempt n is
// BaseDelay * Factor^(n-1).
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	Factor    float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 800 * time.Millisecond, Factor: 1.8}
}

// Delay returns the backoff to sleep after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}
	return time.Duration(d)
}

// WorkerPool runs one worker per page. Workers share the rate limiter and
// nothing else.
type WorkerPool struct {
	pages   []repository.Page
	limiter *RateLimiter
	retry   RetryPolicy
	logger  *zap.Logger
}

func NewWorkerPool(pages []repository.Page, limiter *RateLimiter, retry RetryPolicy, logger *zap.Logger) *WorkerPool {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	if retry.Factor < 1 {
		retry.Factor = 1
	}
	return &WorkerPool{pages: pages, limiter: limiter, retry: retry, logger: logger}
}

func (p *WorkerPool) Size() int {
	return len(p.pages)
}

// Run starts the workers and returns once every worker has seen a stop
// marker. Each dequeued job produces exactly one result, including after ctx
// is canceled, so results must be buffered for every job or actively drained.
func (p *WorkerPool) Run(ctx context.Context, queue *JobQueue, results chan<- entity.FetchResult) error {
	if len(p.pages) == 0 {
		return errNoPages
	}
	var wg sync.WaitGroup
	for i, page := range p.pages {
		i, page := i, page
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, i, page, queue, results)
		}()
	}
	wg.Wait()
	return nil
}

func (p *WorkerPool) worker(ctx context.Context, id int, page repository.Page, queue *JobQueue, results chan<- entity.FetchResult) {
	log := p.logger.With(zap.Int("worker", id))
	log.Debug("worker started")
	for {
		job, ok := queue.Dequeue().Job()
		if !ok {
			log.Debug("worker stopped")
			return
		}
		results <- p.process(ctx, log, page, job)
	}
}

func (p *WorkerPool) process(ctx context.Context, log *zap.Logger, page repository.Page, job entity.Job) entity.FetchResult {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return entity.Failure(job.Key, entity.ErrorKindCanceled, err, 0)
	}
	if err := p.limiter.Acquire(ctx); err != nil {
		return entity.Failure(job.Key, entity.ErrorKindCanceled, err, 0)
	}

	var (
		lastErr  error
		kind     entity.ErrorKind
		attempts int
	)
	for attempts = 1; attempts <= p.retry.Attempts; attempts++ {
		fields, err := page.Fetch(ctx, job)
		if err == nil {
			metrics.FetchAttemptsTotal.WithLabelValues("ok").Inc()
			metrics.FetchDuration.Observe(time.Since(start).Seconds())
			res := entity.Success(job.Key, fields, attempts)
			res.Duration = time.Since(start)
			return res
		}

		lastErr = err
		kind = repository.Classify(err)
		if ctx.Err() != nil {
			kind = entity.ErrorKindCanceled
		}
		metrics.FetchAttemptsTotal.WithLabelValues(string(kind)).Inc()
		if !kind.Retryable() || attempts == p.retry.Attempts {
			break
		}

		delay := p.retry.Delay(attempts)
		log.Debug("fetch failed, retrying",
			zap.String("key", job.Key),
			zap.Int("attempt", attempts),
			zap.String("kind", string(kind)),
			zap.Duration("backoff", delay),
			zap.String("error", utils.RedactError(err)),
		)
		if err := sleep(ctx, delay); err != nil {
			kind, lastErr = entity.ErrorKindCanceled, err
			break
		}
	}
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	res := entity.Failure(job.Key, kind, lastErr, attempts)
	res.Duration = time.Since(start)
	return res
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
