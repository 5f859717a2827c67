package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

func runPool(t *testing.T, ctx context.Context, fn repository.FetchFunc, retry RetryPolicy, jobs []entity.Job, workers int) []entity.FetchResult {
	t.Helper()
	pages := make([]repository.Page, workers)
	for i := range pages {
		pages[i] = fn
	}
	pool := NewWorkerPool(pages, NewRateLimiter(1000), retry, zap.NewNop())
	q := NewJobQueue(jobs, workers)
	results := make(chan entity.FetchResult, len(jobs))

	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx, q, results) }()

	out := make([]entity.FetchResult, 0, len(jobs))
	for range jobs {
		out = append(out, <-results)
	}
	q.Stop(workers)
	if err := <-done; err != nil {
		t.Fatalf("pool.Run: %v", err)
	}
	return out
}

func fastRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, Factor: 1.8}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	if got := p.Delay(1); got != 800*time.Millisecond {
		t.Errorf("Delay(1) = %v", got)
	}
	if got := p.Delay(2); got != 1440*time.Millisecond {
		t.Errorf("Delay(2) = %v", got)
	}
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the real backoff")
	}
	var calls atomic.Int32
	fn := repository.FetchFunc(func(ctx context.Context, job entity.Job) (entity.Fields, error) {
		if calls.Add(1) <= 2 {
			return nil, repository.Timeout(errors.New("navigation timeout"))
		}
		return entity.Fields{"title": "ok"}, nil
	})

	start := time.Now()
	res := runPool(t, context.Background(), fn, DefaultRetryPolicy(), makeJobs(1), 1)
	elapsed := time.Since(start)

	if len(res) != 1 || !res[0].OK() {
		t.Fatalf("results = %+v, want one success", res)
	}
	if res[0].Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res[0].Attempts)
	}
	if want := 800*time.Millisecond + 1440*time.Millisecond; elapsed < want {
		t.Errorf("elapsed %v, want >= %v", elapsed, want)
	}
	if calls.Load() != 3 {
		t.Errorf("fetch called %d times, want 3", calls.Load())
	}
}

func TestWorkerFatalIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	fn := repository.FetchFunc(func(ctx context.Context, job entity.Job) (entity.Fields, error) {
		calls.Add(1)
		return nil, repository.Fatal(errors.New("malformed url"))
	})

	res := runPool(t, context.Background(), fn, fastRetry(), makeJobs(1), 1)
	if res[0].OK() || res[0].Kind != entity.ErrorKindFatal {
		t.Fatalf("result = %+v, want fatal failure", res[0])
	}
	if res[0].Attempts != 1 || calls.Load() != 1 {
		t.Errorf("attempts=%d calls=%d, want 1/1", res[0].Attempts, calls.Load())
	}
	if !errors.Is(res[0].Err, repository.ErrFetchFatal) {
		t.Errorf("Err = %v, want ErrFetchFatal", res[0].Err)
	}
}

func TestWorkerExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	fn := repository.FetchFunc(func(ctx context.Context, job entity.Job) (entity.Fields, error) {
		calls.Add(1)
		return nil, errors.New("connection reset by peer")
	})

	res := runPool(t, context.Background(), fn, fastRetry(), makeJobs(1), 1)
	if res[0].OK() || res[0].Kind != entity.ErrorKindTransient {
		t.Fatalf("result = %+v, want transient failure", res[0])
	}
	if res[0].Attempts != 3 || calls.Load() != 3 {
		t.Errorf("attempts=%d calls=%d, want 3/3", res[0].Attempts, calls.Load())
	}
}

func TestWorkerEveryJobYieldsOneResult(t *testing.T) {
	fn := repository.FetchFunc(func(ctx context.Context, job entity.Job) (entity.Fields, error) {
		if job.Key[len(job.Key)-1] == '3' {
			return nil, repository.Fatal(errors.New("gone"))
		}
		return entity.Fields{"key": job.Key}, nil
	})

	jobs := makeJobs(40)
	res := runPool(t, context.Background(), fn, fastRetry(), jobs, 4)

	seen := map[string]int{}
	ok, ng := 0, 0
	for _, r := range res {
		seen[r.Key]++
		if r.OK() {
			ok++
		} else {
			ng++
		}
	}
	if len(seen) != len(jobs) {
		t.Fatalf("got results for %d keys, want %d", len(seen), len(jobs))
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("key %s reported %d times", k, n)
		}
	}
	if ok != 36 || ng != 4 {
		t.Errorf("ok=%d ng=%d, want 36/4", ok, ng)
	}
}

func TestWorkerCanceledContextReportsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	fn := repository.FetchFunc(func(ctx context.Context, job entity.Job) (entity.Fields, error) {
		calls.Add(1)
		return entity.Fields{}, nil
	})

	res := runPool(t, ctx, fn, fastRetry(), makeJobs(5), 2)
	for _, r := range res {
		if r.Kind != entity.ErrorKindCanceled {
			t.Errorf("key %s kind = %q, want canceled", r.Key, r.Kind)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("fetch called %d times after cancel", calls.Load())
	}
}

func TestWorkerPoolWithoutPages(t *testing.T) {
	pool := NewWorkerPool(nil, NewRateLimiter(1), fastRetry(), zap.NewNop())
	if err := pool.Run(context.Background(), NewJobQueue(nil, 0), nil); err == nil {
		t.Fatal("expected error for empty pool")
	}
}
