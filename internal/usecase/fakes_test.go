package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

// memStore records every UpsertBatch call and fails the first failFirst calls.
type memStore struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	sizes     []int
	records   map[string]entity.Record
}

func newMemStore() *memStore {
	return &memStore{records: map[string]entity.Record{}}
}

func (s *memStore) UpsertBatch(_ context.Context, batchID string, records []entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("database is locked")
	}
	s.sizes = append(s.sizes, len(records))
	for _, r := range records {
		s.records[batchID+"/"+r.Key] = r
	}
	return nil
}

func (s *memStore) Sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.sizes...)
}

func (s *memStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *memStore) Get(batchID, key string) (entity.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[batchID+"/"+key]
	return r, ok
}

// countingFetcher counts Open calls and hands out fn as every page.
type countingFetcher struct {
	fn      repository.FetchFunc
	opens   atomic.Int32
	openErr error
}

func (f *countingFetcher) Open(ctx context.Context) (repository.Page, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens.Add(1)
	return f.fn, nil
}

func (f *countingFetcher) Close() error { return nil }

func makeJobs(n int) []entity.Job {
	jobs := make([]entity.Job, n)
	for i := range jobs {
		jobs[i] = entity.Job{Key: keyOf(i), URL: "https://example.com/detail/" + keyOf(i)}
	}
	return jobs
}

func keyOf(i int) string {
	const digits = "0123456789"
	return "k" + string(digits[i/100%10]) + string(digits[i/10%10]) + string(digits[i%10])
}
