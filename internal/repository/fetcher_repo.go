package repository

import (
	"context"

	"github.com/user/fetch-pipeline/internal/entity"
)

// Fetcher owns the shared authenticated browsing context. Each worker opens
// its own Page so one worker's navigation cannot disturb another's.
type Fetcher interface {
	// Open returns a page handle owned by exactly one worker.
	Open(ctx context.Context) (Page, error)
	// Close releases the shared context. Pages must be closed first.
	Close() error
}

// Page performs one fetch at a time.
type Page interface {
	// Fetch loads job.URL and returns the extracted fields. Errors should be
	// classified with Timeout, Transient or Fatal; unclassified errors are
	// treated as transient.
	Fetch(ctx context.Context, job entity.Job) (entity.Fields, error)
	Close() error
}

// FetchFunc adapts a plain function to both Fetcher and Page. Every Open
// returns the same stateless page.
type FetchFunc func(ctx context.Context, job entity.Job) (entity.Fields, error)

func (f FetchFunc) Open(ctx context.Context) (Page, error) { return f, nil }

func (f FetchFunc) Fetch(ctx context.Context, job entity.Job) (entity.Fields, error) {
	return f(ctx, job)
}

func (f FetchFunc) Close() error { return nil }
