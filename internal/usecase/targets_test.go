package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

type staticTargets struct {
	jobs []entity.Job
	mode repository.TargetMode
}

func (s *staticTargets) Targets(_ context.Context, _ string, mode repository.TargetMode) ([]entity.Job, error) {
	s.mode = mode
	return s.jobs, nil
}

type batchedTargets struct {
	staticTargets
	latest string
}

func (b *batchedTargets) LatestBatch(context.Context) (string, error) {
	if b.latest == "" {
		return "", repository.ErrNoBatch
	}
	return b.latest, nil
}

func TestTargetLoaderResolvesURLs(t *testing.T) {
	src := &staticTargets{jobs: []entity.Job{
		{Key: "a", URL: "/detail/a"},
		{Key: "b", URL: "https://other.example.com/b"},
	}}
	l, err := NewTargetLoader(src, "https://example.com/list/", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	jobs, err := l.Load(context.Background(), "b1", repository.TargetsMissing)
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].URL != "https://example.com/detail/a" || jobs[1].URL != "https://other.example.com/b" {
		t.Errorf("jobs = %v", jobs)
	}
	if src.mode != repository.TargetsMissing {
		t.Errorf("mode passed = %q", src.mode)
	}
}

func TestTargetLoaderRejectsRelativeWithoutBase(t *testing.T) {
	l, err := NewTargetLoader(&staticTargets{jobs: []entity.Job{{Key: "a", URL: "/x"}}}, "", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(context.Background(), "b", repository.TargetsAll); !errors.Is(err, repository.ErrInvalidTargetRow) {
		t.Errorf("err = %v, want ErrInvalidTargetRow", err)
	}
	if _, err := NewTargetLoader(&staticTargets{}, "not a url", zap.NewNop()); err == nil {
		t.Error("expected error for relative base url")
	}
}

func TestTargetLoaderResolveBatch(t *testing.T) {
	ctx := context.Background()

	plain, _ := NewTargetLoader(&staticTargets{}, "", zap.NewNop())
	plain.now = func() time.Time { return time.Date(2026, 10, 17, 23, 0, 0, 0, time.UTC) }
	if id, _ := plain.ResolveBatch(ctx, ""); id != "2026-10-17" {
		t.Errorf("date batch = %q", id)
	}
	if id, _ := plain.ResolveBatch(ctx, "given"); id != "given" {
		t.Errorf("explicit batch = %q", id)
	}

	batched, _ := NewTargetLoader(&batchedTargets{latest: "2026-10-16"}, "", zap.NewNop())
	if id, err := batched.ResolveBatch(ctx, ""); err != nil || id != "2026-10-16" {
		t.Errorf("latest batch = %q, %v", id, err)
	}
	empty, _ := NewTargetLoader(&batchedTargets{}, "", zap.NewNop())
	if _, err := empty.ResolveBatch(ctx, ""); !errors.Is(err, repository.ErrNoBatch) {
		t.Errorf("err = %v, want ErrNoBatch", err)
	}
}
