package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "collector.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordStoreUpsertReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := NewRecordStore(db)
	at := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	err := store.UpsertBatch(ctx, "2026-10-17", []entity.Record{
		{Key: "a", Kind: "page", Version: 1, Fields: entity.Fields{"title": "old"}, FetchedAt: at},
		{Key: "b", Kind: "page", Version: 1, Fields: entity.Fields{"title": "B"}, FetchedAt: at},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = store.UpsertBatch(ctx, "2026-10-17", []entity.Record{
		{Key: "a", Kind: "page", Version: 1, Fields: entity.Fields{"title": "new"}, FetchedAt: at.Add(time.Minute)},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := store.FindRecord(ctx, "2026-10-17", "a")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Fields["title"] != "new" || !rec.FetchedAt.Equal(at.Add(time.Minute)) {
		t.Errorf("record = %+v", rec)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM fetch_records`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("row count = %d, want 2", n)
	}

	if _, err := store.FindRecord(ctx, "2026-10-16", "a"); !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("other batch: err = %v, want ErrRecordNotFound", err)
	}
}

func TestTargetRepo(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	targets := NewTargetRepo(db)
	store := NewRecordStore(db)

	if _, err := targets.LatestBatch(ctx); !errors.Is(err, repository.ErrNoBatch) {
		t.Fatalf("LatestBatch on empty db: %v", err)
	}

	jobs := []entity.Job{
		{Key: "c", URL: "/detail/c"},
		{Key: "a", URL: "/detail/a"},
		{Key: "b", URL: "/detail/b"},
	}
	if err := targets.AddTargets(ctx, "2026-10-16", jobs[:1]); err != nil {
		t.Fatal(err)
	}
	if err := targets.AddTargets(ctx, "2026-10-17", jobs); err != nil {
		t.Fatal(err)
	}
	if err := targets.AddTargets(ctx, "2026-10-17", []entity.Job{{Key: "c", URL: "/detail/c2"}}); err != nil {
		t.Fatal(err)
	}

	latest, err := targets.LatestBatch(ctx)
	if err != nil || latest != "2026-10-17" {
		t.Fatalf("LatestBatch = %q, %v", latest, err)
	}

	all, err := targets.Targets(ctx, "2026-10-17", repository.TargetsAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Key != "c" || all[0].URL != "/detail/c2" || all[2].Key != "b" {
		t.Errorf("all = %v", all)
	}

	if err := store.UpsertBatch(ctx, "2026-10-17", []entity.Record{{Key: "a", Fields: entity.Fields{}, FetchedAt: time.Now()}}); err != nil {
		t.Fatal(err)
	}
	missing, err := targets.Targets(ctx, "2026-10-17", repository.TargetsMissing)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 2 || missing[0].Key != "c" || missing[1].Key != "b" {
		t.Errorf("missing = %v", missing)
	}
}

func TestRecordStoreWriteErrorIsWrapped(t *testing.T) {
	db := openTestDB(t)
	store := NewRecordStore(db)
	db.Close()

	err := store.UpsertBatch(context.Background(), "b1", []entity.Record{{Key: "a", Fields: entity.Fields{}}})
	if !errors.Is(err, repository.ErrStoreWrite) {
		t.Fatalf("err = %v, want ErrStoreWrite", err)
	}
}
