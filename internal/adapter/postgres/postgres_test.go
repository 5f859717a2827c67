package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

// testPool connects to GATED_TEST_PG_DSN and isolates the test in its own
// schema. Tests skip when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("GATED_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("GATED_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, dsn, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM fetch_records WHERE batch_id LIKE 'test-%'`)
		_, _ = pool.Exec(ctx, `DELETE FROM fetch_targets WHERE batch_id LIKE 'test-%'`)
		pool.Close()
	})
	return pool
}

func TestRecordStoreUpsertIsIdempotent(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewRecordStore(pool)
	batch := "test-" + time.Now().Format("150405.000000")

	first := []entity.Record{{Key: "a", Kind: "page", Version: 1, Fields: entity.Fields{"title": "old"}, FetchedAt: time.Now().UTC()}}
	second := []entity.Record{{Key: "a", Kind: "page", Version: 1, Fields: entity.Fields{"title": "new"}, FetchedAt: time.Now().UTC()}}
	if err := store.UpsertBatch(ctx, batch, first); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertBatch(ctx, batch, second); err != nil {
		t.Fatal(err)
	}

	rec, err := store.FindRecord(ctx, batch, "a")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Fields["title"] != "new" {
		t.Errorf("title = %q, want new", rec.Fields["title"])
	}
	if _, err := store.FindRecord(ctx, batch, "zzz"); !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestTargetRepoModes(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	targets := NewTargetRepo(pool)
	store := NewRecordStore(pool)
	batch := "test-" + time.Now().Format("150405.000000")

	jobs := []entity.Job{{Key: "a", URL: "https://example.com/a"}, {Key: "b", URL: "https://example.com/b"}}
	if err := targets.AddTargets(ctx, batch, jobs); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertBatch(ctx, batch, []entity.Record{{Key: "a", Fields: entity.Fields{}, FetchedAt: time.Now()}}); err != nil {
		t.Fatal(err)
	}

	all, err := targets.Targets(ctx, batch, repository.TargetsAll)
	if err != nil || len(all) != 2 || all[0].Key != "a" {
		t.Fatalf("all = %v, %v", all, err)
	}
	missing, err := targets.Targets(ctx, batch, repository.TargetsMissing)
	if err != nil || len(missing) != 1 || missing[0].Key != "b" {
		t.Fatalf("missing = %v, %v", missing, err)
	}
}
