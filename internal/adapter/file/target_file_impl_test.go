package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

func TestReadTargets(t *testing.T) {
	in := "# batch of 2026-10-17\n\nA001\thttps://example.com/a\n  B002   /detail/b  \n"
	jobs, err := ReadTargets(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []entity.Job{{Key: "A001", URL: "https://example.com/a"}, {Key: "B002", URL: "/detail/b"}}
	if len(jobs) != len(want) || jobs[0] != want[0] || jobs[1] != want[1] {
		t.Errorf("jobs = %v, want %v", jobs, want)
	}
}

func TestReadTargetsRejectsBadRow(t *testing.T) {
	_, err := ReadTargets(strings.NewReader("A001\n"))
	if !errors.Is(err, repository.ErrInvalidTargetRow) {
		t.Errorf("err = %v, want ErrInvalidTargetRow", err)
	}
}

func TestTargetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.tsv")
	if err := os.WriteFile(path, []byte("k1 https://example.com/1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	src := NewTargetFile(path)

	jobs, err := src.Targets(context.Background(), "any", repository.TargetsAll)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("Targets = %v, %v", jobs, err)
	}
	if _, err := src.Targets(context.Background(), "any", repository.TargetsMissing); !errors.Is(err, repository.ErrModeUnsupported) {
		t.Errorf("missing mode: err = %v", err)
	}
}

func TestTargetFileStdin(t *testing.T) {
	src := NewTargetFile("-")
	src.stdin = strings.NewReader("k1 https://example.com/1\nk2 https://example.com/2\n")
	jobs, err := src.Targets(context.Background(), "", repository.TargetsAll)
	if err != nil || len(jobs) != 2 {
		t.Fatalf("Targets = %v, %v", jobs, err)
	}
}
