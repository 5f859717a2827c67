package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/fetch-pipeline/internal/entity"
)

var (
	ErrNoBatch          = errors.New("no batch found in targets")
	ErrModeUnsupported  = errors.New("target mode not supported by this source")
	ErrInvalidTargetRow = errors.New("invalid target row")
)

// TargetMode selects which targets of a batch are enumerated.
type TargetMode string

const (
	// TargetsAll enumerates every target of the batch.
	TargetsAll TargetMode = "all"
	// TargetsMissing enumerates targets that have no stored record yet.
	TargetsMissing TargetMode = "missing"
)

// ParseTargetMode validates a mode name.
func ParseTargetMode(s string) (TargetMode, error) {
	switch m := TargetMode(s); m {
	case TargetsAll, TargetsMissing:
		return m, nil
	}
	return "", fmt.Errorf("unknown target mode %q", s)
}

// TargetRepository supplies the ordered jobs of a batch.
type TargetRepository interface {
	Targets(ctx context.Context, batchID string, mode TargetMode) ([]entity.Job, error)
}

// TargetWriter loads targets into a repository, replacing the URL of keys
// that already exist in the batch.
type TargetWriter interface {
	AddTargets(ctx context.Context, batchID string, jobs []entity.Job) error
}

// BatchResolver picks the batch to run when none is given.
type BatchResolver interface {
	// LatestBatch returns the greatest batch id, or ErrNoBatch.
	LatestBatch(ctx context.Context) (string, error)
}
