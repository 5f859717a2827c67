package repository

import (
	"context"

	"github.com/user/fetch-pipeline/internal/entity"
)

// SessionProvider supplies the authenticated session obtained out-of-band.
type SessionProvider interface {
	Session(ctx context.Context) (entity.Session, error)
}
