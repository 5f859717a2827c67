package repository

import (
	"context"
	"errors"
	"net"

	"github.com/user/fetch-pipeline/internal/entity"
)

// Sentinels matched with errors.Is against a *FetchError.
var (
	ErrFetchTimeout   = errors.New("fetch timed out")
	ErrFetchTransient = errors.New("transient fetch error")
	ErrFetchFatal     = errors.New("fatal fetch error")
)

// FetchError carries the classification decided at the fetcher boundary.
type FetchError struct {
	Kind entity.ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return string(e.Kind) + " fetch error"
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrFetchTimeout:
		return e.Kind == entity.ErrorKindTimeout
	case ErrFetchTransient:
		return e.Kind == entity.ErrorKindTransient
	case ErrFetchFatal:
		return e.Kind == entity.ErrorKindFatal
	}
	return false
}

func Timeout(err error) error   { return &FetchError{Kind: entity.ErrorKindTimeout, Err: err} }
func Transient(err error) error { return &FetchError{Kind: entity.ErrorKindTransient, Err: err} }
func Fatal(err error) error     { return &FetchError{Kind: entity.ErrorKindFatal, Err: err} }

// Classify maps an error returned by a Page to an ErrorKind.
func Classify(err error) entity.ErrorKind {
	if err == nil {
		return entity.ErrorKindNone
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return entity.ErrorKindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return entity.ErrorKindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return entity.ErrorKindTimeout
	}
	return entity.ErrorKindTransient
}
