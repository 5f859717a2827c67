package entity

import "time"

// ErrorKind classifies why a job failed. The zero value means success.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindFatal     ErrorKind = "fatal"
	ErrorKindCanceled  ErrorKind = "canceled"
	ErrorKindSchema    ErrorKind = "schema"
)

// Retryable reports whether another attempt could plausibly succeed.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTimeout || k == ErrorKindTransient
}

// Fields is the string-keyed payload a fetcher extracts from one page.
type Fields map[string]string

// FetchResult is produced exactly once per Job. It is a success when Kind is
// empty; otherwise Err holds the error of the last attempt.
type FetchResult struct {
	Key      string
	Fields   Fields
	Kind     ErrorKind
	Err      error
	Attempts int
	Duration time.Duration
}

// Success builds a successful result.
func Success(key string, fields Fields, attempts int) FetchResult {
	if fields == nil {
		fields = Fields{}
	}
	return FetchResult{Key: key, Fields: fields, Attempts: attempts}
}

// Failure builds a failed result. An empty kind is promoted to fatal so a
// failure can never be mistaken for a success.
func Failure(key string, kind ErrorKind, err error, attempts int) FetchResult {
	if kind == ErrorKindNone {
		kind = ErrorKindFatal
	}
	return FetchResult{Key: key, Kind: kind, Err: err, Attempts: attempts}
}

// OK reports whether the result is a success.
func (r FetchResult) OK() bool {
	return r.Kind == ErrorKindNone
}
