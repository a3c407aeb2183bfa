package probe

import (
	"errors"
	"io/fs"

	"github.com/kailas-cloud/r2rprobe/internal/sample"
	"github.com/kailas-cloud/r2rprobe/pkg/r2r"
)

// FailureKind tags why a step did not produce a value.
type FailureKind string

// Failure kinds, one per boundary.
const (
	FailureConnection   FailureKind = "connection"
	FailureService      FailureKind = "service"
	FailureFileNotFound FailureKind = "file_not_found"
	FailureIngestion    FailureKind = "ingestion"
	FailureSearch       FailureKind = "search"
	FailureCompletion   FailureKind = "completion"
	FailureFilesystem   FailureKind = "filesystem"
)

// Outcome is the result of one step: a value or a tagged failure.
// The zero Outcome means the step never ran.
type Outcome[T any] struct {
	Value T
	Kind  FailureKind
	Err   error
	ran   bool
}

func succeeded[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, ran: true}
}

func failed[T any](kind FailureKind, err error) Outcome[T] {
	return Outcome[T]{Kind: kind, Err: err, ran: true}
}

// Ran reports whether the step was attempted.
func (o Outcome[T]) Ran() bool { return o.ran }

// OK reports whether the step ran and succeeded.
func (o Outcome[T]) OK() bool { return o.ran && o.Err == nil }

// classify maps an error onto a FailureKind, using fallback when the error
// carries no recognised sentinel.
func classify(err error, fallback FailureKind) FailureKind {
	switch {
	case errors.Is(err, r2r.ErrConnection):
		return FailureConnection
	case errors.Is(err, r2r.ErrService):
		return FailureService
	case errors.Is(err, r2r.ErrIngestion):
		return FailureIngestion
	case errors.Is(err, r2r.ErrSearch):
		return FailureSearch
	case errors.Is(err, r2r.ErrCompletion):
		return FailureCompletion
	case errors.Is(err, sample.ErrFilesystem):
		return FailureFilesystem
	case errors.Is(err, fs.ErrNotExist):
		return FailureFileNotFound
	default:
		return fallback
	}
}
