package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorClass uint8

const (
	classOther errorClass = iota
	classNotFound
	classConflict
	classUnavailable
)

// classes maps gRPC status codes onto the repository error categories. Aborted shows
// up when concurrent batches contend on the same item document.
var classes = map[codes.Code]errorClass{
	codes.NotFound:           classNotFound,
	codes.AlreadyExists:      classConflict,
	codes.FailedPrecondition: classConflict,
	codes.Aborted:            classConflict,
	codes.OutOfRange:         classConflict,
	codes.Unavailable:        classUnavailable,
	codes.ResourceExhausted:  classUnavailable,
	codes.Internal:           classUnavailable,
	codes.DeadlineExceeded:   classUnavailable,
}

// Error is a Firestore failure classified for repositories.RepositoryError.
type Error struct {
	Op    string
	Code  codes.Code
	err   error
	class errorClass
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.err.Error()
	}
	return e.Op + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e != nil && e.class == classNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.class == classConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.class == classUnavailable }

// WrapError classifies err under op. Cancellation and deadlines, whether from the
// context or as gRPC statuses, come back as the plain context errors so callers can
// tell a timed out request from a broken store.
func WrapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	var classified *Error
	if errors.As(err, &classified) {
		if classified.Op == "" {
			classified.Op = op
		}
		return classified
	}

	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return &Error{Op: op, Code: code, err: err, class: classes[code]}
}
