package services

import (
	"errors"
	"fmt"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/generators"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/repositories"
)

var (
	// ErrInvalidInput indicates the caller supplied invalid data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates the requested item or media key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable indicates a collaborator required for the operation is not configured.
	ErrUnavailable = errors.New("unavailable")
)

// ClassificationError is fatal to a batch: no partial taxonomy is usable.
type ClassificationError struct {
	Op  string
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification %s: %v", e.Op, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// StoreError reports a catalog or object-store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Unavailable reports whether the underlying store signalled a transient outage.
func (e *StoreError) Unavailable() bool {
	var repoErr repositories.RepositoryError
	return errors.As(e.Err, &repoErr) && repoErr.IsUnavailable()
}

// NotFoundError reports a missing item or media key.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsJobTimeout reports whether err carries a generation job timeout.
func IsJobTimeout(err error) bool {
	return generators.IsJobTimeout(err)
}

func generationFailure(err error) GenerationFailure {
	var genErr *generators.GenerationError
	if errors.As(err, &genErr) {
		failure := GenerationFailure{Kind: string(genErr.Kind), Key: genErr.Key, Op: genErr.Op, Error: genErr.Error()}
		if IsJobTimeout(err) {
			failure.Op = "timeout"
		}
		return failure
	}
	return GenerationFailure{Op: "generate", Error: err.Error()}
}
