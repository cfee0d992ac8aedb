package generators

import (
	"errors"
	"fmt"
	"time"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
)

var (
	// ErrBackendNotConfigured is returned when a generator has no endpoint or credentials.
	ErrBackendNotConfigured = errors.New("generators: backend not configured")
	// ErrNoJobID is returned when a job submission is accepted without an identifier.
	ErrNoJobID = errors.New("generators: backend returned no job id")
	// ErrJobFailed is returned when the backend reports a terminal failure.
	ErrJobFailed = errors.New("generators: job failed")
	// ErrEmptyArtifact is returned when the backend produced no bytes.
	ErrEmptyArtifact = errors.New("generators: empty artifact")
)

// GenerationError describes a failed attempt to produce one media asset. It is a soft
// failure: callers record it and carry on with the rest of the batch.
type GenerationError struct {
	Kind domain.MediaKind
	Key  string
	Op   string
	Err  error
}

func (e *GenerationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("generate %s %s: %s failed", e.Kind, e.Key, e.Op)
	}
	return fmt.Sprintf("generate %s %s: %s: %v", e.Kind, e.Key, e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// JobTimeoutError reports a polled job that did not reach a terminal state within the
// poll budget or the wall-clock deadline.
type JobTimeoutError struct {
	JobID   string
	Polls   int
	Elapsed time.Duration
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("job %s did not finish after %d polls (%s)", e.JobID, e.Polls, e.Elapsed.Round(time.Millisecond))
}

// BackendError reports a non-2xx response from a generation backend.
type BackendError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

func generationError(key domain.MediaKey, op string, err error) *GenerationError {
	return &GenerationError{Kind: key.Kind, Key: key.Name, Op: op, Err: err}
}

// IsJobTimeout reports whether err carries a JobTimeoutError.
func IsJobTimeout(err error) bool {
	var timeout *JobTimeoutError
	return errors.As(err, &timeout)
}
