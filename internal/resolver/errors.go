package resolver

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds carried by JobError. Match them with errors.Is.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobSkipped  = errors.New("job skipped")
	ErrExtraction  = errors.New("extraction failed")
	ErrPersistence = errors.New("persistence failed")
	ErrPanic       = errors.New("panic while processing job")
)

// JobError is returned by ProcessJob. Kind is one of the errors above and
// Err is the underlying cause.
type JobError struct {
	JobID uuid.UUID
	Kind  error
	Err   error
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("job %s: %v", e.JobID, e.Kind)
	}
	return fmt.Sprintf("job %s: %v: %v", e.JobID, e.Kind, e.Err)
}

func (e *JobError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func jobError(id uuid.UUID, kind, err error) *JobError {
	return &JobError{JobID: id, Kind: kind, Err: err}
}

// failed reports whether err should count as a failed job rather than a
// skipped one.
func failed(err error) bool {
	return !errors.Is(err, ErrJobNotFound) && !errors.Is(err, ErrJobSkipped)
}
