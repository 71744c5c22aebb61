package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for job operations.
// These can be checked with errors.Is().
var (
	ErrJobNotFound   = errors.New("job not found")
	ErrInvalidState  = errors.New("job is not in a valid state for this operation")
	ErrUnknownFilter = errors.New("unknown filter")
)

// jobNotFoundError returns a wrapped error for a missing job.
func jobNotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// invalidStateError returns a wrapped error for a job in an unexpected state.
func invalidStateError(id string, status Status) error {
	return fmt.Errorf("%w (status: %s): %s", ErrInvalidState, status, id)
}

// unknownFilterError returns a wrapped error for a filter name not in the catalog.
func unknownFilterError(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
}
