package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline runs.
// These can be checked with errors.Is().
var (
	ErrUnreadableSource        = errors.New("unreadable source video")
	ErrSegmentProcessingFailed = errors.New("segment processing failed")
	ErrEmptyMergeSet           = errors.New("no segments to merge")
	ErrMergeIOFailure          = errors.New("merge failed")
)

// SegmentError reports which segment failed and why. It matches
// ErrSegmentProcessingFailed as well as the underlying cause.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("%s: segment %d: %v", ErrSegmentProcessingFailed, e.Index, e.Err)
}

func (e *SegmentError) Unwrap() []error {
	return []error{ErrSegmentProcessingFailed, e.Err}
}

func unreadableSourceError(path string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnreadableSource, path, cause)
}

func mergeError(index int, cause error) error {
	return fmt.Errorf("%w: segment %d: %w", ErrMergeIOFailure, index, cause)
}
