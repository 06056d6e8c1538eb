// Package errors provides error wrapping utilities and the sentinel
// errors shared across the media creation pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline stages. Callers match them with
// errors.Is; diagnostics are attached by wrapping.
var (
	// ErrPrivilege means the process lacks the elevated privileges
	// required for destructive device I/O. Fatal, never retried.
	ErrPrivilege = errors.New("elevated privileges required")

	// ErrDevice means the target device is missing or unusable.
	ErrDevice = errors.New("device unusable")

	// ErrPartition covers partition table or partition creation failures.
	ErrPartition = errors.New("partitioning failed")

	// ErrFormat covers filesystem creation failures.
	ErrFormat = errors.New("formatting failed")

	// ErrUnsupportedFilesystem means the requested filesystem is not
	// available on the host platform.
	ErrUnsupportedFilesystem = errors.New("filesystem not supported on this platform")

	// ErrMountResolution means formatting succeeded but the resulting
	// mount point or drive letter could not be determined.
	ErrMountResolution = errors.New("could not resolve mount point")

	// ErrExtraction covers image extraction and staging failures.
	ErrExtraction = errors.New("image extraction failed")

	// ErrBootSector means every boot sector method was exhausted.
	ErrBootSector = errors.New("boot sector write failed")

	// ErrUnsupportedPlatform means the host OS has no platform strategy.
	ErrUnsupportedPlatform = errors.New("platform not supported")

	// ErrCancelled is the cooperative cancellation terminal. It is not
	// a failure; the orchestrator reports it as its own outcome.
	ErrCancelled = errors.New("operation cancelled")
)

// New returns an error with the given text.
func New(text string) error {
	return errors.New(text)
}

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
