package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidUnitID indicates a unit ID that could escape the destination base.
	ErrInvalidUnitID = errors.New("invalid unit id")

	// ErrInvalidMode indicates an unknown mirror mode.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrInvalidExclude indicates a malformed exclude pattern.
	ErrInvalidExclude = errors.New("invalid exclude pattern")

	// ErrDestinationUnavailable indicates the destination base could not be created.
	ErrDestinationUnavailable = errors.New("destination unavailable")

	// ErrSourceUnavailable indicates the source exists but could not be inspected.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrCleanupFailed indicates a destination entry could not be removed.
	ErrCleanupFailed = errors.New("cleanup failed")

	// ErrLinkCreationFailed indicates the compiled-mode symlink could not be created.
	ErrLinkCreationFailed = errors.New("link creation failed")

	// ErrDirectoryCreationFailed indicates a destination directory could not be created.
	ErrDirectoryCreationFailed = errors.New("directory creation failed")

	// ErrFileCopyFailed indicates a file could not be copied.
	ErrFileCopyFailed = errors.New("file copy failed")
)

// MirrorError is returned for every failed mirror pass.
// errors.Is matches both Kind and the underlying cause.
type MirrorError struct {
	// Kind is one of the Err* sentinels above
	Kind error

	// UnitID is the unit being mirrored
	UnitID string

	// Path is the offending path, if any
	Path string

	// Err is the underlying cause
	Err error
}

func (e *MirrorError) Error() string {
	msg := fmt.Sprintf("mirror %s: %v", e.UnitID, e.Kind)
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MirrorError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newMirrorError(kind error, unitID, path string, err error) *MirrorError {
	return &MirrorError{Kind: kind, UnitID: unitID, Path: path, Err: err}
}
