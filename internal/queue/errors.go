package queue

import "errors"

var (
	// ErrDuplicateKey reports an add for a release that is already queued.
	ErrDuplicateKey = errors.New("release already queued")
	// ErrNotFound reports an operation on a release that is not queued.
	ErrNotFound = errors.New("release not queued")
	// ErrItemBusy reports an operation that requires the item to be idle.
	ErrItemBusy = errors.New("release is busy")
	// ErrInvalidTransition reports a command that is not valid from the
	// item's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)
