package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrNothingToLoad is returned by the body loader when no note
	// matches the requested set.
	ErrNothingToLoad = errors.New("no notes to load")

	// ErrUnknownNote is returned for operations on an id the store does
	// not hold.
	ErrUnknownNote = errors.New("note not in feed")
)

// TransportError reports a failed call to the notification service. The
// store is never modified by the operation that produced it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
