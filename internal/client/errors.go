package client

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when no image was provided.
	ErrInvalidInput = errors.New("no image provided")

	// ErrTransferFailure matches every *TransferError via errors.Is.
	ErrTransferFailure = errors.New("transfer failure")
)

// TransferError reports a failed exchange with the detection backend: a
// network error, a non-2xx status or an unreadable body.
type TransferError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool { return target == ErrTransferFailure }
