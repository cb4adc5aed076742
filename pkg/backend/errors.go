package backend

import (
	"errors"
	"fmt"
)

// UnavailableError indicates that a backend cannot be used on this host, for
// example because the OS credential store integration could not be loaded.
type UnavailableError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("%s backend unavailable", e.Backend)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is, or wraps, an *UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// OperationError wraps a failure of Store, Retrieve or Delete.
type OperationError struct {
	Backend string
	Op      string // "store", "retrieve", "delete"
	KeyID   string
	Err     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s backend %s failed for %s: %v", e.Backend, e.Op, e.KeyID, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
