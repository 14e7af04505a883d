package relay

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPayload = errors.New("message must be a JSON object")
	ErrInvalidAuthor  = errors.New("`user` must be an integer")
	ErrInvalidChat    = errors.New("`chat` must be an integer")
	ErrInvalidBody    = errors.New("`body` must be a string")
	ErrEmptyBody      = errors.New("`body` must not be empty")

	ErrPersistence = errors.New("message could not be persisted")
)

// IsValidation reports whether err is caused by a malformed message
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrInvalidAuthor) ||
		errors.Is(err, ErrInvalidChat) ||
		errors.Is(err, ErrInvalidBody) ||
		errors.Is(err, ErrEmptyBody)
}

// PersistenceError wraps a store failure on the insert path
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPersistence, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// DeliveryError describes a failed push to one room member
type DeliveryError struct {
	ConnectionID string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to connection %s: %v", e.ConnectionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
