// Package apperr defines the error kinds shared by every layer of the API.
//
// Domain packages declare their own sentinel errors wrapping one of these
// kinds, so HTTP handlers can translate any failure with errors.Is without
// knowing which package produced it.
package apperr

import "errors"

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrDeliveryFailed  = errors.New("delivery failed")
	ErrInternal        = errors.New("internal error")
)

// kinds is ordered from most to least specific.
var kinds = []error{
	ErrUnauthorized,
	ErrForbidden,
	ErrNotFound,
	ErrInvalidArgument,
	ErrDuplicateKey,
	ErrDeliveryFailed,
}

// Kind returns the taxonomy sentinel err belongs to, or ErrInternal when it
// matches none of them.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// New returns an error reading msg that matches kind under errors.Is.
func New(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}
