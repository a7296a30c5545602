package user

import "github.com/roomkartz/roomkartz-api/internal/apperr"

var (
	ErrNotFound           = apperr.New(apperr.ErrNotFound, "user not found")
	ErrPropertyNotFound   = apperr.New(apperr.ErrNotFound, "property not found")
	ErrDuplicateEmail     = apperr.New(apperr.ErrDuplicateKey, "email already exists")
	ErrDuplicateMobile    = apperr.New(apperr.ErrDuplicateKey, "mobile already exists")
	ErrDuplicateSubject   = apperr.New(apperr.ErrDuplicateKey, "account already exists")
	ErrAuthMethodConflict = apperr.New(apperr.ErrInvalidArgument, "exactly one of uid or password must be set")
	ErrInvalidRole        = apperr.New(apperr.ErrInvalidArgument, "role must be user or owner")
)
