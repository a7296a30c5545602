package httputil

import (
	"errors"
	"net/http"

	"github.com/roomkartz/roomkartz-api/internal/apperr"
	"github.com/roomkartz/roomkartz-api/internal/ratelimit"
)

// StatusFor maps an error to the HTTP status of its taxonomy kind
func StatusFor(err error) int {
	switch apperr.Kind(err) {
	case apperr.ErrInvalidArgument:
		return http.StatusBadRequest
	case apperr.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperr.ErrForbidden:
		return http.StatusForbidden
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrDuplicateKey:
		return http.StatusConflict
	case apperr.ErrDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// defaultCode is used when a handler has no more specific code for err
func defaultCode(err error) string {
	switch apperr.Kind(err) {
	case apperr.ErrInvalidArgument:
		return CodeValidationFailed
	case apperr.ErrUnauthorized:
		return CodeUnauthorized
	case apperr.ErrForbidden:
		return CodeForbidden
	case apperr.ErrNotFound:
		return CodeUserNotFound
	case apperr.ErrDuplicateKey:
		return CodeAlreadyExists
	case apperr.ErrDeliveryFailed:
		return CodeDeliveryFailed
	default:
		return CodeInternalError
	}
}

// RespondDomainError writes err using its taxonomy status.
// Internal errors never leak their message; the caller is expected to log them.
func RespondDomainError(w http.ResponseWriter, err error, code string) {
	status := StatusFor(err)
	if code == "" {
		code = defaultCode(err)
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
		code = CodeInternalError
	}

	RespondErrorWithCode(w, message, code, status)
}

// RespondRateLimited writes a 429 for a limiter rejection
func RespondRateLimited(w http.ResponseWriter, err error) {
	code := CodeTooManyRequests
	if errors.Is(err, ratelimit.ErrCooldownActive) {
		code = CodeCooldownActive
	}
	RespondErrorWithCode(w, err.Error(), code, http.StatusTooManyRequests)
}
