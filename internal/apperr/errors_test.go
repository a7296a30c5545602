package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"wrapped not found", fmt.Errorf("user not found: %w", ErrNotFound), ErrNotFound},
		{"double wrapped forbidden", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrForbidden)), ErrForbidden},
		{"duplicate", fmt.Errorf("email exists: %w", ErrDuplicateKey), ErrDuplicateKey},
		{"delivery", fmt.Errorf("smtp: %w", ErrDeliveryFailed), ErrDeliveryFailed},
		{"plain error", errors.New("connection refused"), ErrInternal},
		{"nil", nil, ErrInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Kind(tc.err))
		})
	}
}

func TestNew(t *testing.T) {
	err := New(ErrNotFound, "property not found")

	assert.Equal(t, "property not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.Equal(t, ErrNotFound, Kind(fmt.Errorf("update: %w", err)))
}
