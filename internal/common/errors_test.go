package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldErrors_MatchesErrValidation(t *testing.T) {
	var err error = FieldErrors{{Field: "bio", Message: "too long"}}

	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(fmt.Errorf("update: %w", err), ErrValidation))
	assert.False(t, errors.Is(err, ErrorUnauthorized))
}

func TestFieldErrors_ErrorListsFields(t *testing.T) {
	err := FieldErrors{
		{Field: "bio", Message: "too long"},
		{Field: "phone", Message: "invalid phone number"},
	}

	assert.Equal(t, "validation error: bio: too long; phone: invalid phone number", err.Error())
}

func TestFieldErrors_AsRecoversFields(t *testing.T) {
	wrapped := fmt.Errorf("svc: %w", FieldErrors{{Field: "address", Message: "HTML tags are not allowed"}})

	var fe FieldErrors
	if assert.True(t, errors.As(wrapped, &fe)) {
		assert.Len(t, fe, 1)
		assert.Equal(t, "address", fe[0].Field)
	}
}
