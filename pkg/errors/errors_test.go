package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorWrapsUnknownAsInternal(t *testing.T) {
	err := FromError(stderrors.New("boom"))
	require.NotNil(t, err)
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestCloneKeepsIdentity(t *testing.T) {
	clone := Clone(ErrNotFound, "driver not found")
	assert.Equal(t, "driver not found", clone.Message)
	assert.True(t, stderrors.Is(clone, ErrNotFound))
	assert.False(t, stderrors.Is(clone, ErrConflict))
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestFromValidationBuildsFieldDetails(t *testing.T) {
	type payload struct {
		Email string  `validate:"required,email"`
		Price float64 `validate:"gte=0.1,lte=1.5"`
	}
	err := validator.New().Struct(payload{Email: "nope", Price: 3})
	require.Error(t, err)

	appErr := FromValidation(err, "invalid payload")
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	require.Len(t, appErr.Details, 2)
	assert.Equal(t, "Email", appErr.Details[0].Field)
	assert.Equal(t, "must be a valid email address", appErr.Details[0].Message)
	assert.Equal(t, "Price", appErr.Details[1].Field)
	assert.Equal(t, "must be less than or equal to 1.5", appErr.Details[1].Message)
}
