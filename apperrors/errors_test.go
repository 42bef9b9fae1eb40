package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuotaCarriesAmounts(t *testing.T) {
	err := NewQuota(CodeQuotaExceeded, 6291456, 4194304, "storage quota exceeded")

	assert.Equal(t, CodeQuotaExceeded, err.Code)
	assert.Equal(t, http.StatusForbidden, err.Status)
	assert.Equal(t, int64(6291456), err.Required)
	assert.Equal(t, int64(4194304), err.Available)
	assert.Contains(t, err.Message, "required 6291456")
	assert.Contains(t, err.Message, "available 4194304")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, ErrInternal.Code, ErrInternal.Status, "failed to save document")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to save document")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestFromErrorPassthrough(t *testing.T) {
	original := Clone(ErrNotFound, "document not found")
	assert.Same(t, original, FromError(original))
}

func TestFromErrorUnwrapsNested(t *testing.T) {
	inner := Clone(ErrForbidden, "access denied")
	wrapped := fmt.Errorf("handling request: %w", inner)

	got := FromError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrForbidden.Code, got.Code)
	assert.Equal(t, http.StatusForbidden, got.Status)
}

func TestFromErrorNormalisesPlainErrors(t *testing.T) {
	got := FromError(errors.New("something broke"))
	require.NotNil(t, got)
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)

	assert.Nil(t, FromError(nil))
}

func TestIsCode(t *testing.T) {
	err := Clone(ErrConflict, "document is already deleted")

	assert.True(t, IsCode(err, ErrConflict.Code))
	assert.False(t, IsCode(err, ErrNotFound.Code))
	assert.False(t, IsCode(errors.New("plain"), ErrConflict.Code))
	assert.False(t, IsCode(nil, ErrConflict.Code))
}

func TestCloneDoesNotMutateSentinel(t *testing.T) {
	clone := Clone(ErrValidation, "invalid document ID")

	assert.Equal(t, "invalid document ID", clone.Message)
	assert.Equal(t, "validation failed", ErrValidation.Message)
	assert.Equal(t, ErrValidation.Code, clone.Code)
}
