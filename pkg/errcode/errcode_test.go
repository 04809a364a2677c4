package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindPredicates(t *testing.T) {
	assert.True(t, IsConflict(ErrSelfTarget))
	assert.True(t, IsValidation(ErrEmptyContent))
	assert.True(t, IsNotFound(ErrConvNotFound))
	assert.True(t, IsTransport(ErrBackendUnavailable))

	assert.False(t, IsConflict(ErrEmptyContent))
}

func TestKindOf_UntypedErrorIsTransport(t *testing.T) {
	assert.Equal(t, KindTransport, KindOf(errors.New("connection reset")))
}

func TestWrap_PreservesCodeAndKind(t *testing.T) {
	wrapped := ErrUserNotFound.Wrap(errors.New("row missing"))

	assert.Equal(t, ErrUserNotFound.Code, wrapped.Code)
	assert.True(t, IsNotFound(wrapped))
	assert.Contains(t, wrapped.Msg, "row missing")

	// Wrapping nil returns the original error untouched.
	assert.Same(t, ErrUserNotFound, ErrUserNotFound.Wrap(nil))
}

func TestWrap_SurvivesErrorChains(t *testing.T) {
	chained := fmt.Errorf("resolve: %w", ErrSelfTarget)
	assert.True(t, IsConflict(chained))
}

func TestLocalCodesStayAboveBackendRange(t *testing.T) {
	locals := []*Error{
		ErrBackendUnavailable, ErrBadResponse, ErrInternalServer,
		ErrEmptyContent, ErrMissingTarget, ErrInvalidParam,
		ErrSelfTarget, ErrForbidden,
		ErrUserNotFound, ErrConvNotFound,
	}
	seen := make(map[int]bool)
	for _, e := range locals {
		assert.GreaterOrEqual(t, e.Code, LocalCodeBase, "local code %d collides with the backend range", e.Code)
		assert.False(t, seen[e.Code], "duplicate local code %d", e.Code)
		seen[e.Code] = true
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, ErrBackendUnavailable.Retryable())
	assert.False(t, ErrSelfTarget.Retryable())
	assert.False(t, ErrEmptyContent.Retryable())
}
