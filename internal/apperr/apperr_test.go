package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("approve: %w", Persistence("update member", cause))

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.Equal(t, "approve: update member: persistence: disk full", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Invalid email or password.", UserMessage(New(KindInvalidCredentials, "login", "")))
	assert.Equal(t, "Too many failed attempts. Please try again later.", UserMessage(ErrTooManyAttempts))
	assert.Equal(t, "Please verify your email address before logging in.", UserMessage(ErrEmailNotVerified))
	assert.Equal(t, "Authentication failed. Please try again.", UserMessage(ErrAuthProvider))
	assert.Equal(t, "title is required", UserMessage(Validation("create task", "title is required")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrValidation:         http.StatusBadRequest,
		ErrAuthorization:      http.StatusForbidden,
		ErrNotFound:           http.StatusNotFound,
		ErrCredentialConflict: http.StatusConflict,
		ErrInvalidCredentials: http.StatusUnauthorized,
		ErrTooManyAttempts:    http.StatusTooManyRequests,
		ErrPersistence:        http.StatusInternalServerError,
		errors.New("x"):       http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}
