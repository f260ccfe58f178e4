package accounts_test

import (
	"errors"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorTextCodes(t *testing.T) {
	tests := []struct {
		err      *goerrors.Error
		textCode string
	}{
		{accounts.ErrIdentityNotFound, "IDENTITY_NOT_FOUND"},
		{accounts.ErrUserNotFound, "USER_NOT_FOUND"},
		{accounts.ErrDuplicateEmail, "DUPLICATE_EMAIL"},
		{accounts.ErrAccountBlocked, "ACCOUNT_BLOCKED"},
		{accounts.ErrMismatchedHashAndPassword, "INVALID_CREDENTIALS"},
		{accounts.ErrInvalidOrExpiredToken, "INVALID_OR_EXPIRED_TOKEN"},
		{accounts.ErrTooManyLoginAttempts, "TOO_MANY_LOGIN_ATTEMPTS"},
		{accounts.ErrInvalidTransition, "INVALID_ACCOUNT_STATE_TRANSITION"},
		{accounts.ErrTokenExpired, "TOKEN_EXPIRED"},
		{accounts.ErrTokenMalformed, "TOKEN_MALFORMED"},
		{accounts.ErrImmutableClaimMutation, "IMMUTABLE_CLAIM_MUTATION"},
	}

	for _, tt := range tests {
		t.Run(tt.textCode, func(t *testing.T) {
			assert.Equal(t, tt.textCode, tt.err.TextCode)
		})
	}
}

func TestIsTokenExpiredError(t *testing.T) {
	assert.True(t, accounts.IsTokenExpiredError(accounts.ErrTokenExpired))
	assert.True(t, accounts.IsTokenExpiredError(errors.New("token is expired")))
	assert.False(t, accounts.IsTokenExpiredError(accounts.ErrTokenMalformed))
	assert.False(t, accounts.IsTokenExpiredError(nil))
}

func TestIsMalformedError(t *testing.T) {
	assert.True(t, accounts.IsMalformedError(accounts.ErrTokenMalformed))
	assert.True(t, accounts.IsMalformedError(errors.New("missing or malformed JWT")))
	assert.False(t, accounts.IsMalformedError(accounts.ErrTokenExpired))
	assert.False(t, accounts.IsMalformedError(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, accounts.IsUniqueViolation(errors.New("UNIQUE constraint failed: users.email")))
	assert.True(t, accounts.IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "users_email_idx" (SQLSTATE 23505)`)))
	assert.False(t, accounts.IsUniqueViolation(errors.New("connection refused")))
	assert.False(t, accounts.IsUniqueViolation(nil))
}

func TestErrorMetadataKeepsIdentity(t *testing.T) {
	err := accounts.ErrInvalidOrExpiredToken.WithMetadata(map[string]any{"user_id": "u-1"})

	// sentinel identity must survive the metadata attachment
	assert.True(t, goerrors.Is(err, accounts.ErrInvalidOrExpiredToken))
}
