package accounts_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService() accounts.TokenService {
	return accounts.NewTokenService(
		[]byte("test-signing-key"),
		24,
		"test-issuer",
		jwt.ClaimStrings{"test-audience"},
		nil,
	)
}

func TestTokenService_Generate(t *testing.T) {
	service := newTestTokenService()

	identity := TestIdentity{
		id:       "user-123",
		username: "testuser",
		email:    "test@example.com",
		status:   accounts.AccountStatusActive,
	}

	token, err := service.Generate(identity)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.Validate(token)
	require.NoError(t, err)

	jwtClaims, ok := claims.(*accounts.JWTClaims)
	require.True(t, ok)

	assert.Equal(t, "user-123", jwtClaims.Subject)
	assert.Equal(t, "user-123", jwtClaims.UserID())
	assert.Equal(t, "test-issuer", jwtClaims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"test-audience"}, jwtClaims.Audience)
	assert.Equal(t, accounts.AccountStatusActive, jwtClaims.Status())
	assert.NotEmpty(t, jwtClaims.ID, "every token gets a jti")
}

func TestTokenService_GenerateStatusSnapshot(t *testing.T) {
	service := newTestTokenService()

	for _, status := range []accounts.AccountStatus{
		accounts.AccountStatusUnverified,
		accounts.AccountStatusActive,
		accounts.AccountStatusBlocked,
	} {
		identity := TestIdentity{id: "user-1", status: status}

		token, err := service.Generate(identity)
		require.NoError(t, err)

		claims, err := service.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, status, claims.(*accounts.JWTClaims).Status())
	}
}

func TestTokenService_Validate(t *testing.T) {
	service := newTestTokenService()

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := service.Validate("not-a-jwt")
		require.Error(t, err)
		assert.True(t, accounts.IsMalformedError(err))
	})

	t.Run("rejects a token signed with a different key", func(t *testing.T) {
		other := accounts.NewTokenService(
			[]byte("other-key"), 24, "test-issuer",
			jwt.ClaimStrings{"test-audience"}, nil,
		)
		token, err := other.Generate(TestIdentity{id: "user-1", status: accounts.AccountStatusActive})
		require.NoError(t, err)

		_, err = service.Validate(token)
		require.Error(t, err)
	})

	t.Run("rejects a token from a different issuer", func(t *testing.T) {
		other := accounts.NewTokenService(
			[]byte("test-signing-key"), 24, "someone-else",
			jwt.ClaimStrings{"test-audience"}, nil,
		)
		token, err := other.Generate(TestIdentity{id: "user-1", status: accounts.AccountStatusActive})
		require.NoError(t, err)

		_, err = service.Validate(token)
		require.Error(t, err)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		now := time.Now()
		claims := &accounts.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "test-issuer",
				Subject:   "user-1",
				Audience:  jwt.ClaimStrings{"test-audience"},
				IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			},
			UID: "user-1",
		}

		token, err := service.SignClaims(claims)
		require.NoError(t, err)

		_, err = service.Validate(token)
		require.Error(t, err)
		assert.True(t, goerrors.Is(err, accounts.ErrTokenExpired))
	})
}

func TestTokenService_SignClaimsNil(t *testing.T) {
	service := newTestTokenService()

	_, err := service.SignClaims(nil)
	assert.Error(t, err)
}
