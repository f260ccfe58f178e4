package accounts_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
)

func TestJWTClaimsUserID(t *testing.T) {
	claims := &accounts.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "subject-id"},
	}
	assert.Equal(t, "subject-id", claims.UserID())

	claims.UID = "uid-wins"
	assert.Equal(t, "uid-wins", claims.UserID())
}

func TestJWTClaimsStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   accounts.AccountStatus
	}{
		{"unverified", "unverified", accounts.AccountStatusUnverified},
		{"active", "active", accounts.AccountStatusActive},
		{"blocked", "blocked", accounts.AccountStatusBlocked},
		{"legacy token without a status claim", "", accounts.AccountStatusActive},
		{"unknown status falls back to active", "superuser", accounts.AccountStatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &accounts.JWTClaims{AccountStatus: tt.status}
			assert.Equal(t, tt.want, claims.Status())
		})
	}
}

func TestJWTClaimsTimes(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	exp := now.Add(time.Hour)

	claims := &accounts.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	assert.Equal(t, now, claims.IssuedAt())
	assert.Equal(t, exp, claims.Expires())

	empty := &accounts.JWTClaims{}
	assert.True(t, empty.IssuedAt().IsZero())
	assert.True(t, empty.Expires().IsZero())
}

func TestParseAccountStatus(t *testing.T) {
	for _, valid := range []string{"unverified", "active", "blocked"} {
		status, ok := accounts.ParseAccountStatus(valid)
		assert.True(t, ok)
		assert.Equal(t, accounts.AccountStatus(valid), status)
	}

	for _, invalid := range []string{"", "deleted", "Active", "ACTIVE"} {
		_, ok := accounts.ParseAccountStatus(invalid)
		assert.False(t, ok, invalid)
	}
}
