package accounts_test

import (
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Run("valid password round trips", func(t *testing.T) {
		hash, err := accounts.HashPassword("securePassword123!")
		require.NoError(t, err)
		assert.NotEmpty(t, hash)
		assert.NotEqual(t, "securePassword123!", hash)

		assert.NoError(t, accounts.ComparePasswordAndHash("securePassword123!", hash))
	})

	t.Run("empty password is rejected", func(t *testing.T) {
		_, err := accounts.HashPassword("")
		assert.Error(t, err)
	})
}

func TestComparePasswordAndHash(t *testing.T) {
	hash, err := accounts.HashPassword("testPassword123!")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  bool
	}{
		{"Matching password", "testPassword123!", hash, false},
		{"Wrong password", "wrongPassword", hash, true},
		{"Empty password", "", hash, true},
		{"Garbage hash", "testPassword123!", "not-a-bcrypt-hash", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := accounts.ComparePasswordAndHash(tt.password, tt.hash)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRandomPasswordHash(t *testing.T) {
	one := accounts.RandomPasswordHash()
	assert.NotEmpty(t, one)
	assert.NotEqual(t, one, accounts.RandomPasswordHash())
}
