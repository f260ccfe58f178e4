package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmEmailHandler(t *testing.T) {
	ctx := context.Background()
	repo := setupRepoManager(t)
	tokens := accounts.NewConfirmationTokenService(repo)
	sink := &capturingSink{}
	handler := accounts.NewConfirmEmailHandler(repo, tokens,
		accounts.WithConfirmActivitySink(sink),
	)

	user := seedUser(t, repo, "confirm@example.com", accounts.AccountStatusUnverified)
	raw, err := tokens.Issue(ctx, user.ID, accounts.PurposeEmailConfirmation)
	require.NoError(t, err)

	var confirmed *accounts.User
	err = handler.Execute(ctx, accounts.ConfirmEmailMessage{
		UserID: user.ID,
		Token:  raw,
		OnConfirmed: func(u *accounts.User) {
			confirmed = u
		},
	})
	require.NoError(t, err)
	require.NotNil(t, confirmed)

	t.Run("the account is active afterwards", func(t *testing.T) {
		assert.Equal(t, accounts.AccountStatusActive, confirmed.Status)

		stored, err := repo.Users().GetByID(ctx, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, accounts.AccountStatusActive, stored.Status)
	})

	t.Run("the confirmation was recorded", func(t *testing.T) {
		var found bool
		for _, evt := range sink.events {
			if evt.EventType == accounts.ActivityEventEmailConfirmed {
				found = true
				assert.Equal(t, accounts.AccountStatusUnverified, evt.FromStatus)
				assert.Equal(t, accounts.AccountStatusActive, evt.ToStatus)
			}
		}
		assert.True(t, found)
	})

	t.Run("replaying the link fails and leaves the account active", func(t *testing.T) {
		err := handler.Execute(ctx, accounts.ConfirmEmailMessage{
			UserID: user.ID,
			Token:  raw,
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, accounts.ErrInvalidOrExpiredToken))

		stored, err := repo.Users().GetByID(ctx, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, accounts.AccountStatusActive, stored.Status)
	})
}

func TestConfirmEmailHandlerUnknownUser(t *testing.T) {
	ctx := context.Background()
	repo := setupRepoManager(t)
	tokens := accounts.NewConfirmationTokenService(repo)
	handler := accounts.NewConfirmEmailHandler(repo, tokens)

	err := handler.Execute(ctx, accounts.ConfirmEmailMessage{
		UserID: uuid.New(),
		Token:  "whatever",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, accounts.ErrUserNotFound))
}

func TestConfirmEmailHandlerExpiredToken(t *testing.T) {
	ctx := context.Background()
	repo := setupRepoManager(t)

	issuedAt := time.Now().Add(-48 * time.Hour)
	issuer := accounts.NewConfirmationTokenService(repo,
		accounts.WithTokenClock(func() time.Time { return issuedAt }),
	)

	user := seedUser(t, repo, "expired@example.com", accounts.AccountStatusUnverified)
	raw, err := issuer.Issue(ctx, user.ID, accounts.PurposeEmailConfirmation)
	require.NoError(t, err)

	handler := accounts.NewConfirmEmailHandler(repo, accounts.NewConfirmationTokenService(repo))
	err = handler.Execute(ctx, accounts.ConfirmEmailMessage{
		UserID: user.ID,
		Token:  raw,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, accounts.ErrInvalidOrExpiredToken))

	stored, err := repo.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusUnverified, stored.Status)
}

func TestConfirmEmailHandlerWrongUserToken(t *testing.T) {
	ctx := context.Background()
	repo := setupRepoManager(t)
	tokens := accounts.NewConfirmationTokenService(repo)
	handler := accounts.NewConfirmEmailHandler(repo, tokens)

	owner := seedUser(t, repo, "owner@example.com", accounts.AccountStatusUnverified)
	intruder := seedUser(t, repo, "intruder@example.com", accounts.AccountStatusUnverified)

	raw, err := tokens.Issue(ctx, owner.ID, accounts.PurposeEmailConfirmation)
	require.NoError(t, err)

	err = handler.Execute(ctx, accounts.ConfirmEmailMessage{
		UserID: intruder.ID,
		Token:  raw,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, accounts.ErrInvalidOrExpiredToken))

	stored, err := repo.Users().GetByID(ctx, intruder.ID.String())
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusUnverified, stored.Status)
}
