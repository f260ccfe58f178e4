package accounts_test

import (
	"context"
	"strings"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmationLink(t *testing.T) {
	userID := uuid.New()

	link := accounts.ConfirmationLink("https://app.example.com/account/verify", userID, "raw/token+value")

	require.True(t, strings.HasPrefix(link, "https://app.example.com/account/verify?"))
	assert.Contains(t, link, "uid="+userID.String())
	// query values are escaped so tokens with reserved characters survive the trip
	assert.Contains(t, link, "token=raw%2Ftoken%2Bvalue")
}

func TestMailerFunc(t *testing.T) {
	var got accounts.MailMessage
	mailer := accounts.MailerFunc(func(_ context.Context, msg accounts.MailMessage) error {
		got = msg
		return nil
	})

	err := mailer.Send(context.Background(), accounts.MailMessage{
		To:      "user@example.com",
		Subject: "Confirm your email",
		Body:    "https://app.example.com/account/verify?uid=x&token=y",
	})

	require.NoError(t, err)
	assert.Equal(t, "user@example.com", got.To)
	assert.Equal(t, "Confirm your email", got.Subject)
}
