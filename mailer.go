package accounts

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// MailMessage is the minimal envelope handed to a Mailer.
type MailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer delivers account related mail. Implementations own transport,
// templating, and retries; handlers only compose the message.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, msg MailMessage) error

func (f MailerFunc) Send(ctx context.Context, msg MailMessage) error {
	return f(ctx, msg)
}

// logMailer is the default sink when no Mailer is configured. It logs the
// delivery instead of failing registration on a missing integration.
type logMailer struct {
	logger Logger
}

func (m logMailer) Send(_ context.Context, msg MailMessage) error {
	m.logger.Info("mail delivery skipped, no mailer configured: to=%s subject=%q", msg.To, msg.Subject)
	return nil
}

func normalizeMailer(m Mailer, logger Logger) Mailer {
	if m != nil {
		return m
	}
	if logger == nil {
		logger = defLogger{}
	}
	return logMailer{logger: logger}
}

// ConfirmationLink builds the URL a user follows to confirm their email. The
// raw token travels only through this link; it is never persisted.
func ConfirmationLink(baseURL string, userID uuid.UUID, rawToken string) string {
	q := url.Values{}
	q.Set("uid", userID.String())
	q.Set("token", rawToken)
	return fmt.Sprintf("%s?%s", baseURL, q.Encode())
}
