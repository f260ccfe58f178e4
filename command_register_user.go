package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UseHashid bool
	// OnRegistered receives the created record and the raw confirmation token.
	OnRegistered func(user *User, rawToken string)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates an unverified account, issues its confirmation
// token, and dispatches the confirmation email, all within one transaction.
// A registration never yields an account that can reach privileged areas
// without a confirmation round trip.
type RegisterUserHandler struct {
	repo     RepositoryManager
	tokens   *ConfirmationTokenService
	mailer   Mailer
	sink     ActivitySink
	logger   Logger
	emailURL string
}

type RegisterUserOption func(*RegisterUserHandler)

// WithRegisterMailer sets the mail transport for confirmation emails.
func WithRegisterMailer(m Mailer) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if m != nil {
			h.mailer = m
		}
	}
}

// WithRegisterActivitySink records registration events.
func WithRegisterActivitySink(sink ActivitySink) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if sink != nil {
			h.sink = sink
		}
	}
}

// WithRegisterLogger overrides the handler logger.
func WithRegisterLogger(logger Logger) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithConfirmationBaseURL sets the base URL embedded in confirmation links.
func WithConfirmationBaseURL(base string) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if base != "" {
			h.emailURL = base
		}
	}
}

func NewRegisterUserHandler(repo RepositoryManager, tokens *ConfirmationTokenService, opts ...RegisterUserOption) *RegisterUserHandler {
	h := &RegisterUserHandler{
		repo:     repo,
		tokens:   tokens,
		sink:     noopActivitySink{},
		logger:   defLogger{},
		emailURL: "/account/verify",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	h.mailer = normalizeMailer(h.mailer, h.logger)

	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	rawToken := ""

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.Username = getUsername(event.Username, event.Email)
		user.Status = AccountStatusUnverified
		if event.UseHashid {
			if id, err := hashid.NewUUID(normalizeEmail(event.Email)); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			if goerrors.Is(err, ErrDuplicateEmail) {
				return err
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		if rawToken, err = h.tokens.IssueTx(ctx, tx, user.ID, PurposeEmailConfirmation); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.recordActivity(ctx, user)
	h.sendConfirmation(ctx, user, rawToken)

	if event.OnRegistered != nil {
		event.OnRegistered(user, rawToken)
	}

	return nil
}

// sendConfirmation delivers the confirmation link outside of the
// registration transaction. A mail failure leaves a valid account with a
// valid token; the user can request another email.
func (h *RegisterUserHandler) sendConfirmation(ctx context.Context, user *User, rawToken string) {
	msg := MailMessage{
		To:      user.Email,
		Subject: "Confirm your email address",
		Body:    ConfirmationLink(h.emailURL, user.ID, rawToken),
	}

	if err := h.mailer.Send(ctx, msg); err != nil {
		h.logger.Error("failed to send confirmation email to %s: %s", user.Email, err)
	}
}

func (h *RegisterUserHandler) recordActivity(ctx context.Context, user *User) {
	err := h.sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventUserRegistered,
		UserID:     user.ID.String(),
		ToStatus:   user.Status,
		OccurredAt: time.Now(),
		Metadata: map[string]any{
			"email": user.Email,
		},
	})
	if err != nil {
		h.logger.Warn("activity sink error: %s", err)
	}
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
