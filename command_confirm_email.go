package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type ConfirmEmailMessage struct {
	UserID uuid.UUID `json:"user_id"`
	Token  string    `json:"token"`
	// OnConfirmed receives the activated record.
	OnConfirmed func(user *User)
}

func (e ConfirmEmailMessage) Type() string { return "user.email.confirm" }

// ConfirmEmailHandler consumes a confirmation token and activates the
// account. The token is burned before the status change, so a replayed link
// fails cleanly instead of re-running the transition. Confirmation never
// signs the user in; the caller redirects to login.
type ConfirmEmailHandler struct {
	repo   RepositoryManager
	tokens *ConfirmationTokenService
	sm     UserStateMachine
	sink   ActivitySink
	logger Logger
}

type ConfirmEmailOption func(*ConfirmEmailHandler)

// WithConfirmActivitySink records confirmation events.
func WithConfirmActivitySink(sink ActivitySink) ConfirmEmailOption {
	return func(h *ConfirmEmailHandler) {
		if sink != nil {
			h.sink = sink
		}
	}
}

// WithConfirmLogger overrides the handler logger.
func WithConfirmLogger(logger Logger) ConfirmEmailOption {
	return func(h *ConfirmEmailHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithConfirmStateMachine overrides the lifecycle machine used to activate
// accounts.
func WithConfirmStateMachine(sm UserStateMachine) ConfirmEmailOption {
	return func(h *ConfirmEmailHandler) {
		if sm != nil {
			h.sm = sm
		}
	}
}

func NewConfirmEmailHandler(repo RepositoryManager, tokens *ConfirmationTokenService, opts ...ConfirmEmailOption) *ConfirmEmailHandler {
	h := &ConfirmEmailHandler{
		repo:   repo,
		tokens: tokens,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	if h.sm == nil {
		h.sm = NewUserStateMachine(repo.Users())
	}

	return h
}

func (h *ConfirmEmailHandler) Execute(ctx context.Context, event ConfirmEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailHandler) execute(ctx context.Context, event ConfirmEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, event.UserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for confirmation")
	}

	if err := h.tokens.Validate(ctx, user.ID, event.Token); err != nil {
		return err
	}

	from := user.Status
	actor := ActorRef{ID: user.ID.String(), Type: "user"}

	user, err = h.sm.Transition(ctx, actor, user, AccountStatusActive,
		WithTransitionReason("email confirmed"),
	)
	if err != nil {
		return err
	}

	h.recordActivity(ctx, user, from)

	if event.OnConfirmed != nil {
		event.OnConfirmed(user)
	}

	return nil
}

func (h *ConfirmEmailHandler) recordActivity(ctx context.Context, user *User, from AccountStatus) {
	err := h.sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventEmailConfirmed,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		FromStatus: from,
		ToStatus:   user.Status,
		OccurredAt: time.Now(),
	})
	if err != nil {
		h.logger.Warn("activity sink error: %s", err)
	}
}
