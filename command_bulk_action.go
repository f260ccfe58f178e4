package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// BulkAction enumerates the administrative operations that can be applied to
// a selection of accounts.
type BulkAction string

const (
	BulkActionBlock   BulkAction = "block"
	BulkActionUnblock BulkAction = "unblock"
	BulkActionDelete  BulkAction = "delete"
)

// ParseBulkAction safely parses a string into a BulkAction.
func ParseBulkAction(s string) (BulkAction, bool) {
	switch BulkAction(s) {
	case BulkActionBlock, BulkActionUnblock, BulkActionDelete:
		return BulkAction(s), true
	default:
		return "", false
	}
}

type BulkActionMessage struct {
	Action  BulkAction  `json:"action"`
	UserIDs []uuid.UUID `json:"user_ids"`
	Actor   ActorRef    `json:"actor"`
	// OnResponse receives the per-selection outcome summary.
	OnResponse func(summary *BulkActionSummary)
}

func (e BulkActionMessage) Type() string { return "admin.users.bulk" }

// BulkFailure records one account the action could not be applied to.
type BulkFailure struct {
	UserID uuid.UUID `json:"user_id"`
	Error  string    `json:"error"`
}

// BulkActionSummary reports what happened to each selected account. Missing
// accounts are skipped, per account errors are collected, and the remaining
// selection is still processed.
type BulkActionSummary struct {
	Action       BulkAction    `json:"action"`
	Applied      int           `json:"applied"`
	Skipped      int           `json:"skipped"`
	Failed       []BulkFailure `json:"failed,omitempty"`
	NoneSelected bool          `json:"none_selected"`
}

// BulkActionHandler applies block, unblock, or delete to a selection of
// accounts. Each account is handled independently so one bad row never
// aborts the rest of the selection.
type BulkActionHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
}

type BulkActionOption func(*BulkActionHandler)

// WithBulkActivitySink records bulk administration events.
func WithBulkActivitySink(sink ActivitySink) BulkActionOption {
	return func(h *BulkActionHandler) {
		if sink != nil {
			h.sink = sink
		}
	}
}

// WithBulkLogger overrides the handler logger.
func WithBulkLogger(logger Logger) BulkActionOption {
	return func(h *BulkActionHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewBulkActionHandler(repo RepositoryManager, opts ...BulkActionOption) *BulkActionHandler {
	h := &BulkActionHandler{
		repo:   repo,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

func (h *BulkActionHandler) Execute(ctx context.Context, event BulkActionMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during bulk action")
	default:
		return h.execute(ctx, event)
	}
}

func (h *BulkActionHandler) execute(ctx context.Context, event BulkActionMessage) error {
	summary := &BulkActionSummary{Action: event.Action}

	if _, ok := ParseBulkAction(string(event.Action)); !ok {
		return goerrors.New("unknown bulk action", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"action": event.Action})
	}

	if len(event.UserIDs) == 0 {
		summary.NoneSelected = true
		if event.OnResponse != nil {
			event.OnResponse(summary)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	for _, id := range event.UserIDs {
		if err := h.apply(ctx, event.Actor, event.Action, id, summary); err != nil {
			summary.Failed = append(summary.Failed, BulkFailure{
				UserID: id,
				Error:  err.Error(),
			})
			h.logger.Warn("bulk %s failed for user %s: %s", event.Action, id, err)
		}
	}

	h.recordActivity(ctx, event.Actor, summary)

	if event.OnResponse != nil {
		event.OnResponse(summary)
	}

	return nil
}

func (h *BulkActionHandler) apply(ctx context.Context, actor ActorRef, action BulkAction, id uuid.UUID, summary *BulkActionSummary) error {
	user, err := h.repo.Users().GetByID(ctx, id.String())
	if err != nil {
		// stale selections are expected, rows deleted since the admin loaded
		// the list are skipped rather than reported as failures
		if repository.IsRecordNotFound(err) {
			summary.Skipped++
			return nil
		}
		return err
	}

	switch action {
	case BulkActionBlock:
		_, err = h.repo.Users().Block(ctx, actor, user)
	case BulkActionUnblock:
		_, err = h.repo.Users().Unblock(ctx, actor, user)
	case BulkActionDelete:
		err = h.repo.Users().SoftDelete(ctx, user.ID)
	}

	if err != nil {
		return err
	}

	if action == BulkActionDelete {
		h.recordDeleted(ctx, actor, user)
	}

	summary.Applied++
	return nil
}

func (h *BulkActionHandler) recordDeleted(ctx context.Context, actor ActorRef, user *User) {
	err := h.sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventUserDeleted,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: user.Status,
		OccurredAt: time.Now(),
	})
	if err != nil {
		h.logger.Warn("activity sink error: %s", err)
	}
}

func (h *BulkActionHandler) recordActivity(ctx context.Context, actor ActorRef, summary *BulkActionSummary) {
	err := h.sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventBulkApplied,
		Actor:      actor,
		OccurredAt: time.Now(),
		Metadata: map[string]any{
			"action":  summary.Action,
			"applied": summary.Applied,
			"skipped": summary.Skipped,
			"failed":  len(summary.Failed),
		},
	})
	if err != nil {
		h.logger.Warn("activity sink error: %s", err)
	}
}
