package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type SweepUnverifiedMessage struct {
	Actor ActorRef `json:"actor"`
	// OnResponse receives the number of accounts removed.
	OnResponse func(removed int)
}

func (e SweepUnverifiedMessage) Type() string { return "admin.users.sweep_unverified" }

// SweepUnverifiedHandler soft deletes every account still unverified when the
// sweep runs. The whole sweep is one statement, so a registration that
// commits after the snapshot simply waits for the next run.
type SweepUnverifiedHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
}

type SweepUnverifiedOption func(*SweepUnverifiedHandler)

// WithSweepActivitySink records sweep events.
func WithSweepActivitySink(sink ActivitySink) SweepUnverifiedOption {
	return func(h *SweepUnverifiedHandler) {
		if sink != nil {
			h.sink = sink
		}
	}
}

// WithSweepLogger overrides the handler logger.
func WithSweepLogger(logger Logger) SweepUnverifiedOption {
	return func(h *SweepUnverifiedHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewSweepUnverifiedHandler(repo RepositoryManager, opts ...SweepUnverifiedOption) *SweepUnverifiedHandler {
	h := &SweepUnverifiedHandler{
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

func (h *SweepUnverifiedHandler) Execute(ctx context.Context, event SweepUnverifiedMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during unverified sweep")
	default:
		return h.execute(ctx, event)
	}
}

func (h *SweepUnverifiedHandler) execute(ctx context.Context, event SweepUnverifiedMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	removed := 0

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		removed, err = h.repo.Users().SweepUnverifiedTx(ctx, tx)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unverified sweep failed")
	}

	h.recordActivity(ctx, event.Actor, removed)

	if event.OnResponse != nil {
		event.OnResponse(removed)
	}

	return nil
}

func (h *SweepUnverifiedHandler) recordActivity(ctx context.Context, actor ActorRef, removed int) {
	err := h.sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventSweepCompleted,
		Actor:      actor,
		OccurredAt: time.Now(),
		Metadata: map[string]any{
			"removed": removed,
		},
	})
	if err != nil {
		h.logger.Warn("activity sink error: %s", err)
	}
}
