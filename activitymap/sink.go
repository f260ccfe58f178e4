package activitymap

import (
	"context"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-errors"
)

// Publisher delivers normalized activity records to a downstream system.
type Publisher interface {
	Publish(ctx context.Context, record Normalized) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, record Normalized) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, record Normalized) error {
	if f == nil {
		return nil
	}
	return f(ctx, record)
}

// Sink is an accounts.ActivitySink that normalizes every event before
// handing it to a Publisher. Plug it into the authenticator or the
// command handlers to ship audit records out of process.
type Sink struct {
	publisher Publisher
	opts      []Option
}

var _ accounts.ActivitySink = (*Sink)(nil)

// NewSink builds a Sink. The options are applied to every record.
func NewSink(publisher Publisher, opts ...Option) *Sink {
	return &Sink{
		publisher: publisher,
		opts:      opts,
	}
}

// Record normalizes the event and publishes it.
func (s *Sink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	if s == nil || s.publisher == nil {
		return nil
	}

	if err := s.publisher.Publish(ctx, Normalize(event, s.opts...)); err != nil {
		return errors.Wrap(err, errors.CategoryExternal, "failed to publish activity record").
			WithMetadata(map[string]any{
				"verb": string(event.EventType),
			})
	}
	return nil
}
