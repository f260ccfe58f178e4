// Package activitymap flattens account activity events into a
// transport-agnostic record that audit pipelines can consume without
// importing the accounts types.
package activitymap

import (
	"strings"
	"time"

	accounts "github.com/goliatone/go-accounts"
)

// Metadata keys lifted out of the event envelope so consumers can filter
// on actor and lifecycle-transition data without parsing the verb.
const (
	MetadataKeyActorType  = "actor_type"
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
)

const (
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Normalized is the flat activity shape handed to downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(accounts.ActivityEvent) string
}

// WithChannel pins every record to a single channel instead of deriving
// it from the event verb.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType overrides the object type applied to records.
func WithObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from the event.
func WithObjectIDResolver(resolver func(accounts.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event carries neither
// an actor nor a subject user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// Normalize converts an accounts.ActivityEvent into a Normalized record.
// The channel defaults to the verb's leading segment, so lifecycle events
// land on "user", session events on "auth", and operator actions on
// "admin".
func Normalize(event accounts.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	verb := string(event.EventType)

	channel := options.channel
	if channel == "" {
		channel = channelFor(verb)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorFor(event, options.actorFallback),
		Verb:       verb,
		ObjectType: options.objectType,
		ObjectID:   objectIDFor(event, options.objectIDResolver),
		Channel:    channel,
		Metadata:   liftMetadata(event),
		OccurredAt: occurredAt,
	}
}

// channelFor maps a verb like "user.status.changed" to its leading
// segment. Verbs with no dotted prefix keep their full text as channel.
func channelFor(verb string) string {
	if idx := strings.IndexByte(verb, '.'); idx > 0 {
		return verb[:idx]
	}
	return verb
}

func actorFor(event accounts.ActivityEvent, fallback string) string {
	if id := strings.TrimSpace(event.Actor.ID); id != "" {
		return id
	}
	if id := strings.TrimSpace(event.UserID); id != "" {
		return id
	}
	return fallback
}

func objectIDFor(event accounts.ActivityEvent, resolver func(accounts.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.UserID)
}

// liftMetadata copies the event metadata and promotes actor type and the
// lifecycle transition endpoints into well-known keys. Caller-provided
// values win over lifted ones for the actor type.
func liftMetadata(event accounts.ActivityEvent) map[string]any {
	size := len(event.Metadata)
	if size == 0 && event.Actor.Type == "" && event.FromStatus == "" && event.ToStatus == "" {
		return nil
	}

	metadata := make(map[string]any, size+3)
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}
	if event.FromStatus != "" {
		metadata[MetadataKeyFromStatus] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		metadata[MetadataKeyToStatus] = string(event.ToStatus)
	}

	return metadata
}
