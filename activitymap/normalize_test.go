package activitymap_test

import (
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLifecycleEvent(t *testing.T) {
	ts := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	event := accounts.ActivityEvent{
		EventType:  accounts.ActivityEventUserStatusChanged,
		Actor:      accounts.ActorRef{ID: "admin-42", Type: "admin"},
		UserID:     "user-100",
		FromStatus: accounts.AccountStatusActive,
		ToStatus:   accounts.AccountStatusBlocked,
		Metadata: map[string]any{
			"ticket": "SEC-204",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, "admin-42", out.ActorID)
	assert.Equal(t, "user.status.changed", out.Verb)
	assert.Equal(t, "user", out.ObjectType)
	assert.Equal(t, "user-100", out.ObjectID)
	assert.Equal(t, "user", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))

	assert.Equal(t, "SEC-204", out.Metadata["ticket"])
	assert.Equal(t, "admin", out.Metadata[activitymap.MetadataKeyActorType])
	assert.Equal(t, "active", out.Metadata[activitymap.MetadataKeyFromStatus])
	assert.Equal(t, "blocked", out.Metadata[activitymap.MetadataKeyToStatus])

	// the source event must not be mutated by the lift
	assert.Len(t, event.Metadata, 1)
}

func TestNormalizeChannelFromVerb(t *testing.T) {
	tests := []struct {
		eventType accounts.ActivityEventType
		channel   string
	}{
		{accounts.ActivityEventUserRegistered, "user"},
		{accounts.ActivityEventLoginBlocked, "auth"},
		{accounts.ActivityEventBulkApplied, "admin"},
		{accounts.ActivityEventSweepCompleted, "admin"},
	}

	for _, tc := range tests {
		t.Run(string(tc.eventType), func(t *testing.T) {
			out := activitymap.Normalize(accounts.ActivityEvent{EventType: tc.eventType})
			assert.Equal(t, tc.channel, out.Channel)
		})
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	event := accounts.ActivityEvent{
		EventType: accounts.ActivityEventEmailConfirmed,
		Actor:     accounts.ActorRef{Type: "user"},
		UserID:    "user-200",
		Metadata: map[string]any{
			"confirmation_id":                "confirm-1",
			activitymap.MetadataKeyActorType: "existing",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithChannel("security"),
		activitymap.WithObjectType("account"),
		activitymap.WithObjectIDResolver(func(e accounts.ActivityEvent) string {
			v, _ := e.Metadata["confirmation_id"].(string)
			return v
		}),
	)

	assert.Equal(t, "security", out.Channel)
	assert.Equal(t, "account", out.ObjectType)
	assert.Equal(t, "confirm-1", out.ObjectID)
	// caller-provided actor type wins over the lifted one
	assert.Equal(t, "existing", out.Metadata[activitymap.MetadataKeyActorType])
	assert.False(t, out.OccurredAt.IsZero())
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	tests := []struct {
		name   string
		event  accounts.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "actor id when present",
			event:  accounts.ActivityEvent{Actor: accounts.ActorRef{ID: "actor-1"}, UserID: "user-1"},
			expect: "actor-1",
		},
		{
			name:   "subject user id when actor id missing",
			event:  accounts.ActivityEvent{UserID: "user-2"},
			expect: "user-2",
		},
		{
			name:   "system when both missing",
			event:  accounts.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "configured fallback when both missing",
			event:  accounts.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("sweep-job")},
			expect: "sweep-job",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := activitymap.Normalize(tc.event, tc.opts...)
			assert.Equal(t, tc.expect, out.ActorID)
		})
	}
}

func TestNormalizeEmptyMetadata(t *testing.T) {
	out := activitymap.Normalize(accounts.ActivityEvent{
		EventType: accounts.ActivityEventLoginSuccess,
		UserID:    "user-300",
	})

	require.Nil(t, out.Metadata)
}
