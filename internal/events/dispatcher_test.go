package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PublishToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var got []string
	d.Subscribe(EventTokenRevoked, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.TokenDigest)
		return nil
	})
	d.Subscribe(EventTokenRevoked, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.TokenDigest)
		return nil
	})
	d.Subscribe(EventTokenRejected, func(context.Context, Event) error {
		t.Fatal("unexpected handler call")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), NewEvent(EventTokenRevoked, "abc123", nil)))
	assert.Equal(t, []string{"first:abc123", "second:abc123"}, got)
}

func TestDispatcher_HandlerErrorsAreJoined(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")

	called := false
	d.Subscribe(EventTokenRevocationFailed, func(context.Context, Event) error { return boom })
	d.Subscribe(EventTokenRevocationFailed, func(context.Context, Event) error {
		called = true
		return nil
	})

	err := d.Publish(context.Background(), NewEvent(EventTokenRevocationFailed, "abc", nil))
	assert.ErrorIs(t, err, boom)
	assert.True(t, called, "later handlers still run")
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventTokenRejected, "digest", TokenRejectedPayload{Reason: "revoked"})
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventTokenRejected, e.Type)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "revoked", e.Payload.(TokenRejectedPayload).Reason)
}
