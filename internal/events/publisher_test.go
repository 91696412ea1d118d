package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consortium/relay/internal/router"
)

func TestPublisher_DisabledWithoutURL(t *testing.T) {
	p := NewPublisher(Config{}, "node1")
	assert.False(t, p.IsEnabled())

	require.NotPanics(t, func() {
		p.Publish("acct1", "update", map[string]string{"hello": "world"}, router.ToUserScope())
	})
	require.NoError(t, p.Close())
}

func TestSubscriber_DisabledWithoutURL(t *testing.T) {
	s := NewSubscriber(Config{}, router.NewHub(), "node1")
	assert.False(t, s.IsEnabled())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Start(ctx))
}

func TestEnvelope_RecipientFilterRoundTrips(t *testing.T) {
	env := Envelope{
		AccountID: "acct1",
		Event:     "update",
		Filter:    router.FilterAllInterestedInSession,
		SessionID: "sess1",
	}

	filter := env.RecipientFilter()
	assert.Equal(t, router.FilterAllInterestedInSession, filter.Kind)
	assert.Equal(t, "sess1", filter.SessionID)
}

func TestAccountSubject(t *testing.T) {
	assert.Equal(t, "consortium.events.acct1", AccountSubject("acct1"))
}
