package events

import (
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consortium/relay/internal/router"
)

type capturingSender struct {
	frames [][]byte
}

func (c *capturingSender) Send(frame []byte) error {
	c.frames = append(c.frames, frame)
	return nil
}

func TestSubscriber_HandleEnvelope_DropsOwnOrigin(t *testing.T) {
	hub := router.NewHub()
	sender := &capturingSender{}
	conn := router.NewConnection("acct1", router.UserScoped, sender)
	hub.Register(conn)

	sub := &Subscriber{hub: hub, nodeID: "node-a", enabled: false}

	env := Envelope{AccountID: "acct1", Event: "update", Filter: router.FilterUserScopedOnly, OriginNode: "node-a"}
	body, err := json.Marshal(env)
	require.NoError(t, err)

	sub.handleEnvelope(&nats.Msg{Data: body})
	assert.Empty(t, sender.frames)
}

func TestSubscriber_HandleEnvelope_RepaysOtherOrigin(t *testing.T) {
	hub := router.NewHub()
	sender := &capturingSender{}
	conn := router.NewConnection("acct1", router.UserScoped, sender)
	hub.Register(conn)

	sub := &Subscriber{hub: hub, nodeID: "node-a", enabled: false}

	env := Envelope{AccountID: "acct1", Event: "update", Filter: router.FilterUserScopedOnly, OriginNode: "node-b"}
	body, err := json.Marshal(env)
	require.NoError(t, err)

	sub.handleEnvelope(&nats.Msg{Data: body})
	assert.Len(t, sender.frames, 1)
}

func TestSubscriber_HandleEnvelope_IgnoresMalformedPayload(t *testing.T) {
	hub := router.NewHub()
	sub := &Subscriber{hub: hub, nodeID: "node-a", enabled: false}

	assert.NotPanics(t, func() { sub.handleEnvelope(&nats.Msg{Data: []byte(`not-json`)}) })
}
