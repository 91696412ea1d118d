package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (f *fakeSender) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assert.AnError
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestHub_EmitDeliversToMatchingScope(t *testing.T) {
	hub := NewHub()

	userSender := &fakeSender{}
	sessionSender := &fakeSender{}

	userConn := NewConnection("acct1", UserScoped, userSender)
	sessionConn := NewConnection("acct1", SessionScoped, sessionSender)
	sessionConn.SessionID = "s1"

	hub.Register(userConn)
	hub.Register(sessionConn)

	hub.Emit("acct1", "update", map[string]string{"hello": "world"}, ToUserScope(), "")

	assert.Equal(t, 1, userSender.count())
	assert.Equal(t, 0, sessionSender.count())
}

func TestHub_EmitToSessionReachesUserAndMatchingSession(t *testing.T) {
	hub := NewHub()

	userSender := &fakeSender{}
	matchingSender := &fakeSender{}
	otherSender := &fakeSender{}

	userConn := NewConnection("acct1", UserScoped, userSender)
	matching := NewConnection("acct1", SessionScoped, matchingSender)
	matching.SessionID = "s1"
	other := NewConnection("acct1", SessionScoped, otherSender)
	other.SessionID = "s2"

	hub.Register(userConn)
	hub.Register(matching)
	hub.Register(other)

	hub.Emit("acct1", "update", map[string]string{"hello": "world"}, ToSession("s1"), "")

	assert.Equal(t, 1, userSender.count())
	assert.Equal(t, 1, matchingSender.count())
	assert.Equal(t, 0, otherSender.count())
}

func TestHub_EmitSkipsOriginatingConnection(t *testing.T) {
	hub := NewHub()
	sender := &fakeSender{}
	conn := NewConnection("acct1", UserScoped, sender)
	hub.Register(conn)

	hub.Emit("acct1", "update", map[string]string{}, ToUserScope(), conn.ID)

	assert.Equal(t, 0, sender.count())
}

func TestHub_EmitIgnoresUnknownAccount(t *testing.T) {
	hub := NewHub()
	require.NotPanics(t, func() {
		hub.Emit("nobody", "update", map[string]string{}, ToUserScope(), "")
	})
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	sender := &fakeSender{}
	conn := NewConnection("acct1", UserScoped, sender)

	hub.Register(conn)
	hub.Unregister(conn)
	hub.Emit("acct1", "update", map[string]string{}, ToUserScope(), "")

	assert.Equal(t, 0, sender.count())
	assert.Equal(t, 0, hub.Count("acct1"))
}

func TestHub_EmitToleratesFailingSender(t *testing.T) {
	hub := NewHub()
	bad := &fakeSender{fail: true}
	good := &fakeSender{}

	hub.Register(NewConnection("acct1", UserScoped, bad))
	hub.Register(NewConnection("acct1", UserScoped, good))

	require.NotPanics(t, func() {
		hub.Emit("acct1", "update", map[string]string{}, ToUserScope(), "")
	})
	assert.Equal(t, 1, good.count())
}

func TestConnection_MatchesFilters(t *testing.T) {
	user := NewConnection("acct1", UserScoped, &fakeSender{})
	session := NewConnection("acct1", SessionScoped, &fakeSender{})
	session.SessionID = "s1"
	machine := NewConnection("acct1", MachineScoped, &fakeSender{})
	machine.MachineID = "m1"

	assert.True(t, user.Matches(ToAllConnections()))
	assert.True(t, user.Matches(ToSession("s1")))
	assert.True(t, session.Matches(ToSession("s1")))
	assert.False(t, session.Matches(ToSession("s2")))
	assert.True(t, machine.Matches(ToMachine("m1")))
	assert.False(t, machine.Matches(ToMachine("m2")))
	assert.False(t, machine.Matches(ToUserScope()))
}
