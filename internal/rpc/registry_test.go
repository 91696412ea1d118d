package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	calls    []string
	respond  func(callID string)
	dispatch error
}

func (f *fakeDispatcher) Dispatch(target Target, callID, method string, params json.RawMessage) error {
	f.mu.Lock()
	f.calls = append(f.calls, callID)
	f.mu.Unlock()
	if f.dispatch != nil {
		return f.dispatch
	}
	if f.respond != nil {
		go f.respond(callID)
	}
	return nil
}

func TestRegistry_CallRoutesToRegisteredMethod(t *testing.T) {
	r := NewRegistry()
	d := &fakeDispatcher{}
	d.respond = func(callID string) {
		r.Resolve(callID, json.RawMessage(`{"ok":true}`), "")
	}
	r.Register("acct1", "ping", "conn-target", d)

	result, err := r.Call(context.Background(), "acct1", "conn-caller", "ping", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}

func TestRegistry_CallUnregisteredMethod(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), "acct1", "conn-caller", "missing", nil)
	assert.Equal(t, ErrNotRegistered, err)
}

func TestRegistry_CallMapsDispatchFailureToNotRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register("acct1", "ping", "conn-target", &fakeDispatcher{dispatch: assert.AnError})

	_, err := r.Call(context.Background(), "acct1", "conn-caller", "ping", nil)
	assert.Equal(t, ErrNotRegistered, err)
}

func TestRegistry_CallRejectsSameSocket(t *testing.T) {
	r := NewRegistry()
	r.Register("acct1", "ping", "conn1", &fakeDispatcher{})

	_, err := r.Call(context.Background(), "acct1", "conn1", "ping", nil)
	assert.Equal(t, ErrSameSocket, err)
}

func TestRegistry_CallTimesOut(t *testing.T) {
	r := NewRegistry()
	r.Register("acct1", "ping", "conn-target", &fakeDispatcher{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Call(ctx, "acct1", "conn-caller", "ping", nil)
	assert.Error(t, err)
}

func TestRegistry_UnregisterOnlyOwner(t *testing.T) {
	r := NewRegistry()
	r.Register("acct1", "ping", "conn1", &fakeDispatcher{})

	assert.False(t, r.Unregister("acct1", "ping", "conn2"))
	assert.True(t, r.Unregister("acct1", "ping", "conn1"))

	_, err := r.Call(context.Background(), "acct1", "conn-caller", "ping", nil)
	assert.Equal(t, ErrNotRegistered, err)
}

func TestRegistry_RemoveConnectionClearsAllItsMethods(t *testing.T) {
	r := NewRegistry()
	d := &fakeDispatcher{}
	r.Register("acct1", "a", "conn1", d)
	r.Register("acct1", "b", "conn1", d)
	r.Register("acct1", "c", "conn2", d)

	r.RemoveConnection("acct1", "conn1")

	_, err := r.Call(context.Background(), "acct1", "caller", "a", nil)
	assert.Equal(t, ErrNotRegistered, err)
	_, err = r.Call(context.Background(), "acct1", "caller", "b", nil)
	assert.Equal(t, ErrNotRegistered, err)
}

func TestRegistry_ResolveIgnoresUnknownCallID(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() {
		r.Resolve("never-issued", json.RawMessage(`{}`), "")
	})
}
