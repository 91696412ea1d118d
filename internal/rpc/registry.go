// Package rpc implements the inter-client RPC bridge: any of an
// account's connections can register a method name, and any other of
// that account's connections can call it and wait for the reply,
// bridged entirely in-process through the relay (§4.5, §8, §9).
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consortium/relay/internal/logger"
)

// AckTimeout bounds how long a caller waits for an RPC reply before the
// bridge gives up and returns a timeout error (§4.5: "forward ... with
// a 30-second ack timeout"; §8 invariant 7).
const AckTimeout = 30 * time.Second

// Dispatcher delivers an rpc-request frame to the connection that holds
// a method registration. The WebSocket layer's Client implements this.
type Dispatcher interface {
	Dispatch(target Target, callID, method string, params json.RawMessage) error
}

// Target identifies the registering connection an rpc-call is being
// routed to, passed through to Dispatcher.Dispatch for logging/framing
// purposes only — routing itself is keyed by (accountID, method).
type Target struct {
	AccountID string
	ConnID    string
}

type registration struct {
	connID     string
	dispatcher Dispatcher
}

type pendingCall struct {
	reply chan callResult
}

type callResult struct {
	result json.RawMessage
	errMsg string
}

// Registry is the per-account methodName -> registering-connection map
// (§4.5).
type Registry struct {
	mu      sync.Mutex
	methods map[string]map[string]registration // accountID -> method -> registration
	pending map[string]*pendingCall            // call id -> waiting caller
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]map[string]registration),
		pending: make(map[string]*pendingCall),
	}
}

// Register stores method -> connID, overwriting any prior registration
// (§4.5 rpc-register).
func (r *Registry) Register(accountID, method, connID string, d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.methods[accountID]
	if !ok {
		m = make(map[string]registration)
		r.methods[accountID] = m
	}
	m[method] = registration{connID: connID, dispatcher: d}
}

// Unregister removes method's registration, but only if it still
// belongs to connID (§4.5 rpc-unregister: "if the current registration
// belongs to this socket, delete").
func (r *Registry) Unregister(accountID, method, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.methods[accountID]
	if !ok {
		return false
	}
	reg, ok := m[method]
	if !ok || reg.connID != connID {
		return false
	}
	delete(m, method)
	return true
}

// RemoveConnection deletes every method registration held by connID,
// used on socket disconnect (§4.5: "remove every registration held by
// that socket").
func (r *Registry) RemoveConnection(accountID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.methods[accountID]
	if !ok {
		return
	}
	for method, reg := range m {
		if reg.connID == connID {
			delete(m, method)
		}
	}
}

// ErrNotRegistered signals no connection currently serves method
// (§4.5: "RPC method not available").
var ErrNotRegistered = fmt.Errorf("RPC method not available")

// ErrSameSocket signals the caller and the registering connection are
// the same socket (§4.5: "Cannot call RPC on the same socket").
var ErrSameSocket = fmt.Errorf("cannot call RPC on the same socket")

// ErrAckTimeout is returned when the target doesn't ack within
// AckTimeout.
var ErrAckTimeout = fmt.Errorf("rpc call timed out waiting for ack")

// Call routes method/params to its registering connection and blocks
// until that connection acks, ctx is canceled, or AckTimeout elapses
// (§4.5 rpc-call).
func (r *Registry) Call(ctx context.Context, accountID, callerConnID, method string, params json.RawMessage) (json.RawMessage, error) {
	r.mu.Lock()
	m, ok := r.methods[accountID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotRegistered
	}
	reg, ok := m[method]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotRegistered
	}
	if reg.connID == callerConnID {
		r.mu.Unlock()
		return nil, ErrSameSocket
	}

	callID := uuid.New().String()
	pc := &pendingCall{reply: make(chan callResult, 1)}
	r.pending[callID] = pc
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, callID)
		r.mu.Unlock()
	}()

	if err := reg.dispatcher.Dispatch(Target{AccountID: accountID, ConnID: reg.connID}, callID, method, params); err != nil {
		// The registering connection is gone or unresponsive (e.g. its
		// send buffer is full mid-disconnect) — indistinguishable from
		// never having registered, as far as the caller is concerned.
		return nil, ErrNotRegistered
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, AckTimeout)
	defer cancel()

	select {
	case res := <-pc.reply:
		if res.errMsg != "" {
			return nil, fmt.Errorf("%s", res.errMsg)
		}
		return res.result, nil
	case <-timeoutCtx.Done():
		if timeoutCtx.Err() == context.DeadlineExceeded {
			logger.RPC().Warn().Str("method", method).Str("callId", callID).Msg("rpc call timed out")
			return nil, ErrAckTimeout
		}
		return nil, timeoutCtx.Err()
	}
}

// Resolve delivers a reply frame to the caller waiting on callID.
// Unknown or already-resolved call ids are ignored: the caller may
// have already timed out (§4.5: a late ack is simply dropped).
func (r *Registry) Resolve(callID string, result json.RawMessage, errMsg string) {
	r.mu.Lock()
	pc, ok := r.pending[callID]
	if ok {
		delete(r.pending, callID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case pc.reply <- callResult{result: result, errMsg: errMsg}:
	default:
	}
}
