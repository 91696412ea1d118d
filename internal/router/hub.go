package router

import (
	"encoding/json"
	"sync"

	"github.com/consortium/relay/internal/logger"
)

// Hub is the relay's in-process connection registry: every live
// WebSocket is registered here under its account, and emits are fanned
// out to the connections a RecipientFilter selects (§4.3). One Hub per
// process; cross-process fan-out is handled separately by the NATS
// event bus, which calls Emit on the receiving process's Hub.
type Hub struct {
	mu          sync.RWMutex
	byAccount   map[string]map[string]*Connection // accountID -> connID -> Connection
	perAccount  map[string]*sync.RWMutex           // serializes emit snapshots against Register/Unregister per account (§5)
	perAccountM sync.Mutex                         // guards perAccount map itself
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		byAccount:  make(map[string]map[string]*Connection),
		perAccount: make(map[string]*sync.RWMutex),
	}
}

func (h *Hub) lockFor(accountID string) *sync.RWMutex {
	h.perAccountM.Lock()
	defer h.perAccountM.Unlock()
	l, ok := h.perAccount[accountID]
	if !ok {
		l = &sync.RWMutex{}
		h.perAccount[accountID] = l
	}
	return l
}

// Register adds conn to the hub, making it eligible to receive emits
// for its account (§4.3: "on connect, registers under the account").
func (h *Hub) Register(conn *Connection) {
	lock := h.lockFor(conn.AccountID)
	lock.Lock()
	defer lock.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.byAccount[conn.AccountID]
	if !ok {
		conns = make(map[string]*Connection)
		h.byAccount[conn.AccountID] = conns
	}
	conns[conn.ID] = conn
}

// Unregister removes conn from the hub (§4.3: "on disconnect,
// deregisters").
func (h *Hub) Unregister(conn *Connection) {
	lock := h.lockFor(conn.AccountID)
	lock.Lock()
	defer lock.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.byAccount[conn.AccountID]
	if !ok {
		return
	}
	delete(conns, conn.ID)
	if len(conns) == 0 {
		delete(h.byAccount, conn.AccountID)
	}
}

// snapshot returns the current connections for an account as a slice,
// taken under the account's lock so concurrent Register/Unregister
// calls can't race the iteration that follows (§5: "emits for a given
// account are serialized relative to connect/disconnect on that
// account").
func (h *Hub) snapshot(accountID string) []*Connection {
	lock := h.lockFor(accountID)
	lock.RLock()
	defer lock.RUnlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.byAccount[accountID]
	if !ok {
		return nil
	}
	out := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Emit delivers an event to every connection on accountID matching
// filter, best-effort: a Sender failure is logged and does not abort
// delivery to the remaining recipients (§4.3, §8: "a slow or dead
// connection never blocks delivery to other recipients").
func (h *Hub) Emit(accountID, event string, payload interface{}, filter RecipientFilter, skipConnID string) {
	conns := h.snapshot(accountID)
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Router().Error().Err(err).Str("event", event).Msg("failed to marshal emit payload")
		return
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		logger.Router().Error().Err(err).Str("event", event).Msg("failed to marshal envelope")
		return
	}

	for _, conn := range conns {
		if conn.ID == skipConnID {
			continue
		}
		if !conn.Matches(filter) {
			continue
		}
		if err := conn.Sender.Send(frame); err != nil {
			logger.Router().Debug().Err(err).Str("accountId", accountID).Str("connId", conn.ID).
				Str("event", event).Msg("dropped emit to unresponsive connection")
		}
	}
}

// Count returns the number of live connections registered for an
// account, used by tests and diagnostics.
func (h *Hub) Count(accountID string) int {
	return len(h.snapshot(accountID))
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
