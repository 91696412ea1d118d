// Package router implements the relay's event router: a per-account
// connection registry that classifies connections by scope and fans
// out events by recipient filter (§4.3).
package router

import "github.com/google/uuid"

// ConnectionType is the scope a Connection was registered under (§3).
type ConnectionType int

const (
	// UserScoped connections see everything for their account — the
	// dashboard.
	UserScoped ConnectionType = iota
	// SessionScoped connections see only traffic for one session — the
	// agent wrapper process.
	SessionScoped
	// MachineScoped connections see only traffic for one machine — a
	// per-host daemon.
	MachineScoped
)

// Sender is anything a Connection can deliver a frame to. The
// WebSocket layer's Client implements this; router stays transport
// agnostic.
type Sender interface {
	// Send enqueues a frame for delivery. Implementations must not
	// block the caller indefinitely — a full outbound buffer is
	// treated as a failed, best-effort delivery (§4.3: "a send failure
	// is not retried and does not affect other recipients").
	Send(frame []byte) error
}

// Connection is one live WebSocket registered with the router (§3). Not
// persisted; created on connect, destroyed on disconnect.
type Connection struct {
	ID        string
	AccountID string
	Type      ConnectionType
	SessionID string // set only when Type == SessionScoped
	MachineID string // set only when Type == MachineScoped
	Sender    Sender
}

// NewConnection constructs a Connection with a fresh id, used for
// skipSenderConnection comparisons and RPC registration bookkeeping.
func NewConnection(accountID string, connType ConnectionType, sender Sender) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Type:      connType,
		Sender:    sender,
	}
}

// Matches reports whether this connection should receive an emit under
// the given recipient filter (§4.3 filter table).
func (c *Connection) Matches(filter RecipientFilter) bool {
	switch filter.Kind {
	case FilterUserScopedOnly:
		return c.Type == UserScoped
	case FilterAllInterestedInSession:
		if c.Type == UserScoped {
			return true
		}
		return c.Type == SessionScoped && c.SessionID == filter.SessionID
	case FilterMachineScopedOnly:
		if c.Type == UserScoped {
			return true
		}
		return c.Type == MachineScoped && c.MachineID == filter.MachineID
	case FilterAllUserAuthenticatedConnections:
		return true
	default:
		return false
	}
}
