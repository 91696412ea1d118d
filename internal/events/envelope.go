package events

import (
	"encoding/json"
	"fmt"

	"github.com/consortium/relay/internal/router"
)

// subjectPrefix namespaces every subject this relay publishes and
// subscribes to, so a shared NATS cluster can host more than one
// environment.
const subjectPrefix = "consortium.events"

// AccountSubject returns the subject a given account's cross-process
// events are published and subscribed on.
func AccountSubject(accountID string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, accountID)
}

// wildcardSubject subscribes to every account's events on this NATS
// cluster in one subscription.
const wildcardSubject = subjectPrefix + ".*"

// Envelope is the cross-process wire format published to NATS. It
// mirrors router.RecipientFilter and the emitted event so a receiving
// process can replay the emit into its own Hub without re-deriving the
// filter (§4.3, §9: "publish the emit verbatim; the origin process
// already resolved the filter").
type Envelope struct {
	AccountID  string            `json:"accountId"`
	Event      string            `json:"event"`
	Payload    json.RawMessage   `json:"payload"`
	Filter     router.FilterKind `json:"filter"`
	SessionID  string            `json:"sessionId,omitempty"`
	MachineID  string            `json:"machineId,omitempty"`
	OriginNode string            `json:"originNode"`
}

// RecipientFilter reconstructs the router.RecipientFilter this envelope
// was published under.
func (e Envelope) RecipientFilter() router.RecipientFilter {
	return router.RecipientFilter{Kind: e.Filter, SessionID: e.SessionID, MachineID: e.MachineID}
}
