// Package relay implements the core request handling shared by the
// HTTP and WebSocket protocol layers: authentication, session/message/
// machine persistence, the optimistic-concurrency update algorithm, and
// event emission (§4.2-§4.5). Keeping this logic transport-agnostic
// lets both layers apply the same rules without duplicating them.
package relay

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/consortium/relay/internal/auth"
	"github.com/consortium/relay/internal/cache"
	"github.com/consortium/relay/internal/db"
	"github.com/consortium/relay/internal/events"
	"github.com/consortium/relay/internal/router"
	"github.com/consortium/relay/internal/rpc"
)

// Service wires together the store, sequencer, token service, event
// router and cross-process publisher into the operations §4 describes.
// One Service is shared by every connection and every request.
type Service struct {
	Store     *db.Database
	Cache     *cache.Cache
	Tokens    *auth.TokenService
	Hub       *router.Hub
	Publisher *events.Publisher
	RPC       *rpc.Registry
}

// New constructs a Service from its dependencies.
func New(store *db.Database, c *cache.Cache, tokens *auth.TokenService, hub *router.Hub, publisher *events.Publisher, rpcRegistry *rpc.Registry) *Service {
	return &Service{Store: store, Cache: c, Tokens: tokens, Hub: hub, Publisher: publisher, RPC: rpcRegistry}
}

// emit delivers an update or ephemeral event to an account's matching
// connections, locally and across processes (§4.3).
func (s *Service) emit(accountID, event string, payload interface{}, filter router.RecipientFilter, skipConnID string) {
	s.Hub.Emit(accountID, event, payload, filter, skipConnID)
	s.Publisher.Publish(accountID, event, payload, filter)
}

// UpdateBody is the envelope every persistent "update" event carries
// (§6: "Updates are {id, seq, body:{t:<kind>,...}, createdAt}").
type UpdateBody struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"seq"`
	Body      interface{} `json:"body"`
	CreatedAt time.Time   `json:"createdAt"`
}

// newEventID produces the 12-character random key an update event
// carries for client-side idempotency (§6).
func newEventID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is not recoverable; a predictable id is
		// still safe here since it only affects client-side dedup.
		return "000000000000"
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)[:12]
}

// emitUpdate allocates an account seq, wraps body in the update
// envelope, and emits it with the given filter (§4.4, §4.5 step 4).
func (s *Service) emitUpdate(ctx context.Context, accountID, event string, kind string, body map[string]interface{}, filter router.RecipientFilter, skipConnID string) error {
	seq, err := s.Store.AllocateAccountSeq(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to allocate account seq: %w", err)
	}
	if body == nil {
		body = map[string]interface{}{}
	}
	body["t"] = kind
	payload := UpdateBody{ID: newEventID(), Seq: seq, Body: body, CreatedAt: time.Now().UTC()}
	s.emit(accountID, event, payload, filter, skipConnID)
	return nil
}

// Ephemeral is the shape of activity/machine-activity events (§6).
type Ephemeral struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Active   bool   `json:"active"`
	ActiveAt int64  `json:"activeAt"`
	Thinking bool   `json:"thinking,omitempty"`
}

// errNotFound signals a missing-or-not-owned resource, mapped to 404 on
// HTTP and a generic error callback on WebSocket (§7: authorization
// errors are disguised as 404).
var errNotFound = errors.New("resource not found")

// ErrNotFound is the sentinel relay.errNotFound, exported for protocol
// layers to compare against with errors.Is.
var ErrNotFound = errNotFound

func wrapStoreErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound
	}
	return err
}
