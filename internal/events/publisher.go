package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/consortium/relay/internal/logger"
	"github.com/consortium/relay/internal/router"
)

// Publisher publishes local emits to NATS so other relay processes can
// replay them into their own router.Hub. A Publisher with a nil
// connection is a valid no-op: the relay runs correctly as a single
// process without NATS configured (§9).
type Publisher struct {
	conn    *nats.Conn
	nodeID  string
	enabled bool
}

// NewPublisher connects to NATS, or returns a disabled Publisher if cfg.URL
// is empty or the connection fails — the relay logs and continues rather
// than refusing to start, since cross-process fan-out is an accelerator
// for multi-instance deployments, not a correctness requirement for one.
func NewPublisher(cfg Config, nodeID string) *Publisher {
	if cfg.URL == "" {
		logger.Router().Info().Msg("NATS_URL not set, cross-process event fan-out disabled")
		return &Publisher{enabled: false, nodeID: nodeID}
	}

	conn, err := nats.Connect(cfg.URL,
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Router().Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Router().Info().Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Router().Error().Err(err).Str("subject", subject).Msg("NATS error")
		}),
	)
	if err != nil {
		logger.Router().Warn().Err(err).Msg("failed to connect to NATS, cross-process event fan-out disabled")
		return &Publisher{enabled: false, nodeID: nodeID}
	}

	logger.Router().Info().Str("url", cfg.URL).Msg("connected to NATS")
	return &Publisher{conn: conn, nodeID: nodeID, enabled: true}
}

// IsEnabled reports whether this Publisher has a live NATS connection.
func (p *Publisher) IsEnabled() bool {
	return p != nil && p.enabled
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if !p.IsEnabled() {
		return nil
	}
	return p.conn.Drain()
}

// Publish republishes a local emit for other processes to pick up. Best
// effort: publish failures are logged, never returned to the emit's
// caller (§4.3's best-effort delivery extends across the process
// boundary too).
func (p *Publisher) Publish(accountID, event string, payload interface{}, filter router.RecipientFilter) {
	if !p.IsEnabled() {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Router().Error().Err(err).Str("event", event).Msg("failed to marshal event payload for publish")
		return
	}

	env := Envelope{
		AccountID:  accountID,
		Event:      event,
		Payload:    data,
		Filter:     filter.Kind,
		SessionID:  filter.SessionID,
		MachineID:  filter.MachineID,
		OriginNode: p.nodeID,
	}
	body, err := json.Marshal(env)
	if err != nil {
		logger.Router().Error().Err(err).Str("event", event).Msg("failed to marshal envelope for publish")
		return
	}

	if err := p.conn.Publish(AccountSubject(accountID), body); err != nil {
		logger.Router().Warn().Err(err).Str("accountId", accountID).Str("event", event).
			Msg("failed to publish event to NATS")
	}
}
