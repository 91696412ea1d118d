package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/consortium/relay/internal/logger"
	"github.com/consortium/relay/internal/router"
)

// Subscriber receives every relay process's published events over NATS
// and replays the ones that didn't originate on this process into the
// local router.Hub, so a connection on this process sees updates
// written on another (§9).
type Subscriber struct {
	conn    *nats.Conn
	hub     *router.Hub
	nodeID  string
	enabled bool
	sub     *nats.Subscription
}

// NewSubscriber connects to NATS and prepares to dispatch into hub. A
// disabled Subscriber (no NATS configured) is a valid, inert value —
// same-process fan-out through hub still works without it.
func NewSubscriber(cfg Config, hub *router.Hub, nodeID string) *Subscriber {
	if cfg.URL == "" {
		return &Subscriber{enabled: false, hub: hub, nodeID: nodeID}
	}

	conn, err := nats.Connect(cfg.URL,
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Router().Warn().Err(err).Msg("NATS subscriber disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Router().Info().Msg("NATS subscriber reconnected")
		}),
	)
	if err != nil {
		logger.Router().Warn().Err(err).Msg("failed to connect to NATS, cross-process event subscription disabled")
		return &Subscriber{enabled: false, hub: hub, nodeID: nodeID}
	}

	return &Subscriber{conn: conn, hub: hub, nodeID: nodeID, enabled: true}
}

// IsEnabled reports whether this Subscriber has a live NATS connection.
func (s *Subscriber) IsEnabled() bool {
	return s != nil && s.enabled
}

// Start subscribes to every account's event subject and dispatches
// incoming envelopes until ctx is canceled.
func (s *Subscriber) Start(ctx context.Context) error {
	if !s.IsEnabled() {
		return nil
	}

	sub, err := s.conn.Subscribe(wildcardSubject, s.handleEnvelope)
	if err != nil {
		return err
	}
	s.sub = sub

	logger.Router().Info().Str("subject", wildcardSubject).Msg("subscribed to cross-process events")

	<-ctx.Done()
	return s.Close()
}

// Close unsubscribes and drains the NATS connection.
func (s *Subscriber) Close() error {
	if !s.IsEnabled() {
		return nil
	}
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			logger.Router().Warn().Err(err).Msg("failed to unsubscribe from NATS")
		}
	}
	return s.conn.Drain()
}

func (s *Subscriber) handleEnvelope(msg *nats.Msg) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		logger.Router().Error().Err(err).Msg("failed to decode cross-process envelope")
		return
	}

	// Drop our own publishes: this process already delivered the emit
	// to its local connections before publishing it.
	if env.OriginNode == s.nodeID {
		return
	}

	s.hub.Emit(env.AccountID, env.Event, env.Payload, env.RecipientFilter(), "")
}
