// Package events implements cross-process fan-out over NATS: every
// relay process publishes the events it emits locally and subscribes
// to every other process's events, so a client connected to process B
// receives an update written on process A (§9 "Design Notes": "events
// written on one process must reach clients connected to another").
package events

import "time"

// Config configures the NATS connection. URL empty disables the event
// bus entirely — the relay still works correctly on a single process
// without it, since router.Hub handles same-process fan-out on its own.
type Config struct {
	URL           string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sane NATS reconnection defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:           url,
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // retry forever
	}
}
