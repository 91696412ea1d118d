// Package logger provides structured, module-tagged logging for the relay.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger instance, configured by Initialize.
var Log zerolog.Logger

// Initialize sets up the global logger with the given level and format.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "consortium-relay").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Module returns a logger tagged with an arbitrary module name, used by
// components that don't have a dedicated helper below.
func Module(name string) *zerolog.Logger {
	l := Log.With().Str("module", name).Logger()
	return &l
}

// Auth returns a logger for authentication and token events.
func Auth() *zerolog.Logger {
	l := Log.With().Str("module", "auth").Logger()
	return &l
}

// Store returns a logger for persistence events.
func Store() *zerolog.Logger {
	l := Log.With().Str("module", "store").Logger()
	return &l
}

// Router returns a logger for event router / fan-out events.
func Router() *zerolog.Logger {
	l := Log.With().Str("module", "router").Logger()
	return &l
}

// WebSocket returns a logger for WebSocket protocol events.
func WebSocket() *zerolog.Logger {
	l := Log.With().Str("module", "websocket").Logger()
	return &l
}

// RPC returns a logger for the inter-client RPC bridge.
func RPC() *zerolog.Logger {
	l := Log.With().Str("module", "rpc").Logger()
	return &l
}

// HTTP returns a logger for HTTP request events.
func HTTP() *zerolog.Logger {
	l := Log.With().Str("module", "http").Logger()
	return &l
}

// Sweeper returns a logger for the background staleness sweeper.
func Sweeper() *zerolog.Logger {
	l := Log.With().Str("module", "sweeper").Logger()
	return &l
}
